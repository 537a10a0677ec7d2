// Host stats collection via github.com/shirou/gopsutil/v4, grounded on
// the teacher's own dependency of the same name (used for host metrics
// in internal/hostmetrics in the reference pack); this is the
// coordinator-facing GetStats handler spec.md §4.9 step 2/4 consumes.
package main

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/riftctl/rift/internal/agentproto"
)

func collectStats(ctx context.Context) (agentproto.StatsResponse, error) {
	var resp agentproto.StatsResponse

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(cpuPercents) > 0 {
		resp.CpuPercent = cpuPercents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.MemPercent = vm.UsedPercent
	}

	if parts, err := disk.PartitionsWithContext(ctx, false); err == nil {
		for _, part := range parts {
			usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
			if err != nil {
				continue
			}
			resp.Disks = append(resp.Disks, agentproto.GaugeStat{Name: part.Mountpoint, Percent: usage.UsedPercent})
		}
	}

	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		for _, t := range temps {
			if t.Critical <= 0 {
				continue
			}
			resp.Components = append(resp.Components, agentproto.GaugeStat{Name: t.SensorKey, Percent: t.Temperature / t.Critical * 100})
		}
	}

	return resp, nil
}

package models

import "time"

// Stat is one tick's stats snapshot for a Server, retained for
// `keep_stats_for_days` before the monitor loop's daily prune task
// deletes it (spec.md §4.9).
type Stat struct {
	Id         string    `json:"id"`
	ServerId   string    `json:"server_id"`
	Ts         time.Time `json:"ts"`
	CpuPercent float64   `json:"cpu_percent"`
	MemPercent float64   `json:"mem_percent"`
	Disks      []GaugeReading `json:"disks,omitempty"`
	Components []GaugeReading `json:"components,omitempty"`
}

// GaugeReading mirrors agentproto.GaugeStat without importing the
// agent wire package from models.
type GaugeReading struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

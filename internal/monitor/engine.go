// Package monitor runs the coordinator's per-server health/alert tick
// and the once-per-day retention prune (spec.md §4.9). It talks
// directly to each Server's agentclient.Client and writes directly to
// the store; unlike internal/procedure/sync/webhook it never dispatches
// through Dispatcher.Execute, so it needs no Executor/TargetFor cycle-
// avoidance interface — there is no cycle to avoid.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/riftctl/rift/internal/agentclient"
	"github.com/riftctl/rift/internal/agentproto"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/notify"
	"github.com/riftctl/rift/internal/store"
	"github.com/rs/zerolog/log"
)

// Notifier fans an alert transition out to every enabled Alerter.
// internal/notify.HTTPDispatcher satisfies this directly; declared here
// (rather than depended on by concrete type) so tests can substitute a
// fake without standing up real HTTP/Slack endpoints.
type Notifier interface {
	Send(ctx context.Context, ev notify.Event) map[string]error
}

// Engine runs the monitor tick and the daily prune task.
type Engine struct {
	Records *store.Records
	Notifier Notifier
	Clock   func() time.Time

	AgentClientFor func(server models.Server) (*agentclient.Client, error)

	Servers         *store.Collection[models.ServerConfig, models.ServerInfo]
	Deployments     *store.Collection[models.DeploymentConfig, models.DeploymentInfo]

	KeepStatsForDays  int
	KeepAlertsForDays int

	containerStates sync.Map // key: deployment id, value: models.ContainerState
}

func New(records *store.Records, notifier Notifier) *Engine {
	return &Engine{Records: records, Notifier: notifier, Clock: time.Now, KeepStatsForDays: 14, KeepAlertsForDays: 90}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Tick runs one monitor pass, concurrently for every Server (spec.md
// §4.9). Errors from individual servers never abort the tick — each
// server's failure is handled (alerted) in place, not propagated.
func (e *Engine) Tick(ctx context.Context) error {
	servers, err := e.Servers.List(store.ListQuery{})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, s := range servers {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.tickServer(ctx, s)
		}()
	}
	wg.Wait()
	return nil
}

func (e *Engine) tickServer(ctx context.Context, server models.Server) {
	if !server.Config.Enabled {
		e.markDisabled(server)
		return
	}

	client, err := e.AgentClientFor(server)
	if err != nil {
		e.markUnreachable(ctx, server)
		return
	}

	if _, err := client.Version(ctx); err != nil {
		e.markUnreachable(ctx, server)
		return
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		e.markUnreachable(ctx, server)
		return
	}

	if _, err := e.Servers.UpdateInfo(server.Id, models.ServerInfo{Status: models.ServerStatusOk, LastCheckedAt: e.now()}); err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("monitor: writing server status")
	}

	containers, err := client.Containers(ctx)
	if err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("monitor: listing containers")
	} else {
		e.reconcileContainers(ctx, server, containers)
	}

	e.evaluateHealth(ctx, server, stats)

	if _, err := e.Records.PutStat(models.Stat{
		ServerId:   server.Id,
		Ts:         e.now(),
		CpuPercent: stats.CpuPercent,
		MemPercent: stats.MemPercent,
		Disks:      toGaugeReadings(stats.Disks),
		Components: toGaugeReadings(stats.Components),
	}); err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("monitor: recording stats")
	}
}

func toGaugeReadings(gs []agentproto.GaugeStat) []models.GaugeReading {
	out := make([]models.GaugeReading, len(gs))
	for i, g := range gs {
		out[i] = models.GaugeReading{Name: g.Name, Percent: g.Percent}
	}
	return out
}

// markUnreachable handles step 1/2's failure path: NotOk status, every
// attached Deployment Unknown, one unresolved ServerUnreachable alert.
func (e *Engine) markUnreachable(ctx context.Context, server models.Server) {
	if _, err := e.Servers.UpdateInfo(server.Id, models.ServerInfo{Status: models.ServerStatusNotOk, LastCheckedAt: e.now()}); err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("monitor: writing server status")
	}
	e.markDeploymentsUnknown(server)
	e.openAlertIfAbsent(ctx, models.NewTarget(models.ResourceTypeServer, server.Id), models.AlertServerUnreachable, models.SeverityCritical, nil)
}

// markDisabled handles step 5: Deployments Unknown, status Disabled, no
// agent calls are made at all.
func (e *Engine) markDisabled(server models.Server) {
	if _, err := e.Servers.UpdateInfo(server.Id, models.ServerInfo{Status: models.ServerStatusDisabled}); err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("monitor: writing disabled status")
	}
	e.markDeploymentsUnknown(server)
}

func (e *Engine) markDeploymentsUnknown(server models.Server) {
	deps, err := e.Deployments.List(store.ListQuery{})
	if err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("monitor: listing deployments")
		return
	}
	for _, dep := range deps {
		if dep.Config.ServerId != server.Id {
			continue
		}
		if _, err := e.Deployments.UpdateInfo(dep.Id, models.DeploymentInfo{State: models.ContainerStateUnknown, LastDeployed: dep.Info.LastDeployed}); err != nil {
			log.Error().Err(err).Str("deployment", dep.Name).Msg("monitor: marking deployment unknown")
		}
		e.containerStates.Delete(dep.Id)
	}
}

// reconcileContainers implements step 3: match each Deployment on this
// server to its reported container by name (a Deployment's container
// name on the agent always equals its resource Name, per the deploy
// handler), diff against the previously observed state, alert and write
// through on every change.
func (e *Engine) reconcileContainers(ctx context.Context, server models.Server, containers []agentproto.ContainerStatus) {
	byName := make(map[string]agentproto.ContainerStatus, len(containers))
	for _, c := range containers {
		byName[c.Name] = c
	}

	deps, err := e.Deployments.List(store.ListQuery{})
	if err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("monitor: listing deployments")
		return
	}
	for _, dep := range deps {
		if dep.Config.ServerId != server.Id {
			continue
		}
		newState := models.ContainerStateNotDeployed
		if c, ok := byName[dep.Name]; ok {
			newState = models.ContainerState(c.State)
		}

		prev, hadPrev := e.containerStates.Load(dep.Id)
		e.containerStates.Store(dep.Id, newState)

		if _, err := e.Deployments.UpdateInfo(dep.Id, models.DeploymentInfo{State: newState, LastDeployed: dep.Info.LastDeployed}); err != nil {
			log.Error().Err(err).Str("deployment", dep.Name).Msg("monitor: writing container state")
			continue
		}

		if hadPrev && prev.(models.ContainerState) == newState {
			continue
		}
		e.notify(ctx, models.Alert{
			Ts:       e.now(),
			Severity: models.SeverityWarning,
			Target:   models.NewTarget(models.ResourceTypeDeployment, dep.Id),
			Variant:  models.AlertContainerStateChange,
			Data:     map[string]interface{}{"from": statePrevString(hadPrev, prev), "to": string(newState)},
		}, false)
	}
}

func statePrevString(hadPrev bool, prev interface{}) string {
	if !hadPrev {
		return string(models.ContainerStateUnknown)
	}
	return string(prev.(models.ContainerState))
}

// evaluateHealth implements step 4: cpu, mem, each disk, each component
// temperature, each against its own warning/critical threshold,
// opening or resolving alerts on level transitions.
func (e *Engine) evaluateHealth(ctx context.Context, server models.Server, stats agentproto.StatsResponse) {
	cfg := server.Config
	target := models.NewTarget(models.ResourceTypeServer, server.Id)

	e.evaluateGauge(ctx, target, models.AlertServerCpu, stats.CpuPercent, cfg.CpuWarning, cfg.CpuCritical, "")
	e.evaluateGauge(ctx, target, models.AlertServerMem, stats.MemPercent, cfg.MemWarning, cfg.MemCritical, "")
	for _, d := range stats.Disks {
		e.evaluateGauge(ctx, target, models.AlertServerDisk, d.Percent, cfg.DiskWarning, cfg.DiskCritical, d.Name)
	}
	for _, c := range stats.Components {
		e.evaluateGauge(ctx, target, models.AlertServerTemperature, c.Percent, cfg.TempWarning, cfg.TempCritical, c.Name)
	}
}

func severityFor(percent, warning, critical float64) models.AlertSeverity {
	switch {
	case critical > 0 && percent >= critical:
		return models.SeverityCritical
	case warning > 0 && percent >= warning:
		return models.SeverityWarning
	default:
		return models.SeverityOk
	}
}

// evaluateGauge opens a new alert when severity rises (resolving the
// lower-severity alert it replaces), resolves the open one when it
// falls back to Ok, and otherwise leaves the existing alert untouched
// (a drop from Critical to Warning keeps the Critical alert open) —
// only transitions are notified, per spec.md §4.9 step 4's "if level
// rose"/"if level fell to Ok".
func (e *Engine) evaluateGauge(ctx context.Context, target models.ResourceTarget, variant models.AlertVariant, percent, warning, critical float64, component string) {
	severity := severityFor(percent, warning, critical)

	existing, err := e.Records.FindUnresolvedAlert(target, variant)
	if err != nil {
		log.Error().Err(err).Str("target", target.Id).Msg("monitor: finding unresolved alert")
		return
	}

	data := map[string]interface{}{"percent": percent}
	if component != "" {
		data["component"] = component
	}

	switch {
	case existing == nil && severity != models.SeverityOk:
		e.notify(ctx, models.Alert{Ts: e.now(), Severity: severity, Target: target, Variant: variant, Data: data}, false)
	case existing != nil && severity == models.SeverityOk:
		resolved := *existing
		resolved.Resolve(e.now())
		if _, err := e.Records.PutAlert(resolved); err != nil {
			log.Error().Err(err).Str("target", target.Id).Msg("monitor: resolving alert")
			return
		}
		e.notify(ctx, resolved, true)
	case existing != nil && severity.Rank() > existing.Severity.Rank():
		replaced := *existing
		replaced.Resolve(e.now())
		if _, err := e.Records.PutAlert(replaced); err != nil {
			log.Error().Err(err).Str("target", target.Id).Msg("monitor: resolving replaced alert")
			return
		}
		e.notify(ctx, replaced, true)
		e.notify(ctx, models.Alert{Ts: e.now(), Severity: severity, Target: target, Variant: variant, Data: data}, false)
	}
}

// openAlertIfAbsent is the simpler, non-severity-ranked open used by
// the unreachable path: at most one unresolved alert per (target,
// variant), never escalated/downgraded, only ever opened once.
func (e *Engine) openAlertIfAbsent(ctx context.Context, target models.ResourceTarget, variant models.AlertVariant, severity models.AlertSeverity, data map[string]interface{}) {
	existing, err := e.Records.FindUnresolvedAlert(target, variant)
	if err != nil {
		log.Error().Err(err).Str("target", target.Id).Msg("monitor: finding unresolved alert")
		return
	}
	if existing != nil {
		return
	}
	e.notify(ctx, models.Alert{Ts: e.now(), Severity: severity, Target: target, Variant: variant, Data: data}, false)
}

func (e *Engine) notify(ctx context.Context, alert models.Alert, resolved bool) {
	if !resolved {
		saved, err := e.Records.PutAlert(alert)
		if err != nil {
			log.Error().Err(err).Str("target", alert.Target.Id).Msg("monitor: persisting alert")
			return
		}
		alert = saved
	}
	if e.Notifier == nil {
		return
	}
	for alerter, err := range e.Notifier.Send(ctx, notify.Event{Alert: alert, Resolved: resolved}) {
		log.Error().Err(err).Str("alerter", alerter).Msg("monitor: alert delivery failed")
	}
}

// Prune runs the once-per-day retention task: old stats, old resolved
// alerts, and (per-server, when auto_prune is set) unused docker images
// on the host (spec.md §4.9 "Pruning").
func (e *Engine) Prune(ctx context.Context) error {
	now := e.now()
	if e.KeepStatsForDays > 0 {
		cutoff := now.Add(-time.Duration(e.KeepStatsForDays) * 24 * time.Hour)
		if n, err := e.Records.PruneStatsOlderThan(cutoff); err != nil {
			log.Error().Err(err).Msg("monitor: pruning stats")
		} else if n > 0 {
			log.Info().Int("count", n).Msg("monitor: pruned old stats")
		}
	}
	if e.KeepAlertsForDays > 0 {
		cutoff := now.Add(-time.Duration(e.KeepAlertsForDays) * 24 * time.Hour)
		if n, err := e.Records.PruneAlertsOlderThan(cutoff); err != nil {
			log.Error().Err(err).Msg("monitor: pruning alerts")
		} else if n > 0 {
			log.Info().Int("count", n).Msg("monitor: pruned old alerts")
		}
	}

	servers, err := e.Servers.List(store.ListQuery{})
	if err != nil {
		return err
	}
	for _, s := range servers {
		if !s.Config.AutoPrune {
			continue
		}
		client, err := e.AgentClientFor(s)
		if err != nil {
			continue
		}
		var out agentproto.LogResponse
		if err := client.Do(ctx, agentproto.Request{Type: agentproto.ReqPruneImages, Params: agentproto.PruneParams{}}, &out); err != nil {
			log.Error().Err(err).Str("server", s.Name).Msg("monitor: pruning images")
		}
	}
	return nil
}

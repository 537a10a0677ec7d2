package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler drives Engine.Tick on a fixed interval and Engine.Prune on
// a cron schedule, via github.com/robfig/cron/v3 rather than a
// hand-rolled time.Ticker loop (spec.md §4.9, SPEC_FULL.md §4.9).
type Scheduler struct {
	engine *Engine
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler wires engine's tick to run every interval and its prune
// task to run on pruneSchedule (a standard 5-field cron expression,
// e.g. "0 0 * * *" for daily at midnight).
func NewScheduler(engine *Engine, interval time.Duration, pruneSchedule string) (*Scheduler, error) {
	c := cron.New()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{engine: engine, cron: c, ctx: ctx, cancel: cancel}

	spec := "@every " + interval.String()
	if _, err := c.AddFunc(spec, s.runTick); err != nil {
		cancel()
		return nil, err
	}
	if _, err := c.AddFunc(pruneSchedule, s.runPrune); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) runTick() {
	if err := s.engine.Tick(s.ctx); err != nil {
		log.Error().Err(err).Msg("monitor: tick failed")
	}
}

func (s *Scheduler) runPrune() {
	if err := s.engine.Prune(s.ctx); err != nil {
		log.Error().Err(err).Msg("monitor: prune failed")
	}
}

// Start begins running both jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels in-flight work and waits for the scheduler's jobs to
// drain, per the cron.Cron contract.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

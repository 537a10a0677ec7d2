// Package procedure implements the stage engine from spec.md §4.6: an
// ordered list of stages, each Sequence or Parallel, each a list of
// {execution, enabled} items.
package procedure

import (
	"context"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
	"golang.org/x/sync/errgroup"
)

// Executor is the slice of Dispatcher this engine needs: run one
// top-level execution and resolve a child request's target. Declared
// here rather than imported from internal/dispatcher so dispatcher can
// hold a reference to Engine (as a ProcedureRunner) without a cycle;
// *dispatcher.Dispatcher satisfies this interface structurally.
type Executor interface {
	Execute(ctx context.Context, target models.ResourceTarget, req models.ExecuteRequest, user models.User) (models.Update, error)
	TargetFor(req models.ExecuteRequest) (models.ResourceTarget, error)
	ResolveUser(userId string) (models.User, error)
}

// Engine runs Procedures. It implements dispatcher.ProcedureRunner.
type Engine struct {
	Procedures *store.Collection[models.ProcedureConfig, models.ProcedureInfo]
	Executor   Executor
	Clock      func() time.Time
}

func New(procedures *store.Collection[models.ProcedureConfig, models.ProcedureInfo], executor Executor) *Engine {
	return &Engine{Procedures: procedures, Executor: executor, Clock: time.Now}
}

// Run executes every stage of the named Procedure in order, stopping
// at the first stage whose children did not all succeed (spec.md §4.6
// step 2-3). The Procedure's own Update accumulates one Log per stage
// summarizing that stage's outcome; child executions get their own
// Updates via Executor.Execute, each a fresh top-level task so cyclic
// resource graphs can't deadlock the dispatcher (spec.md §8 note 9).
func (e *Engine) Run(ctx context.Context, update *models.Update, procedureId, userId string) error {
	proc, err := e.Procedures.Get(procedureId)
	if err != nil {
		return err
	}
	if len(proc.Config.Stages) == 0 {
		return nil
	}

	user, err := e.Executor.ResolveUser(userId)
	if err != nil {
		return err
	}

	for _, stage := range proc.Config.Stages {
		start := e.now()
		var stageErr error
		switch stage.Kind {
		case models.StageSequence:
			stageErr = e.runSequence(ctx, stage, user)
		case models.StageParallel:
			stageErr = e.runParallel(ctx, stage, user)
		default:
			stageErr = rifterr.New(rifterr.KindInvalidConfig, "unknown stage kind %q", stage.Kind)
		}
		update.AddLog(models.Log{
			Stage:   stage.Name,
			Success: stageErr == nil,
			Stderr:  errString(stageErr),
			StartTs: start,
			EndTs:   e.now(),
		})
		if stageErr != nil {
			break
		}
	}
	return nil
}

func (e *Engine) runSequence(ctx context.Context, stage models.ProcedureStage, user models.User) error {
	for _, item := range stage.Items {
		if !item.Enabled {
			continue
		}
		if err := e.runItem(ctx, item, user); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runParallel(ctx context.Context, stage models.ProcedureStage, user models.User) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range stage.Items {
		item := item
		if !item.Enabled {
			continue
		}
		g.Go(func() error {
			return e.runItem(gctx, item, user)
		})
	}
	return g.Wait()
}

func (e *Engine) runItem(ctx context.Context, item models.ProcedureStageItem, user models.User) error {
	target, err := e.Executor.TargetFor(item.Execution)
	if err != nil {
		return err
	}
	child, err := e.Executor.Execute(ctx, target, item.Execution, user)
	if err != nil {
		return err
	}
	if !child.Success {
		return rifterr.New(rifterr.KindInternal, "item %q failed", item.Name)
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

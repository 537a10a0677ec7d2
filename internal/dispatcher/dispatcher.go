// Package dispatcher implements the /execute routing contract from
// spec.md §4.5: authenticate, persist an InProgress Update, acquire the
// action guard, run the handler, finalize and persist.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/riftctl/rift/internal/actionstate"
	"github.com/riftctl/rift/internal/agentclient"
	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
	"github.com/riftctl/rift/internal/updatelog"
)

// ProcedureRunner executes a Procedure end to end (internal/procedure's
// Engine implements this); injected to avoid an import cycle, since the
// procedure engine itself calls back into Dispatcher.Execute for each
// stage item.
type ProcedureRunner interface {
	Run(ctx context.Context, update *models.Update, procedureId, userId string) error
}

// SyncRunner executes a ResourceSync (internal/sync's Engine implements
// this), injected for the same reason as ProcedureRunner.
type SyncRunner interface {
	Run(ctx context.Context, update *models.Update, syncId, userId string, dryRun bool) error
}

// Dispatcher owns every dependency a handler might need: the store, the
// action-state registry, the Update pipeline, the auth base levels, and
// an agent-client factory that takes a Server resource (agentFor looks
// the Server up by id first).
type Dispatcher struct {
	Store      *store.Store
	Records    *store.Records
	Pipeline   *updatelog.Pipeline
	Actions    *actionstate.Registry
	BaseLevels auth.BaseLevels

	AgentClientFor func(server models.Server) (*agentclient.Client, error)

	ProcedureEngine ProcedureRunner
	SyncEngine      SyncRunner

	Servers         *store.Collection[models.ServerConfig, models.ServerInfo]
	Deployments     *store.Collection[models.DeploymentConfig, models.DeploymentInfo]
	Builds          *store.Collection[models.BuildConfig, models.BuildInfo]
	Repos           *store.Collection[models.RepoConfig, models.RepoInfo]
	Builders        *store.Collection[models.BuilderConfig, models.BuilderInfo]
	Stacks          *store.Collection[models.StackConfig, models.StackInfo]
	ServerTemplates *store.Collection[models.ServerTemplateConfig, models.ServerTemplateInfo]
	Procedures      *store.Collection[models.ProcedureConfig, models.ProcedureInfo]
	ResourceSyncs   *store.Collection[models.ResourceSyncConfig, models.ResourceSyncInfo]
}

type handler func(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error

var handlers = map[models.Operation]handler{
	models.OpRunProcedure:      handleRunProcedure,
	models.OpRunBuild:          handleRunBuild,
	models.OpDeploy:            handleDeploy,
	models.OpStartContainer:    handleStartContainer,
	models.OpStopContainer:     handleStopContainer,
	models.OpStopAllContainers: handleStopAllContainers,
	models.OpRemoveContainer:   handleRemoveContainer,
	models.OpCloneRepo:         handleCloneRepo,
	models.OpPullRepo:          handlePullRepo,
	models.OpBuildRepo:         handleBuildRepo,
	models.OpRunSync:           handleRunSync,
	models.OpDeployStack:       handleDeployStack,
	models.OpDestroyStack:      handleDestroyStack,
	models.OpLaunchServer:      handleLaunchServer,
	models.OpPruneNetworks:     handlePrune(agentPruneNetworks),
	models.OpPruneImages:       handlePrune(agentPruneImages),
	models.OpPruneContainers:   handlePrune(agentPruneContainers),
	models.OpSleep:             handleSleep,
	models.OpNone:              handleNone,
}

// Execute is the five-step sequence from spec.md §4.5: auth+permission,
// persist InProgress, acquire guard, run handler, finalize+persist.
func (d *Dispatcher) Execute(ctx context.Context, target models.ResourceTarget, req models.ExecuteRequest, user models.User) (models.Update, error) {
	if err := auth.CheckPermission(d.Records, user, target, models.PermissionExecute, d.BaseLevels); err != nil {
		return models.Update{}, err
	}

	h, ok := handlers[req.Type]
	if !ok {
		return models.Update{}, rifterr.New(rifterr.KindInvalidConfig, "unknown operation %q", req.Type)
	}

	update := d.Pipeline.MakeUpdate(target, req.Type, user.Id)
	update.Status = models.UpdateStatusInProgress
	update, err := d.Pipeline.AddUpdate(update)
	if err != nil {
		return update, err
	}

	guard, err := d.acquireGuard(target, req.Type)
	if err != nil {
		update.AddLog(models.Log{Stage: "guard", Stderr: err.Error(), Success: false, StartTs: d.now(), EndTs: d.now()})
		update.Finalize(d.now())
		_, _ = d.Pipeline.UpdateUpdate(update)
		return update, err
	}
	defer guard.Release()

	handlerErr := h(ctx, d, target, &update, req)
	if handlerErr != nil {
		update.AddLog(models.Log{Stage: "execute", Stderr: handlerErr.Error(), Success: false, StartTs: d.now(), EndTs: d.now()})
	}

	update.Finalize(d.now())
	saved, err := d.Pipeline.UpdateUpdate(update)
	if err != nil {
		return saved, err
	}
	return saved, handlerErr
}

func (d *Dispatcher) now() time.Time {
	if d.Store != nil {
		return d.Store.Now()
	}
	return time.Now()
}

// acquireGuard maps an Operation to the ActionState flag it holds
// (spec.md §4.3's per-verb flags).
func (d *Dispatcher) acquireGuard(target models.ResourceTarget, op models.Operation) (*actionstate.Guard, error) {
	set := func(s *models.ActionState) {
		switch op {
		case models.OpRunBuild, models.OpBuildRepo:
			s.Building = true
		case models.OpDeploy, models.OpDeployStack:
			s.Deploying = true
		case models.OpCloneRepo:
			s.Cloning = true
		case models.OpPullRepo:
			s.Pulling = true
		case models.OpRunSync:
			s.Syncing = true
		case models.OpDestroyStack:
			s.Destroying = true
		default:
			s.Running = true
		}
	}
	return d.Actions.Acquire(target, set)
}

func handleSleep(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p, ok := req.Params.(*models.ParamsSleep)
	if !ok {
		return fmt.Errorf("sleep: unexpected params type %T", req.Params)
	}
	start := d.now()
	select {
	case <-time.After(time.Duration(p.DurationMs) * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	update.AddLog(models.Log{Stage: "sleep", Success: true, StartTs: start, EndTs: d.now()})
	return nil
}

func handleNone(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return nil
}

func handleRunProcedure(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p, ok := req.Params.(*models.ParamsRunProcedure)
	if !ok {
		return fmt.Errorf("run_procedure: unexpected params type %T", req.Params)
	}
	if d.ProcedureEngine == nil {
		return rifterr.New(rifterr.KindInternal, "procedure engine not wired")
	}
	return d.ProcedureEngine.Run(ctx, update, p.Procedure, update.Operator)
}

func handleRunSync(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p, ok := req.Params.(*models.ParamsRunSync)
	if !ok {
		return fmt.Errorf("run_sync: unexpected params type %T", req.Params)
	}
	if d.SyncEngine == nil {
		return rifterr.New(rifterr.KindInternal, "sync engine not wired")
	}
	return d.SyncEngine.Run(ctx, update, p.ResourceSync, update.Operator, p.DryRun)
}

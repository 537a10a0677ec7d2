package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// Executor is the slice of Dispatcher the deploy pass needs: run one
// top-level Deploy/DeployStack execution. Declared here (the consumer)
// rather than imported from internal/dispatcher so the two packages
// don't form a cycle; *dispatcher.Dispatcher satisfies this
// structurally, the same pattern internal/procedure uses.
type Executor interface {
	Execute(ctx context.Context, target models.ResourceTarget, req models.ExecuteRequest, user models.User) (models.Update, error)
	TargetFor(req models.ExecuteRequest) (models.ResourceTarget, error)
	ResolveUser(userId string) (models.User, error)
}

// Engine runs ResourceSyncs. It implements dispatcher.SyncRunner.
type Engine struct {
	Records *store.Records
	Executor Executor
	Clock   func() time.Time
	RepoDir string // base directory git-backed syncs clone into
	gitLocks *gitLocks

	ServerTemplates *store.Collection[models.ServerTemplateConfig, models.ServerTemplateInfo]
	Servers         *store.Collection[models.ServerConfig, models.ServerInfo]
	Alerters        *store.Collection[models.AlerterConfig, models.AlerterInfo]
	Builders        *store.Collection[models.BuilderConfig, models.BuilderInfo]
	Repos           *store.Collection[models.RepoConfig, models.RepoInfo]
	Builds          *store.Collection[models.BuildConfig, models.BuildInfo]
	Deployments     *store.Collection[models.DeploymentConfig, models.DeploymentInfo]
	Stacks          *store.Collection[models.StackConfig, models.StackInfo]
	Procedures      *store.Collection[models.ProcedureConfig, models.ProcedureInfo]
	Actions         *store.Collection[models.ActionConfig, models.ActionInfo]
	ResourceSyncs   *store.Collection[models.ResourceSyncConfig, models.ResourceSyncInfo]
}

func New(records *store.Records, executor Executor, repoDir string) *Engine {
	return &Engine{
		Records:  records,
		Executor: executor,
		Clock:    time.Now,
		RepoDir:  repoDir,
		gitLocks: newGitLocks(),
	}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// plan runs materialize + every kind's planKind/planUserGroups/
// planVariables, returning one flat diff list (spec.md §4.7 steps 1-2).
func (e *Engine) plan(syncId string, sync models.ResourceSync) ([]ResourceDiff, error) {
	doc, err := e.materialize(syncId, sync.Config, func(repoId string) (string, string, error) {
		r, err := e.Repos.Get(repoId)
		if err != nil {
			return "", "", err
		}
		return r.Config.Repo, r.Config.Branch, nil
	})
	if err != nil {
		return nil, err
	}

	del := sync.Config.Delete
	tags := sync.Config.MatchTags

	var all []ResourceDiff
	steps := []func() ([]ResourceDiff, error){
		func() ([]ResourceDiff, error) { return planKind(e.ServerTemplates, models.ResourceTypeServerTemplate, doc.ServerTemplates, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Servers, models.ResourceTypeServer, doc.Servers, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Alerters, models.ResourceTypeAlerter, doc.Alerters, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Builders, models.ResourceTypeBuilder, doc.Builders, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Repos, models.ResourceTypeRepo, doc.Repos, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Builds, models.ResourceTypeBuild, doc.Builds, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Deployments, models.ResourceTypeDeployment, doc.Deployments, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Stacks, models.ResourceTypeStack, doc.Stacks, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Procedures, models.ResourceTypeProcedure, doc.Procedures, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.Actions, models.ResourceTypeAction, doc.Actions, tags, del) },
		func() ([]ResourceDiff, error) { return planKind(e.ResourceSyncs, models.ResourceTypeResourceSync, doc.ResourceSyncs, tags, del) },
		func() ([]ResourceDiff, error) { return planUserGroups(e.Records, doc.UserGroups, del) },
		func() ([]ResourceDiff, error) { return planVariables(e.Records, doc.Variables, del) },
	}
	for _, step := range steps {
		diffs, err := step()
		if err != nil {
			return nil, err
		}
		all = append(all, diffs...)
	}
	return all, nil
}

// PushUpdatesForView computes the plan without applying anything
// (spec.md §4.7's "Diff rendering" / push_updates_for_view mode).
func (e *Engine) PushUpdatesForView(syncId string) ([]ResourceDiff, error) {
	sync, err := e.ResourceSyncs.Get(syncId)
	if err != nil {
		return nil, err
	}
	return e.plan(syncId, sync)
}

// Run executes a ResourceSync end to end: plan, apply in dependency
// order, then optionally a deploy pass, recording one Log per kind on
// the parent Update (spec.md §4.7 steps 3-5). DryRun computes the plan
// and logs it without writing anything to the store.
func (e *Engine) Run(ctx context.Context, update *models.Update, syncId, userId string, dryRun bool) error {
	sync, err := e.ResourceSyncs.Get(syncId)
	if err != nil {
		return err
	}

	diffs, err := e.plan(syncId, sync)
	if err != nil {
		return err
	}

	if dryRun {
		update.AddLog(models.Log{Stage: "plan", Success: true, Stdout: summarize(diffs), StartTs: e.now(), EndTs: e.now()})
		return nil
	}

	byKind := groupByKind(diffs)
	for _, kind := range models.AllResourceTypes {
		group := byKind[kind]
		if group == nil {
			continue
		}
		start := e.now()
		err := e.applyGroup(kind, group)
		update.AddLog(models.Log{
			Stage: string(kind), Success: err == nil, Stderr: errString(err),
			Stdout: summarize(group), StartTs: start, EndTs: e.now(),
		})
		if err != nil {
			return err
		}
	}
	for _, kind := range []models.ResourceType{models.ResourceTypeUserGroup, models.ResourceTypeVariable} {
		group := byKind[kind]
		if group == nil {
			continue
		}
		start := e.now()
		var err error
		if kind == models.ResourceTypeUserGroup {
			err = applyUserGroups(e.Records, group)
		} else {
			err = applyVariables(e.Records, group)
		}
		update.AddLog(models.Log{Stage: string(kind), Success: err == nil, Stderr: errString(err), StartTs: start, EndTs: e.now()})
		if err != nil {
			return err
		}
	}

	if sync.Config.DeployOnSync {
		if err := e.deployPass(ctx, update, byKind, userId); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyGroup(kind models.ResourceType, diffs []ResourceDiff) error {
	switch kind {
	case models.ResourceTypeServerTemplate:
		return applyKind(e.ServerTemplates, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeServer:
		return applyKind(e.Servers, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeAlerter:
		return applyKind(e.Alerters, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeBuilder:
		return applyKind(e.Builders, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeRepo:
		return applyKind(e.Repos, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeBuild:
		return applyKind(e.Builds, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeDeployment:
		return applyKind(e.Deployments, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeStack:
		return applyKind(e.Stacks, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeProcedure:
		return applyKind(e.Procedures, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeAction:
		return applyKind(e.Actions, kind, diffs, e.Builds, e.Records)
	case models.ResourceTypeResourceSync:
		return applyKind(e.ResourceSyncs, kind, diffs, e.Builds, e.Records)
	default:
		return rifterr.New(rifterr.KindInternal, "no apply path wired for kind %q", kind)
	}
}

func groupByKind(diffs []ResourceDiff) map[models.ResourceType][]ResourceDiff {
	out := map[models.ResourceType][]ResourceDiff{}
	for _, d := range diffs {
		out[d.Kind] = append(out[d.Kind], d)
	}
	return out
}

func summarize(diffs []ResourceDiff) string {
	counts := map[PlanAction]int{}
	for _, d := range diffs {
		counts[d.Action]++
	}
	return "create=" + strconv.Itoa(counts[PlanCreate]) + " update=" + strconv.Itoa(counts[PlanUpdate]) + " delete=" + strconv.Itoa(counts[PlanDelete])
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

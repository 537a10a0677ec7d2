package dispatcher

import (
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
)

// TargetFor resolves the ResourceTarget an ExecuteRequest's handler
// will act on, looking the named resource up so the target carries its
// real store id rather than whatever id-or-name string the caller
// supplied. Procedure and sync engines use this to give each child
// execution a fresh, correctly-typed top-level target (spec.md §8's
// "each execution is a fresh top-level task" cycle-breaking rule).
func (d *Dispatcher) TargetFor(req models.ExecuteRequest) (models.ResourceTarget, error) {
	switch p := req.Params.(type) {
	case *models.ParamsRunProcedure:
		r, err := d.Procedures.Get(p.Procedure)
		return models.NewTarget(models.ResourceTypeProcedure, r.Id), err
	case *models.ParamsRunBuild:
		r, err := d.Builds.Get(p.Build)
		return models.NewTarget(models.ResourceTypeBuild, r.Id), err
	case *models.ParamsDeploy:
		r, err := d.Deployments.Get(p.Deployment)
		return models.NewTarget(models.ResourceTypeDeployment, r.Id), err
	case *models.ParamsContainerOp:
		r, err := d.Deployments.Get(p.Deployment)
		return models.NewTarget(models.ResourceTypeDeployment, r.Id), err
	case *models.ParamsStopAllContainers:
		r, err := d.Servers.Get(p.Server)
		return models.NewTarget(models.ResourceTypeServer, r.Id), err
	case *models.ParamsCloneRepo:
		r, err := d.Repos.Get(p.Repo)
		return models.NewTarget(models.ResourceTypeRepo, r.Id), err
	case *models.ParamsPullRepo:
		r, err := d.Repos.Get(p.Repo)
		return models.NewTarget(models.ResourceTypeRepo, r.Id), err
	case *models.ParamsBuildRepo:
		r, err := d.Repos.Get(p.Repo)
		return models.NewTarget(models.ResourceTypeRepo, r.Id), err
	case *models.ParamsRunSync:
		r, err := d.ResourceSyncs.Get(p.ResourceSync)
		return models.NewTarget(models.ResourceTypeResourceSync, r.Id), err
	case *models.ParamsDeployStack:
		r, err := d.Stacks.Get(p.Stack)
		return models.NewTarget(models.ResourceTypeStack, r.Id), err
	case *models.ParamsDestroyStack:
		r, err := d.Stacks.Get(p.Stack)
		return models.NewTarget(models.ResourceTypeStack, r.Id), err
	case *models.ParamsLaunchServer:
		r, err := d.ServerTemplates.Get(p.ServerTemplate)
		return models.NewTarget(models.ResourceTypeServerTemplate, r.Id), err
	case *models.ParamsPruneResource:
		r, err := d.Servers.Get(p.Server)
		return models.NewTarget(models.ResourceTypeServer, r.Id), err
	case *models.ParamsSleep, *models.ParamsNone:
		return models.NewTarget(models.ResourceTypeSystem, ""), nil
	default:
		return models.ResourceTarget{}, rifterr.New(rifterr.KindInvalidConfig, "cannot resolve target for params type %T", req.Params)
	}
}

// ResolveUser loads the acting User by id for a child execution kicked
// off from a Procedure or ResourceSync run, where only the operator id
// survives on the parent Update.
func (d *Dispatcher) ResolveUser(userId string) (models.User, error) {
	return d.Records.GetUser(userId)
}

package dispatcher

import (
	"context"
	"fmt"

	"github.com/riftctl/rift/internal/agentclient"
	"github.com/riftctl/rift/internal/agentproto"
	"github.com/riftctl/rift/internal/interpolate"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
)

// agentFor resolves the agent client for the server a Deployment,
// Build, Repo or Stack lives on.
func (d *Dispatcher) agentFor(serverId string) (*agentclient.Client, models.Server, error) {
	server, err := d.Servers.Get(serverId)
	if err != nil {
		return nil, server, err
	}
	client, err := d.AgentClientFor(server)
	if err != nil {
		return nil, server, rifterr.Wrap(rifterr.KindUpstream, err, "resolving agent for server %s", server.Name)
	}
	return client, server, nil
}

func handleDeploy(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p := req.Params.(*models.ParamsDeploy)
	dep, err := d.Deployments.Get(p.Deployment)
	if err != nil {
		return err
	}

	client, _, err := d.agentFor(dep.Config.ServerId)
	if err != nil {
		return err
	}

	image := dep.Config.Image.Image
	var imageRef string
	switch {
	case image != nil:
		imageRef = image.Image
	case dep.Config.Image.Build != nil:
		build, err := d.Builds.Get(dep.Config.Image.Build.BuildId)
		if err != nil {
			return err
		}
		imageRef = build.Config.ImageName
	default:
		return rifterr.New(rifterr.KindInvalidConfig, "deployment %s has no image source", dep.Name)
	}

	if _, err := client.PullImage(ctx, imageRef); err != nil {
		return err
	}

	var out agentproto.LogResponse
	err = client.Do(ctx, agentproto.Request{Type: agentproto.ReqDeploy, Params: agentproto.DeployParams{
		ContainerName: dep.Name,
		Image:         imageRef,
		Environment:   interpolate.Map(d.Records, dep.Config.Environment),
		Ports:         dep.Config.Ports,
		Volumes:       dep.Config.Volumes,
		Network:       dep.Config.Network,
		RestartPolicy: dep.Config.RestartPolicy,
		Command:       interpolate.String(d.Records, dep.Config.Command),
		StopSignal:    p.StopSignal,
	}}, &out)
	update.AddLog(models.Log{Stage: "deploy", Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
	if err != nil {
		return err
	}
	_, err = d.Deployments.UpdateInfo(dep.Id, models.DeploymentInfo{State: models.ContainerStateRunning, LastDeployed: d.now()})
	return err
}

func handleStartContainer(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return containerOp(ctx, d, update, req, agentproto.ReqStartContainer, "start")
}

func handleStopContainer(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return containerOp(ctx, d, update, req, agentproto.ReqStopContainer, "stop")
}

func handleRemoveContainer(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return containerOp(ctx, d, update, req, agentproto.ReqRemoveContainer, "remove")
}

func containerOp(ctx context.Context, d *Dispatcher, update *models.Update, req models.ExecuteRequest, reqType agentproto.RequestType, stage string) error {
	p := req.Params.(*models.ParamsContainerOp)
	dep, err := d.Deployments.Get(p.Deployment)
	if err != nil {
		return err
	}
	client, _, err := d.agentFor(dep.Config.ServerId)
	if err != nil {
		return err
	}
	var out agentproto.LogResponse
	err = client.Do(ctx, agentproto.Request{Type: reqType, Params: agentproto.ContainerParams{ContainerName: dep.Name}}, &out)
	update.AddLog(models.Log{Stage: stage, Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
	return err
}

func handleStopAllContainers(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p := req.Params.(*models.ParamsStopAllContainers)
	client, _, err := d.agentFor(p.Server)
	if err != nil {
		return err
	}
	var out agentproto.LogResponse
	err = client.Do(ctx, agentproto.Request{Type: agentproto.ReqStopAllContainers, Params: agentproto.StopAllContainersParams{}}, &out)
	update.AddLog(models.Log{Stage: "stop_all_containers", Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
	return err
}

func handleCloneRepo(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return repoOp(ctx, d, update, req, agentproto.ReqCloneRepo, "clone")
}

func handlePullRepo(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return repoOp(ctx, d, update, req, agentproto.ReqPullRepo, "pull")
}

func repoOp(ctx context.Context, d *Dispatcher, update *models.Update, req models.ExecuteRequest, reqType agentproto.RequestType, stage string) error {
	var repoId string
	switch p := req.Params.(type) {
	case *models.ParamsCloneRepo:
		repoId = p.Repo
	case *models.ParamsPullRepo:
		repoId = p.Repo
	default:
		return fmt.Errorf("repo op: unexpected params type %T", req.Params)
	}
	repo, err := d.Repos.Get(repoId)
	if err != nil {
		return err
	}
	client, _, err := d.agentFor(repo.Config.ServerId)
	if err != nil {
		return err
	}
	var out agentproto.LogResponse
	err = client.Do(ctx, agentproto.Request{Type: reqType, Params: agentproto.RepoParams{
		Url: repo.Config.Repo, Branch: repo.Config.Branch, Path: repo.Config.Path,
	}}, &out)
	update.AddLog(models.Log{Stage: stage, Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
	if err != nil {
		return err
	}
	_, err = d.Repos.UpdateInfo(repo.Id, models.RepoInfo{LastPulledAt: d.now()})
	return err
}

func handleBuildRepo(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p := req.Params.(*models.ParamsBuildRepo)
	repo, err := d.Repos.Get(p.Repo)
	if err != nil {
		return err
	}
	client, _, err := d.agentFor(repo.Config.ServerId)
	if err != nil {
		return err
	}
	var out agentproto.LogResponse
	err = client.Do(ctx, agentproto.Request{Type: agentproto.ReqBuildRepo, Params: agentproto.BuildRepoParams{
		Path: repo.Config.Path,
	}}, &out)
	update.AddLog(models.Log{Stage: "build", Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
	return err
}

func handleDeployStack(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return stackOp(ctx, d, update, req, agentproto.ReqDeployStack, "deploy_stack")
}

func handleDestroyStack(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	return stackOp(ctx, d, update, req, agentproto.ReqDestroyStack, "destroy_stack")
}

func stackOp(ctx context.Context, d *Dispatcher, update *models.Update, req models.ExecuteRequest, reqType agentproto.RequestType, stage string) error {
	var stackId string
	switch p := req.Params.(type) {
	case *models.ParamsDeployStack:
		stackId = p.Stack
	case *models.ParamsDestroyStack:
		stackId = p.Stack
	default:
		return fmt.Errorf("stack op: unexpected params type %T", req.Params)
	}
	stack, err := d.Stacks.Get(stackId)
	if err != nil {
		return err
	}
	client, _, err := d.agentFor(stack.Config.ServerId)
	if err != nil {
		return err
	}
	var out agentproto.LogResponse
	err = client.Do(ctx, agentproto.Request{Type: reqType, Params: agentproto.DeployStackParams{Environment: stack.Config.Environment}}, &out)
	update.AddLog(models.Log{Stage: stage, Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
	return err
}

func handleLaunchServer(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p := req.Params.(*models.ParamsLaunchServer)
	_, err := d.ServerTemplates.Get(p.ServerTemplate)
	if err != nil {
		return err
	}
	// Provisioning a cloud instance from a ServerTemplate is a cloud-SDK
	// concern external to this coordinator process (spec.md §1's
	// "external collaborator" boundary for anything below the agent
	// protocol); this records the attempt so the Update reflects intent.
	update.AddLog(models.Log{Stage: "launch_server", Stdout: fmt.Sprintf("requested server %q from template", p.Name), Success: true})
	return nil
}

func handleRunBuild(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
	p := req.Params.(*models.ParamsRunBuild)
	build, err := d.Builds.Get(p.Build)
	if err != nil {
		return err
	}
	repo, err := d.Repos.Get(build.Config.RepoId)
	if err != nil {
		return err
	}
	client, _, err := d.agentFor(repo.Config.ServerId)
	if err != nil {
		return err
	}
	var out agentproto.LogResponse
	err = client.Do(ctx, agentproto.Request{Type: agentproto.ReqBuildRepo, Params: agentproto.BuildRepoParams{
		Path: repo.Config.Path, Dockerfile: build.Config.Dockerfile, BuildArgs: build.Config.BuildArgs, ImageName: build.Config.ImageName,
	}}, &out)
	update.AddLog(models.Log{Stage: "run_build", Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
	if err != nil {
		return err
	}
	_, err = d.Builds.UpdateInfo(build.Id, models.BuildInfo{LastBuiltVersion: build.Config.Branch, LastBuiltAt: d.now()})
	return err
}

func agentPruneNetworks(client *agentclient.Client) agentproto.RequestType { return agentproto.ReqPruneNetworks }
func agentPruneImages(client *agentclient.Client) agentproto.RequestType   { return agentproto.ReqPruneImages }
func agentPruneContainers(client *agentclient.Client) agentproto.RequestType {
	return agentproto.ReqPruneContainers
}

func handlePrune(pick func(*agentclient.Client) agentproto.RequestType) handler {
	return func(ctx context.Context, d *Dispatcher, target models.ResourceTarget, update *models.Update, req models.ExecuteRequest) error {
		p := req.Params.(*models.ParamsPruneResource)
		client, _, err := d.agentFor(p.Server)
		if err != nil {
			return err
		}
		reqType := pick(client)
		var out agentproto.LogResponse
		err = client.Do(ctx, agentproto.Request{Type: reqType, Params: agentproto.PruneParams{}}, &out)
		update.AddLog(models.Log{Stage: string(reqType), Stdout: out.Stdout, Stderr: out.Stderr, Success: out.Success})
		return err
	}
}

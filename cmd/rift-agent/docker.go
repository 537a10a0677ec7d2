// Docker operations for rift-agent, grounded on the teacher's own
// github.com/docker/docker dependency (see internal/dockeragent in the
// reference pack) — the standard Docker Engine SDK client rather than
// shelling out to the docker CLI.
package main

import (
	"context"
	"fmt"
	"io"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	imagetypes "github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/riftctl/rift/internal/agentproto"
)

type dockerRuntime struct {
	cli *client.Client
}

func newDockerRuntime() (*dockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &dockerRuntime{cli: cli}, nil
}

func (d *dockerRuntime) Close() error { return d.cli.Close() }

func (d *dockerRuntime) listContainers(ctx context.Context) ([]agentproto.ContainerStatus, error) {
	containers, err := d.cli.ContainerList(ctx, containertypes.ListOptions{All: true})
	if err != nil {
		return nil, err
	}
	out := make([]agentproto.ContainerStatus, 0, len(containers))
	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = trimLeadingSlash(c.Names[0])
		}
		out = append(out, agentproto.ContainerStatus{Name: name, State: c.State})
	}
	return out, nil
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

// deploy creates (replacing any existing container of the same name)
// and starts one container per spec.md §4.10's Deploy operation. The
// image must already be present (the dispatcher pulls it first).
func (d *dockerRuntime) deploy(ctx context.Context, p agentproto.DeployParams) (agentproto.LogResponse, error) {
	_, _ = d.removeByName(ctx, p.ContainerName)

	env := make([]string, 0, len(p.Environment))
	for k, v := range p.Environment {
		env = append(env, k+"="+v)
	}

	var cmd []string
	if p.Command != "" {
		cmd = []string{"/bin/sh", "-c", p.Command}
	}

	containerCfg := &containertypes.Config{
		Image: p.Image,
		Env:   env,
		Cmd:   cmd,
	}
	if p.StopSignal != "" {
		containerCfg.StopSignal = p.StopSignal
	}

	hostCfg := &containertypes.HostConfig{
		Binds:         p.Volumes,
		RestartPolicy: restartPolicyFor(p.RestartPolicy),
	}

	var netCfg *networktypes.NetworkingConfig
	if p.Network != "" {
		netCfg = &networktypes.NetworkingConfig{
			EndpointsConfig: map[string]*networktypes.EndpointSettings{p.Network: {}},
		}
	}

	created, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, netCfg, nil, p.ContainerName)
	if err != nil {
		return agentproto.LogResponse{Stage: "deploy", Success: false, Stderr: err.Error()}, err
	}
	if err := d.cli.ContainerStart(ctx, created.ID, containertypes.StartOptions{}); err != nil {
		return agentproto.LogResponse{Stage: "deploy", Success: false, Stderr: err.Error()}, err
	}
	return agentproto.LogResponse{Stage: "deploy", Success: true, Stdout: "started " + p.ContainerName}, nil
}

func restartPolicyFor(name string) containertypes.RestartPolicy {
	switch name {
	case "always":
		return containertypes.RestartPolicy{Name: containertypes.RestartPolicyAlways}
	case "unless-stopped":
		return containertypes.RestartPolicy{Name: containertypes.RestartPolicyUnlessStopped}
	case "on-failure":
		return containertypes.RestartPolicy{Name: containertypes.RestartPolicyOnFailure}
	default:
		return containertypes.RestartPolicy{Name: containertypes.RestartPolicyDisabled}
	}
}

func (d *dockerRuntime) removeByName(ctx context.Context, name string) (agentproto.LogResponse, error) {
	err := d.cli.ContainerRemove(ctx, name, containertypes.RemoveOptions{Force: true})
	return agentproto.LogResponse{Stage: "remove", Success: err == nil}, err
}

func (d *dockerRuntime) startContainer(ctx context.Context, name string) (agentproto.LogResponse, error) {
	err := d.cli.ContainerStart(ctx, name, containertypes.StartOptions{})
	return agentproto.LogResponse{Stage: "start", Success: err == nil, Stderr: errString(err)}, err
}

func (d *dockerRuntime) stopContainer(ctx context.Context, name string) (agentproto.LogResponse, error) {
	timeout := 30
	err := d.cli.ContainerStop(ctx, name, containertypes.StopOptions{Timeout: &timeout})
	return agentproto.LogResponse{Stage: "stop", Success: err == nil, Stderr: errString(err)}, err
}

func (d *dockerRuntime) removeContainer(ctx context.Context, name string) (agentproto.LogResponse, error) {
	return d.removeByName(ctx, name)
}

func (d *dockerRuntime) stopAllContainers(ctx context.Context) (agentproto.LogResponse, error) {
	containers, err := d.cli.ContainerList(ctx, containertypes.ListOptions{})
	if err != nil {
		return agentproto.LogResponse{Stage: "stop_all_containers", Success: false, Stderr: err.Error()}, err
	}
	timeout := 30
	var failed int
	for _, c := range containers {
		if err := d.cli.ContainerStop(ctx, c.ID, containertypes.StopOptions{Timeout: &timeout}); err != nil {
			failed++
		}
	}
	return agentproto.LogResponse{
		Stage:   "stop_all_containers",
		Success: failed == 0,
		Stdout:  fmt.Sprintf("stopped %d/%d containers", len(containers)-failed, len(containers)),
	}, nil
}

func (d *dockerRuntime) pullImage(ctx context.Context, name string) (agentproto.LogResponse, error) {
	rc, err := d.cli.ImagePull(ctx, name, imagetypes.PullOptions{})
	if err != nil {
		return agentproto.LogResponse{Stage: "pull_image", Success: false, Stderr: err.Error()}, err
	}
	defer rc.Close()
	out, _ := io.ReadAll(rc)
	return agentproto.LogResponse{Stage: "pull_image", Success: true, Stdout: string(out)}, nil
}

func (d *dockerRuntime) pruneContainers(ctx context.Context) (agentproto.LogResponse, error) {
	report, err := d.cli.ContainersPrune(ctx, filters.NewArgs())
	if err != nil {
		return agentproto.LogResponse{Stage: "prune_containers", Success: false, Stderr: err.Error()}, err
	}
	return agentproto.LogResponse{Stage: "prune_containers", Success: true, Stdout: fmt.Sprintf("removed %d containers, reclaimed %d bytes", len(report.ContainersDeleted), report.SpaceReclaimed)}, nil
}

func (d *dockerRuntime) pruneImages(ctx context.Context) (agentproto.LogResponse, error) {
	report, err := d.cli.ImagesPrune(ctx, filters.NewArgs())
	if err != nil {
		return agentproto.LogResponse{Stage: "prune_images", Success: false, Stderr: err.Error()}, err
	}
	return agentproto.LogResponse{Stage: "prune_images", Success: true, Stdout: fmt.Sprintf("removed %d images, reclaimed %d bytes", len(report.ImagesDeleted), report.SpaceReclaimed)}, nil
}

func (d *dockerRuntime) pruneNetworks(ctx context.Context) (agentproto.LogResponse, error) {
	report, err := d.cli.NetworksPrune(ctx, filters.NewArgs())
	if err != nil {
		return agentproto.LogResponse{Stage: "prune_networks", Success: false, Stderr: err.Error()}, err
	}
	return agentproto.LogResponse{Stage: "prune_networks", Success: true, Stdout: fmt.Sprintf("removed %d networks", len(report.NetworksDeleted))}, nil
}

// deployStack and destroyStack run `docker compose` against a stack's
// checked-out directory rather than reimplementing compose's YAML
// semantics (spec.md §4.10's Stack operations; compose itself is an
// external collaborator beyond this agent's scope per spec.md §1).
func (d *dockerRuntime) deployStack(ctx context.Context, p agentproto.DeployStackParams) (agentproto.LogResponse, error) {
	env := make([]string, 0, len(p.Environment))
	for k, v := range p.Environment {
		env = append(env, k+"="+v)
	}
	return runCompose(ctx, p.Path, env, "up", "-d")
}

func (d *dockerRuntime) destroyStack(ctx context.Context, p agentproto.DestroyStackParams) (agentproto.LogResponse, error) {
	return runCompose(ctx, p.Path, nil, "down")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

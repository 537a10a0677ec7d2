// Git/compose/image-build operations for rift-agent. These shell out to
// the system git/docker binaries — spec.md §1 places "agent process
// internals (shell invocation of docker/git)" outside this project's
// scope, so this is a thin, direct wrapper rather than a reimplemented
// git client or Dockerfile parser.
package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/riftctl/rift/internal/agentproto"
)

func cloneRepo(ctx context.Context, repoDir string, p agentproto.RepoParams) (agentproto.LogResponse, error) {
	dest := filepath.Join(repoDir, p.Path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return agentproto.LogResponse{Stage: "clone", Success: false, Stderr: err.Error()}, err
	}
	args := []string{"clone"}
	if p.Branch != "" {
		args = append(args, "--branch", p.Branch)
	}
	args = append(args, p.Url, dest)
	return runGit(ctx, "", "clone", args...)
}

func pullRepo(ctx context.Context, repoDir string, p agentproto.RepoParams) (agentproto.LogResponse, error) {
	dest := filepath.Join(repoDir, p.Path)
	args := []string{"pull", "origin"}
	if p.Branch != "" {
		args = append(args, p.Branch)
	}
	return runGit(ctx, dest, "pull", args...)
}

func runGit(ctx context.Context, dir, stage string, args ...string) (agentproto.LogResponse, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return agentproto.LogResponse{
		Stage:   stage,
		Command: "git " + joinArgs(args),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Success: err == nil,
	}, err
}

func (a *agent) buildRepo(ctx context.Context, p agentproto.BuildRepoParams) (agentproto.LogResponse, error) {
	dir := filepath.Join(a.repoDir, p.Path)
	dockerfile := p.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	args := []string{"build", "-f", dockerfile, "-t", p.ImageName}
	for k, v := range p.BuildArgs {
		args = append(args, "--build-arg", k+"="+v)
	}
	args = append(args, ".")

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return agentproto.LogResponse{
		Stage:   "build",
		Command: "docker " + joinArgs(args),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Success: err == nil,
	}, err
}

func runCompose(ctx context.Context, path string, env []string, args ...string) (agentproto.LogResponse, error) {
	full := append([]string{"compose"}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	cmd.Dir = path
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return agentproto.LogResponse{
		Stage:   "compose " + joinArgs(args),
		Command: "docker " + joinArgs(full),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Success: err == nil,
	}, err
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

package sync

import (
	"context"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// deployTarget is one Deployment or Stack the deploy pass will run,
// with the names it must wait on before it can go (spec.md §4.7 step 4).
type deployTarget struct {
	name  string
	kind  models.ResourceType
	after []string
}

// deployPass computes the subset of Deployments/Stacks whose config
// changed in this sync plus every resource individually marked
// deploy-on-sync, topologically orders them by `after`, and deploys in
// rounds — everything with no unmet dependency in one round, sleeping
// 1s between rounds, aborting on the first round containing a failure.
func (e *Engine) deployPass(ctx context.Context, update *models.Update, byKind map[models.ResourceType][]ResourceDiff, userId string) error {
	targets, err := e.collectDeployTargets(byKind)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}

	user, err := e.Executor.ResolveUser(userId)
	if err != nil {
		return err
	}

	deployed := map[string]bool{}
	remaining := targets
	for len(remaining) > 0 {
		round, rest := readyRound(remaining, deployed)
		if len(round) == 0 {
			return rifterr.New(rifterr.KindInvalidConfig, "deploy pass: circular `after` dependency among %v", names(remaining))
		}
		start := e.now()
		var roundErr error
		for _, t := range round {
			if err := e.deployOne(ctx, t, user); err != nil {
				roundErr = err
				break
			}
			deployed[t.name] = true
		}
		update.AddLog(models.Log{
			Stage: "deploy:" + joinNames(round), Success: roundErr == nil, Stderr: errString(roundErr),
			StartTs: start, EndTs: e.now(),
		})
		if roundErr != nil {
			return roundErr
		}
		remaining = rest
		if len(remaining) > 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (e *Engine) collectDeployTargets(byKind map[models.ResourceType][]ResourceDiff) ([]deployTarget, error) {
	want := map[string]deployTarget{}
	for _, d := range byKind[models.ResourceTypeDeployment] {
		if d.Action == PlanCreate || d.Action == PlanUpdate {
			want[d.Name] = deployTarget{name: d.Name, kind: models.ResourceTypeDeployment}
		}
	}
	for _, d := range byKind[models.ResourceTypeStack] {
		if d.Action == PlanCreate || d.Action == PlanUpdate {
			want[d.Name] = deployTarget{name: d.Name, kind: models.ResourceTypeStack}
		}
	}

	deps, err := e.Deployments.List(store.ListQuery{})
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		if dep.Config.DeployOnSync {
			want[dep.Name] = deployTarget{name: dep.Name, kind: models.ResourceTypeDeployment, after: dep.Config.After}
		} else if t, ok := want[dep.Name]; ok && t.kind == models.ResourceTypeDeployment {
			t.after = dep.Config.After
			want[dep.Name] = t
		}
	}
	stacks, err := e.Stacks.List(store.ListQuery{})
	if err != nil {
		return nil, err
	}
	for _, st := range stacks {
		if st.Config.DeployOnSync {
			want[st.Name] = deployTarget{name: st.Name, kind: models.ResourceTypeStack, after: st.Config.After}
		} else if t, ok := want[st.Name]; ok && t.kind == models.ResourceTypeStack {
			t.after = st.Config.After
			want[st.Name] = t
		}
	}

	out := make([]deployTarget, 0, len(want))
	for _, t := range want {
		out = append(out, t)
	}
	return out, nil
}

func (e *Engine) deployOne(ctx context.Context, t deployTarget, user models.User) error {
	var req models.ExecuteRequest
	switch t.kind {
	case models.ResourceTypeDeployment:
		req = models.ExecuteRequest{Type: models.OpDeploy, Params: &models.ParamsDeploy{Deployment: t.name}}
	case models.ResourceTypeStack:
		req = models.ExecuteRequest{Type: models.OpDeployStack, Params: &models.ParamsDeployStack{Stack: t.name}}
	default:
		return rifterr.New(rifterr.KindInternal, "deploy pass: unsupported target kind %q", t.kind)
	}
	target, err := e.Executor.TargetFor(req)
	if err != nil {
		return err
	}
	result, err := e.Executor.Execute(ctx, target, req, user)
	if err != nil {
		return err
	}
	if !result.Success {
		return rifterr.New(rifterr.KindInternal, "deploy of %q failed", t.name)
	}
	return nil
}

// readyRound splits remaining into (ready-this-round, still-waiting),
// where ready means every `after` name is either already deployed or
// not itself part of this deploy set.
func readyRound(remaining []deployTarget, deployed map[string]bool) (ready []deployTarget, rest []deployTarget) {
	inSet := make(map[string]bool, len(remaining))
	for _, t := range remaining {
		inSet[t.name] = true
	}
	for _, t := range remaining {
		blocked := false
		for _, dep := range t.after {
			if inSet[dep] && !deployed[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			rest = append(rest, t)
		} else {
			ready = append(ready, t)
		}
	}
	return ready, rest
}

func names(ts []deployTarget) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.name
	}
	return out
}

func joinNames(ts []deployTarget) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ","
		}
		s += t.name
	}
	return s
}

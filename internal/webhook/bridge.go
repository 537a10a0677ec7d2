// Package webhook implements the provider push bridge from spec.md
// §4.8: verify a GitHub-style HMAC signature, check the target
// resource opted in and the pushed branch matches, then translate the
// (resource kind, action) pair into an ExecuteRequest run under the
// synthetic git_webhook_user identity.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// syntheticUser is the identity every webhook-triggered execution runs
// as (spec.md §4.8 step 5) — never a registered user, so it bypasses
// Dispatcher.ResolveUser entirely.
var syntheticUser = models.User{Id: "git_webhook_user", Username: "git_webhook_user"}

// Kind is the resource-type path segment in
// /listener/<provider>/<kind>/<id>/<action>.
type Kind string

const (
	KindRepo         Kind = "repo"
	KindBuild        Kind = "build"
	KindDeployment   Kind = "deployment"
	KindStack        Kind = "stack"
	KindResourceSync Kind = "resourcesync"
)

// Executor is the slice of Dispatcher the bridge needs to submit a
// translated ExecuteRequest. Declared here, the consumer, rather than
// imported from internal/dispatcher, for the same cycle-avoidance
// reason internal/procedure and internal/sync declare their own.
type Executor interface {
	Execute(ctx context.Context, target models.ResourceTarget, req models.ExecuteRequest, user models.User) (models.Update, error)
	TargetFor(req models.ExecuteRequest) (models.ResourceTarget, error)
}

// webhookTarget is the subset of a Repo/Build/Deployment/Stack/
// ResourceSync's config every provider-push check needs, independent
// of which concrete Collection it came from.
type webhookTarget struct {
	enabled bool
	secret  string
	branch  string
}

// Bridge is the provider webhook entrypoint; httpapi.Listener calls
// Handle directly for each /listener request.
type Bridge struct {
	Executor Executor
	Repos         *store.Collection[models.RepoConfig, models.RepoInfo]
	Builds        *store.Collection[models.BuildConfig, models.BuildInfo]
	Deployments   *store.Collection[models.DeploymentConfig, models.DeploymentInfo]
	Stacks        *store.Collection[models.StackConfig, models.StackInfo]
	ResourceSyncs *store.Collection[models.ResourceSyncConfig, models.ResourceSyncInfo]

	locks keyedLocks
}

func New(executor Executor) *Bridge {
	return &Bridge{Executor: executor, locks: newKeyedLocks()}
}

// Handle runs the full bridge pipeline for one provider push (spec.md
// §4.8 steps 1-5). body is the raw request payload; signature is the
// X-Hub-Signature-256 header value verbatim.
func (b *Bridge) Handle(ctx context.Context, kind Kind, id, action string, body []byte, signature string) (models.Update, error) {
	unlock := b.locks.lock(string(kind) + ":" + id)
	defer unlock()

	target, err := b.lookup(kind, id)
	if err != nil {
		return models.Update{}, err
	}
	if !verifySignature(target.secret, body, signature) {
		return models.Update{}, rifterr.New(rifterr.KindAuthInvalid, "webhook signature mismatch for %s %s", kind, id)
	}
	if !target.enabled {
		return models.Update{}, rifterr.New(rifterr.KindPermissionDenied, "webhook disabled for %s %s", kind, id)
	}
	branch, err := pushedBranch(body)
	if err != nil {
		return models.Update{}, err
	}
	if target.branch != "" && branch != target.branch {
		return models.Update{}, rifterr.New(rifterr.KindInvalidConfig, "pushed branch %q does not match configured branch %q", branch, target.branch)
	}

	req, err := translate(kind, action, id)
	if err != nil {
		return models.Update{}, err
	}
	resourceTarget, err := b.Executor.TargetFor(req)
	if err != nil {
		return models.Update{}, err
	}
	return b.Executor.Execute(ctx, resourceTarget, req, syntheticUser)
}

func (b *Bridge) lookup(kind Kind, id string) (webhookTarget, error) {
	switch kind {
	case KindRepo:
		r, err := b.Repos.Get(id)
		return webhookTarget{r.Config.WebhookEnabled, r.Config.WebhookSecret, r.Config.Branch}, err
	case KindBuild:
		r, err := b.Builds.Get(id)
		return webhookTarget{r.Config.WebhookEnabled, r.Config.WebhookSecret, r.Config.Branch}, err
	case KindDeployment:
		r, err := b.Deployments.Get(id)
		return webhookTarget{r.Config.WebhookEnabled, r.Config.WebhookSecret, r.Config.Branch}, err
	case KindStack:
		r, err := b.Stacks.Get(id)
		return webhookTarget{r.Config.WebhookEnabled, r.Config.WebhookSecret, r.Config.Branch}, err
	case KindResourceSync:
		r, err := b.ResourceSyncs.Get(id)
		return webhookTarget{r.Config.WebhookEnabled, r.Config.WebhookSecret, r.Config.Branch}, err
	default:
		return webhookTarget{}, rifterr.New(rifterr.KindInvalidConfig, "unknown webhook resource kind %q", kind)
	}
}

// translate maps (kind, action) onto the ExecuteRequest tagged union
// (spec.md §4.8 step 5's examples: Repo+clone -> CloneRepo, Stack+deploy
// -> DeployStack, Sync+refresh -> a dry-run RunSync used to refresh the
// pending diff, Sync+execute -> a real RunSync).
func translate(kind Kind, action, id string) (models.ExecuteRequest, error) {
	switch {
	case kind == KindRepo && action == "clone":
		return models.ExecuteRequest{Type: models.OpCloneRepo, Params: &models.ParamsCloneRepo{Repo: id}}, nil
	case kind == KindRepo && action == "pull":
		return models.ExecuteRequest{Type: models.OpPullRepo, Params: &models.ParamsPullRepo{Repo: id}}, nil
	case kind == KindBuild && action == "run":
		return models.ExecuteRequest{Type: models.OpRunBuild, Params: &models.ParamsRunBuild{Build: id}}, nil
	case kind == KindDeployment && action == "deploy":
		return models.ExecuteRequest{Type: models.OpDeploy, Params: &models.ParamsDeploy{Deployment: id}}, nil
	case kind == KindStack && action == "deploy":
		return models.ExecuteRequest{Type: models.OpDeployStack, Params: &models.ParamsDeployStack{Stack: id}}, nil
	case kind == KindStack && action == "destroy":
		return models.ExecuteRequest{Type: models.OpDestroyStack, Params: &models.ParamsDestroyStack{Stack: id}}, nil
	case kind == KindResourceSync && action == "refresh":
		return models.ExecuteRequest{Type: models.OpRunSync, Params: &models.ParamsRunSync{ResourceSync: id, DryRun: true}}, nil
	case kind == KindResourceSync && action == "execute":
		return models.ExecuteRequest{Type: models.OpRunSync, Params: &models.ParamsRunSync{ResourceSync: id, DryRun: false}}, nil
	default:
		return models.ExecuteRequest{}, rifterr.New(rifterr.KindInvalidConfig, "no webhook translation for %s+%s", kind, action)
	}
}

// verifySignature checks header against HMAC-SHA256(secret, body) in
// the GitHub "sha256=<hex>" format, using a constant-time compare.
func verifySignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	got := mac.Sum(nil)
	return hmac.Equal(want, got)
}

// pushedBranch extracts the branch name from a GitHub-style push
// payload's `ref` field, stripping the refs/heads/ prefix.
func pushedBranch(body []byte) (string, error) {
	var payload struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", rifterr.Wrap(rifterr.KindInvalidConfig, err, "parsing webhook payload")
	}
	return strings.TrimPrefix(payload.Ref, "refs/heads/"), nil
}

// keyedLocks gives every (kind, id) pair its own mutex, held for the
// whole handler so simultaneous pushes to the same resource queue
// instead of interleaving (spec.md §4.8 step 1).
type keyedLocks struct {
	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

func newKeyedLocks() keyedLocks {
	return keyedLocks{byKey: map[string]*sync.Mutex{}}
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.byKey[key]
	if !ok {
		l = &sync.Mutex{}
		k.byKey[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

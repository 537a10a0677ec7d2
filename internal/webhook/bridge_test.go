package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
	"github.com/riftctl/rift/internal/webhook"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/rift-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeExecutor struct {
	executed []models.ExecuteRequest
	user     models.User
}

func (f *fakeExecutor) TargetFor(req models.ExecuteRequest) (models.ResourceTarget, error) {
	return models.NewTarget(models.ResourceTypeRepo, "r1"), nil
}

func (f *fakeExecutor) Execute(ctx context.Context, target models.ResourceTarget, req models.ExecuteRequest, user models.User) (models.Update, error) {
	f.executed = append(f.executed, req)
	f.user = user
	return models.Update{Success: true, Status: models.UpdateStatusComplete}, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newRepo(t *testing.T, s *store.Store, cfg models.RepoConfig) string {
	t.Helper()
	col := store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")
	r, err := col.Create("repo1", "", nil, cfg)
	require.NoError(t, err)
	return r.Id
}

func TestHandleRejectsBadSignature(t *testing.T) {
	s := openTestStore(t)
	id := newRepo(t, s, models.RepoConfig{ServerId: "srv1", Repo: "o/r", WebhookEnabled: true, WebhookSecret: "s3cret"})
	exec := &fakeExecutor{}
	b := webhook.New(exec)
	b.Repos = store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")

	body := []byte(`{"ref":"refs/heads/main"}`)
	_, err := b.Handle(context.Background(), webhook.KindRepo, id, "clone", body, "sha256=deadbeef")
	require.Error(t, err)
	require.Equal(t, rifterr.KindAuthInvalid, rifterr.KindOf(err))
	require.Empty(t, exec.executed)
}

func TestHandleRejectsWebhookDisabled(t *testing.T) {
	s := openTestStore(t)
	id := newRepo(t, s, models.RepoConfig{ServerId: "srv1", Repo: "o/r", WebhookEnabled: false, WebhookSecret: "s3cret"})
	exec := &fakeExecutor{}
	b := webhook.New(exec)
	b.Repos = store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")

	body := []byte(`{"ref":"refs/heads/main"}`)
	_, err := b.Handle(context.Background(), webhook.KindRepo, id, "clone", body, sign("s3cret", body))
	require.Error(t, err)
	require.Equal(t, rifterr.KindPermissionDenied, rifterr.KindOf(err))
}

func TestHandleRejectsBranchMismatch(t *testing.T) {
	s := openTestStore(t)
	id := newRepo(t, s, models.RepoConfig{ServerId: "srv1", Repo: "o/r", WebhookEnabled: true, WebhookSecret: "s3cret", Branch: "main"})
	exec := &fakeExecutor{}
	b := webhook.New(exec)
	b.Repos = store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")

	body := []byte(`{"ref":"refs/heads/feature-x"}`)
	_, err := b.Handle(context.Background(), webhook.KindRepo, id, "clone", body, sign("s3cret", body))
	require.Error(t, err)
	require.Equal(t, rifterr.KindInvalidConfig, rifterr.KindOf(err))
}

func TestHandleTranslatesRepoCloneAndRunsAsSyntheticUser(t *testing.T) {
	s := openTestStore(t)
	id := newRepo(t, s, models.RepoConfig{ServerId: "srv1", Repo: "o/r", WebhookEnabled: true, WebhookSecret: "s3cret", Branch: "main"})
	exec := &fakeExecutor{}
	b := webhook.New(exec)
	b.Repos = store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")

	body := []byte(`{"ref":"refs/heads/main"}`)
	update, err := b.Handle(context.Background(), webhook.KindRepo, id, "clone", body, sign("s3cret", body))
	require.NoError(t, err)
	require.True(t, update.Success)
	require.Len(t, exec.executed, 1)
	require.Equal(t, models.OpCloneRepo, exec.executed[0].Type)
	require.Equal(t, "git_webhook_user", exec.user.Id)
}

func TestHandleUnknownActionErrors(t *testing.T) {
	s := openTestStore(t)
	id := newRepo(t, s, models.RepoConfig{ServerId: "srv1", Repo: "o/r", WebhookEnabled: true, WebhookSecret: "s3cret"})
	exec := &fakeExecutor{}
	b := webhook.New(exec)
	b.Repos = store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")

	body := []byte(`{"ref":"refs/heads/main"}`)
	_, err := b.Handle(context.Background(), webhook.KindRepo, id, "launch-rocket", body, sign("s3cret", body))
	require.Error(t, err)
	require.Equal(t, rifterr.KindInvalidConfig, rifterr.KindOf(err))
}

package httpapi_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/riftctl/rift/internal/httpapi"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
	"github.com/riftctl/rift/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhookExecutor struct {
	executed []models.ExecuteRequest
}

func (f *fakeWebhookExecutor) TargetFor(req models.ExecuteRequest) (models.ResourceTarget, error) {
	return models.NewTarget(models.ResourceTypeRepo, "r1"), nil
}

func (f *fakeWebhookExecutor) Execute(ctx context.Context, target models.ResourceTarget, req models.ExecuteRequest, user models.User) (models.Update, error) {
	f.executed = append(f.executed, req)
	return models.Update{Id: "u1", Success: true}, nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newListenerRouter(t *testing.T, s *store.Store, exec *fakeWebhookExecutor) http.Handler {
	t.Helper()
	b := webhook.New(exec)
	b.Repos = store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")
	l := httpapi.NewListener(b)

	r := chi.NewRouter()
	r.Post("/listener/{provider}/{kind}/{id}/{action}", l.Handle)
	return r
}

func TestListenerTranslatesValidPushIntoExecute(t *testing.T) {
	s := openTestStore(t)
	repos := store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")
	repo, err := repos.Create("repo1", "", nil, models.RepoConfig{
		ServerId: "srv1", Repo: "o/r", WebhookEnabled: true, WebhookSecret: "s3cret", Branch: "main",
	})
	require.NoError(t, err)

	exec := &fakeWebhookExecutor{}
	router := newListenerRouter(t, s, exec)

	body := []byte(`{"ref":"refs/heads/main"}`)
	req := httptest.NewRequest(http.MethodPost, "/listener/github/repo/"+repo.Id+"/clone", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("s3cret", body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, exec.executed, 1)
	assert.Equal(t, models.OpCloneRepo, exec.executed[0].Type)
}

func TestListenerRejectsBadSignature(t *testing.T) {
	s := openTestStore(t)
	repos := store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos")
	repo, err := repos.Create("repo1", "", nil, models.RepoConfig{
		ServerId: "srv1", Repo: "o/r", WebhookEnabled: true, WebhookSecret: "s3cret",
	})
	require.NoError(t, err)

	exec := &fakeWebhookExecutor{}
	router := newListenerRouter(t, s, exec)

	body := []byte(`{"ref":"refs/heads/main"}`)
	req := httptest.NewRequest(http.MethodPost, "/listener/github/repo/"+repo.Id+"/clone", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, exec.executed)
}

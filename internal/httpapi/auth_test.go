package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/httpapi"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/rift-httpapi-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAuth(t *testing.T, s *store.Store) *httpapi.Auth {
	t.Helper()
	jwt, err := auth.NewJwtIssuer(time.Hour)
	require.NoError(t, err)
	a := httpapi.NewAuth(s.Records(), jwt, auth.NewExchangeBroker())
	a.Clock = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }
	return a
}

func doAuth(t *testing.T, a *httpapi.Auth, req models.AuthRequest) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body))
	w := httptest.NewRecorder()
	a.Handle(w, r)
	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestGetLoginOptionsNeedsNoToken(t *testing.T) {
	s := openTestStore(t)
	a := newAuth(t, s)

	w, out := doAuth(t, a, models.AuthRequest{Type: models.AuthGetLoginOptions, Params: &models.ParamsGetLoginOptions{}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["local"])
}

func TestCreateLocalUserFirstUserBecomesSuperAdmin(t *testing.T) {
	s := openTestStore(t)
	a := newAuth(t, s)

	w, out := doAuth(t, a, models.AuthRequest{
		Type:   models.AuthCreateLocalUser,
		Params: &models.ParamsCreateLocalUser{Username: "alice", Password: "s3cret12"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["super_admin"])

	w2, out2 := doAuth(t, a, models.AuthRequest{
		Type:   models.AuthCreateLocalUser,
		Params: &models.ParamsCreateLocalUser{Username: "bob", Password: "s3cret12"},
	})
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, false, out2["super_admin"])
}

func TestLoginThenExchangeYieldsJwt(t *testing.T) {
	s := openTestStore(t)
	a := newAuth(t, s)

	_, _ = doAuth(t, a, models.AuthRequest{
		Type:   models.AuthCreateLocalUser,
		Params: &models.ParamsCreateLocalUser{Username: "alice", Password: "s3cret12"},
	})

	w, out := doAuth(t, a, models.AuthRequest{
		Type:   models.AuthLoginLocalUser,
		Params: &models.ParamsLoginLocalUser{Username: "alice", Password: "s3cret12"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	exchangeToken, _ := out["exchange_token"].(string)
	require.NotEmpty(t, exchangeToken)

	w2, out2 := doAuth(t, a, models.AuthRequest{
		Type:   models.AuthExchangeForJwt,
		Params: &models.ParamsExchangeForJwt{ExchangeToken: exchangeToken},
	})
	require.Equal(t, http.StatusOK, w2.Code)
	jwt, _ := out2["jwt"].(string)
	require.NotEmpty(t, jwt)

	// Redeeming the same exchange token twice fails.
	w3, _ := doAuth(t, a, models.AuthRequest{
		Type:   models.AuthExchangeForJwt,
		Params: &models.ParamsExchangeForJwt{ExchangeToken: exchangeToken},
	})
	assert.Equal(t, http.StatusUnauthorized, w3.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := openTestStore(t)
	a := newAuth(t, s)
	_, _ = doAuth(t, a, models.AuthRequest{
		Type:   models.AuthCreateLocalUser,
		Params: &models.ParamsCreateLocalUser{Username: "alice", Password: "s3cret12"},
	})

	w, _ := doAuth(t, a, models.AuthRequest{
		Type:   models.AuthLoginLocalUser,
		Params: &models.ParamsLoginLocalUser{Username: "alice", Password: "wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetUserRequiresBearerToken(t *testing.T) {
	s := openTestStore(t)
	a := newAuth(t, s)

	body, err := json.Marshal(models.AuthRequest{Type: models.AuthGetUser, Params: &models.ParamsGetUser{}})
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body))
	w := httptest.NewRecorder()
	a.Handle(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareAttachesUserForValidToken(t *testing.T) {
	s := openTestStore(t)
	a := newAuth(t, s)
	u, err := s.Records().CreateUser(models.User{Username: "alice", Enabled: true})
	require.NoError(t, err)
	token, err := a.Jwt.Issue(u.Id, a.Clock())
	require.NoError(t, err)

	var seen models.User
	var resolveErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, resolveErr = httpapi.RequireUser(r)
	})
	r := httptest.NewRequest(http.MethodGet, "/anything", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(w, r)

	require.NoError(t, resolveErr)
	assert.Equal(t, "alice", seen.Username)
}

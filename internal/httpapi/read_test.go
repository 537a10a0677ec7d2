package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/riftctl/rift/internal/actionstate"
	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/httpapi"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRegistry wires every resource kind's collection so
// httpapi.NewRegistry can assemble the full adapter map; only Servers
// (and, for delete-side-effect tests, Builds) is exercised by these
// tests, the rest just need to exist.
func newTestRegistry(s *store.Store) (httpapi.Registry, *store.Collection[models.ServerConfig, models.ServerInfo], *store.Collection[models.BuildConfig, models.BuildInfo]) {
	servers := store.NewCollection[models.ServerConfig, models.ServerInfo](s, "servers")
	builds := store.NewCollection[models.BuildConfig, models.BuildInfo](s, "builds")
	reg := httpapi.NewRegistry(
		servers,
		store.NewCollection[models.DeploymentConfig, models.DeploymentInfo](s, "deployments"),
		builds,
		store.NewCollection[models.RepoConfig, models.RepoInfo](s, "repos"),
		store.NewCollection[models.StackConfig, models.StackInfo](s, "stacks"),
		store.NewCollection[models.ProcedureConfig, models.ProcedureInfo](s, "procedures"),
		store.NewCollection[models.ResourceSyncConfig, models.ResourceSyncInfo](s, "resource_syncs"),
		store.NewCollection[models.BuilderConfig, models.BuilderInfo](s, "builders"),
		store.NewCollection[models.AlerterConfig, models.AlerterInfo](s, "alerters"),
		store.NewCollection[models.ServerTemplateConfig, models.ServerTemplateInfo](s, "server_templates"),
		store.NewCollection[models.ActionConfig, models.ActionInfo](s, "actions"),
	)
	return reg, servers, builds
}

func doRead(t *testing.T, h *httpapi.Read, user models.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/read", bytes.NewReader(b))
	r = r.WithContext(httpapi.ContextWithUser(r.Context(), user))
	w := httptest.NewRecorder()
	h.Handle(w, r)
	return w
}

func TestReadGetReturnsResourceWhenCallerHasBaseLevel(t *testing.T) {
	s := openTestStore(t)
	reg, servers, _ := newTestRegistry(s)
	srv, err := servers.Create("web1", "", nil, models.ServerConfig{Address: "x"})
	require.NoError(t, err)

	base := auth.BaseLevels{models.ResourceTypeServer: models.PermissionRead}
	h := httpapi.NewRead(reg, s.Records(), actionstate.NewRegistry(), base)

	w := doRead(t, h, models.User{Id: "u1", Enabled: true}, map[string]interface{}{
		"resource_type": models.ResourceTypeServer,
		"verb":          "Get",
		"id_or_name":    srv.Id,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, srv.Id, got["id"])
}

func TestReadGetDeniedWithoutBaseLevel(t *testing.T) {
	s := openTestStore(t)
	reg, servers, _ := newTestRegistry(s)
	srv, err := servers.Create("web1", "", nil, models.ServerConfig{Address: "x"})
	require.NoError(t, err)

	h := httpapi.NewRead(reg, s.Records(), actionstate.NewRegistry(), auth.BaseLevels{})

	w := doRead(t, h, models.User{Id: "u1", Enabled: true}, map[string]interface{}{
		"resource_type": models.ResourceTypeServer,
		"verb":          "Get",
		"id_or_name":    srv.Id,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReadListFiltersToVisibleForNonAdmin(t *testing.T) {
	s := openTestStore(t)
	reg, servers, _ := newTestRegistry(s)
	visible, err := servers.Create("web1", "", nil, models.ServerConfig{Address: "x"})
	require.NoError(t, err)
	hidden, err := servers.Create("web2", "", nil, models.ServerConfig{Address: "y"})
	require.NoError(t, err)
	require.NoError(t, s.Records().SetOwner(models.NewTarget(models.ResourceTypeServer, visible.Id), "u1"))

	h := httpapi.NewRead(reg, s.Records(), actionstate.NewRegistry(), auth.BaseLevels{})

	w := doRead(t, h, models.User{Id: "u1", Enabled: true}, map[string]interface{}{
		"resource_type": models.ResourceTypeServer,
		"verb":          "List",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, visible.Id, got[0]["id"])
	_ = hidden
}

func TestReadListReturnsEverythingForAdmin(t *testing.T) {
	s := openTestStore(t)
	reg, servers, _ := newTestRegistry(s)
	_, err := servers.Create("web1", "", nil, models.ServerConfig{Address: "x"})
	require.NoError(t, err)
	_, err = servers.Create("web2", "", nil, models.ServerConfig{Address: "y"})
	require.NoError(t, err)

	h := httpapi.NewRead(reg, s.Records(), actionstate.NewRegistry(), auth.BaseLevels{})

	w := doRead(t, h, models.User{Id: "admin1", Enabled: true, Admin: true}, map[string]interface{}{
		"resource_type": models.ResourceTypeServer,
		"verb":          "List",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestReadListUsersRequiresAdmin(t *testing.T) {
	s := openTestStore(t)
	reg, _, _ := newTestRegistry(s)
	h := httpapi.NewRead(reg, s.Records(), actionstate.NewRegistry(), auth.BaseLevels{})

	w := doRead(t, h, models.User{Id: "u1", Enabled: true}, map[string]interface{}{"verb": "ListUsers"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

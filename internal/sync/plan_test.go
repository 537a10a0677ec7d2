package sync

import (
	"testing"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/rift-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func servers(s *store.Store) *store.Collection[models.ServerConfig, models.ServerInfo] {
	return store.NewCollection[models.ServerConfig, models.ServerInfo](s, "servers")
}

func TestPlanKindCreatesUndeclaredResource(t *testing.T) {
	s := openTestStore(t)
	docs := []ResourceDoc{{Name: "web1", Config: map[string]interface{}{"address": "10.0.0.1", "enabled": true}}}

	diffs, err := planKind(servers(s), models.ResourceTypeServer, docs, nil, false)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, PlanCreate, diffs[0].Action)
	require.Equal(t, "web1", diffs[0].Name)
}

func TestPlanKindSkipsUnchangedResource(t *testing.T) {
	s := openTestStore(t)
	_, err := servers(s).Create("web1", "d", nil, models.ServerConfig{Address: "10.0.0.1", Enabled: true})
	require.NoError(t, err)

	docs := []ResourceDoc{{Name: "web1", Description: "d", Config: map[string]interface{}{"address": "10.0.0.1", "enabled": true}}}
	diffs, err := planKind(servers(s), models.ResourceTypeServer, docs, nil, false)
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestPlanKindPlansUpdateOnChangedField(t *testing.T) {
	s := openTestStore(t)
	_, err := servers(s).Create("web1", "", nil, models.ServerConfig{Address: "10.0.0.1", Enabled: true})
	require.NoError(t, err)

	docs := []ResourceDoc{{Name: "web1", Config: map[string]interface{}{"address": "10.0.0.2", "enabled": true}}}
	diffs, err := planKind(servers(s), models.ResourceTypeServer, docs, nil, false)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, PlanUpdate, diffs[0].Action)
}

func TestPlanKindPlansDeleteWhenDeleteEnabled(t *testing.T) {
	s := openTestStore(t)
	_, err := servers(s).Create("web1", "", nil, models.ServerConfig{Address: "10.0.0.1"})
	require.NoError(t, err)

	diffs, err := planKind(servers(s), models.ResourceTypeServer, nil, nil, true)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, PlanDelete, diffs[0].Action)
	require.Equal(t, "web1", diffs[0].Name)
}

func TestPlanKindLeavesUndeclaredAloneWhenDeleteDisabled(t *testing.T) {
	s := openTestStore(t)
	_, err := servers(s).Create("web1", "", nil, models.ServerConfig{Address: "10.0.0.1"})
	require.NoError(t, err)

	diffs, err := planKind(servers(s), models.ResourceTypeServer, nil, nil, false)
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestApplyKindCreatesAndUpdatesAndDeletes(t *testing.T) {
	s := openTestStore(t)
	col := servers(s)
	builds := store.NewCollection[models.BuildConfig, models.BuildInfo](s, "builds")
	records := s.Records()

	createDiffs := []ResourceDiff{{Name: "web1", Action: PlanCreate, Proposed: models.ServerConfig{Address: "10.0.0.1"}}}
	require.NoError(t, applyKind(col, models.ResourceTypeServer, createDiffs, builds, records))
	r, err := col.Get("web1")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", r.Config.Address)

	updateDiffs := []ResourceDiff{{Name: "web1", Action: PlanUpdate, Description: "updated", Proposed: models.ServerConfig{Address: "10.0.0.2"}}}
	require.NoError(t, applyKind(col, models.ResourceTypeServer, updateDiffs, builds, records))
	r, err = col.Get("web1")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2", r.Config.Address)
	require.Equal(t, "updated", r.Description)

	deleteDiffs := []ResourceDiff{{Name: "web1", Action: PlanDelete}}
	require.NoError(t, applyKind(col, models.ResourceTypeServer, deleteDiffs, builds, records))
	_, err = col.Get("web1")
	require.Error(t, err)
}

func TestPlanUserGroupsCreateUpdateDelete(t *testing.T) {
	s := openTestStore(t)
	records := s.Records()

	docs := []ResourceDoc{{Name: "ops", Config: map[string]interface{}{"user_ids": []interface{}{"u1", "u2"}}}}
	diffs, err := planUserGroups(records, docs, false)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, PlanCreate, diffs[0].Action)
	require.NoError(t, applyUserGroups(records, diffs))

	g, err := records.GetUserGroup("ops")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u2"}, g.UserIds)

	docs = []ResourceDoc{{Name: "ops", Config: map[string]interface{}{"user_ids": []interface{}{"u1", "u3"}}}}
	diffs, err = planUserGroups(records, docs, false)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, PlanUpdate, diffs[0].Action)
	require.NoError(t, applyUserGroups(records, diffs))

	diffs, err = planUserGroups(records, nil, true)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, PlanDelete, diffs[0].Action)
	require.NoError(t, applyUserGroups(records, diffs))

	_, err = records.GetUserGroup("ops")
	require.Error(t, err)
}

func TestPlanVariablesCreateUpdateDelete(t *testing.T) {
	s := openTestStore(t)
	records := s.Records()

	docs := []ResourceDoc{{Name: "region", Description: "deploy region", Config: map[string]interface{}{"value": "us-east"}}}
	diffs, err := planVariables(records, docs, false)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.NoError(t, applyVariables(records, diffs))

	v, err := records.GetVariable("region")
	require.NoError(t, err)
	require.Equal(t, "us-east", v.Value)

	diffs, err = planVariables(records, nil, true)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, PlanDelete, diffs[0].Action)
	require.NoError(t, applyVariables(records, diffs))

	_, err = records.GetVariable("region")
	require.Error(t, err)
}

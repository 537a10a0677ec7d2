package store

import (
	"testing"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserUniqueUsername(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()

	_, err := r.CreateUser(models.User{Username: "alice"})
	require.NoError(t, err)

	_, err = r.CreateUser(models.User{Username: "alice"})
	require.Error(t, err)
	assert.Equal(t, rifterr.KindAlreadyExists, rifterr.KindOf(err))
}

func TestGetUserByIdOrUsername(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()
	created, err := r.CreateUser(models.User{Username: "alice"})
	require.NoError(t, err)

	byId, err := r.GetUser(created.Id)
	require.NoError(t, err)
	assert.Equal(t, "alice", byId.Username)

	byName, err := r.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, created.Id, byName.Id)
}

func TestGroupsForUser(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()
	u, err := r.CreateUser(models.User{Username: "alice"})
	require.NoError(t, err)

	_, err = r.CreateUserGroup(models.UserGroup{Name: "ops", UserIds: []string{u.Id}})
	require.NoError(t, err)
	_, err = r.CreateUserGroup(models.UserGroup{Name: "billing", UserIds: []string{"someone-else"}})
	require.NoError(t, err)

	groups, err := r.GroupsForUser(u.Id)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "ops", groups[0].Name)
}

func TestFindUnresolvedAlertEnforcesAtMostOne(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()
	target := models.NewTarget(models.ResourceTypeServer, "srv-1")

	_, err := r.PutAlert(models.Alert{Target: target, Variant: models.AlertServerCpu, Severity: models.SeverityWarning})
	require.NoError(t, err)

	found, err := r.FindUnresolvedAlert(target, models.AlertServerCpu)
	require.NoError(t, err)
	require.NotNil(t, found)

	notFound, err := r.FindUnresolvedAlert(target, models.AlertServerMem)
	require.NoError(t, err)
	assert.Nil(t, notFound)
}

func TestFindUnresolvedAlertIgnoresResolved(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()
	target := models.NewTarget(models.ResourceTypeServer, "srv-1")

	a, err := r.PutAlert(models.Alert{Target: target, Variant: models.AlertServerCpu})
	require.NoError(t, err)
	a.Resolve(s.Now())
	_, err = r.PutAlert(a)
	require.NoError(t, err)

	found, err := r.FindUnresolvedAlert(target, models.AlertServerCpu)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestVariableCRUD(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()

	_, err := r.UpsertVariable(models.Variable{Name: "REGION", Value: "us-east"})
	require.NoError(t, err)

	got, err := r.GetVariable("REGION")
	require.NoError(t, err)
	assert.Equal(t, "us-east", got.Value)

	require.NoError(t, r.DeleteVariable("REGION"))
	_, err = r.GetVariable("REGION")
	assert.Error(t, err)
}

func TestOwnershipSetGetClear(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()
	target := models.NewTarget(models.ResourceTypeDeployment, "dep-1")

	_, ok := r.GetOwner(target)
	assert.False(t, ok)

	require.NoError(t, r.SetOwner(target, "u1"))
	owner, ok := r.GetOwner(target)
	require.True(t, ok)
	assert.Equal(t, "u1", owner)

	require.NoError(t, r.ClearOwner(target))
	_, ok = r.GetOwner(target)
	assert.False(t, ok)
}

func TestPutStatAndListStatsFiltersByServer(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()

	_, err := r.PutStat(models.Stat{ServerId: "srv-1", CpuPercent: 10})
	require.NoError(t, err)
	_, err = r.PutStat(models.Stat{ServerId: "srv-2", CpuPercent: 20})
	require.NoError(t, err)

	stats, err := r.ListStats("srv-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 10.0, stats[0].CpuPercent)
}

func TestPruneStatsOlderThanDeletesOnlyStale(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := r.PutStat(models.Stat{ServerId: "srv-1", Ts: old})
	require.NoError(t, err)
	_, err = r.PutStat(models.Stat{ServerId: "srv-1", Ts: recent})
	require.NoError(t, err)

	n, err := r.PruneStatsOlderThan(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := r.ListStats("srv-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.True(t, stats[0].Ts.Equal(recent))
}

func TestPruneAlertsOlderThanKeepsUnresolvedRegardlessOfAge(t *testing.T) {
	s := openTestStore(t)
	r := s.Records()
	target := models.NewTarget(models.ResourceTypeServer, "srv-1")
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.PutAlert(models.Alert{Target: target, Variant: models.AlertServerCpu, Ts: old, Resolved: true})
	require.NoError(t, err)
	unresolved, err := r.PutAlert(models.Alert{Target: target, Variant: models.AlertServerMem, Ts: old})
	require.NoError(t, err)

	n, err := r.PruneAlertsOlderThan(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := r.ListAlerts(nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, unresolved.Id, remaining[0].Id)
}

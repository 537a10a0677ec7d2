package updatelog

import (
	"testing"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/rift-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMakeUpdateIsQueued(t *testing.T) {
	s := openTestStore(t)
	p := NewPipeline(s.Records(), nil, nil)
	target := models.NewTarget(models.ResourceTypeDeployment, "dep-1")

	u := p.MakeUpdate(target, models.OpDeploy, "user-1")
	assert.Equal(t, models.UpdateStatusQueued, u.Status)
	assert.NotEmpty(t, u.Id)
	assert.Equal(t, target, u.Target)
}

func TestAddUpdatePersistsAndReturnsSameId(t *testing.T) {
	s := openTestStore(t)
	p := NewPipeline(s.Records(), nil, nil)
	target := models.NewTarget(models.ResourceTypeDeployment, "dep-1")

	u := p.MakeUpdate(target, models.OpDeploy, "user-1")
	saved, err := p.AddUpdate(u)
	require.NoError(t, err)
	assert.Equal(t, u.Id, saved.Id)

	fetched, err := s.Records().GetUpdate(saved.Id)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateStatusQueued, fetched.Status)
}

func TestUpdateUpdateOverwritesAndFinalizes(t *testing.T) {
	s := openTestStore(t)
	p := NewPipeline(s.Records(), nil, nil)
	target := models.NewTarget(models.ResourceTypeBuild, "build-1")

	u := p.MakeUpdate(target, models.OpRunBuild, "user-1")
	u, err := p.AddUpdate(u)
	require.NoError(t, err)

	u.AddLog(models.Log{Stage: "build", Success: true, StartTs: time.Now(), EndTs: time.Now()})
	u.Finalize(time.Now())
	saved, err := p.UpdateUpdate(u)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateStatusComplete, saved.Status)
	assert.True(t, saved.Success)
}

func TestSweepAbandonedFinalizesInProgress(t *testing.T) {
	s := openTestStore(t)
	p := NewPipeline(s.Records(), nil, nil)
	target := models.NewTarget(models.ResourceTypeDeployment, "dep-1")

	stuck := p.MakeUpdate(target, models.OpDeploy, "user-1")
	stuck.Status = models.UpdateStatusInProgress
	stuck, err := p.AddUpdate(stuck)
	require.NoError(t, err)

	require.NoError(t, p.SweepAbandoned())

	got, err := s.Records().GetUpdate(stuck.Id)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateStatusComplete, got.Status)
	assert.False(t, got.Success)
	require.Len(t, got.Logs, 1)
}

func TestSweepAbandonedLeavesCompleteAlone(t *testing.T) {
	s := openTestStore(t)
	p := NewPipeline(s.Records(), nil, nil)
	target := models.NewTarget(models.ResourceTypeDeployment, "dep-1")

	u := p.MakeUpdate(target, models.OpDeploy, "user-1")
	u.Finalize(time.Now())
	u, err := p.AddUpdate(u)
	require.NoError(t, err)

	require.NoError(t, p.SweepAbandoned())

	got, err := s.Records().GetUpdate(u.Id)
	require.NoError(t, err)
	assert.Empty(t, got.Logs)
}

func TestPublishBroadcastsToHub(t *testing.T) {
	s := openTestStore(t)
	hub := NewHub()

	p := NewPipeline(s.Records(), hub, nil)
	target := models.NewTarget(models.ResourceTypeDeployment, "dep-1")
	u := p.MakeUpdate(target, models.OpDeploy, "")

	select {
	case <-hub.broadcast:
		t.Fatal("unexpected broadcast before AddUpdate")
	default:
	}

	_, err := p.AddUpdate(u)
	require.NoError(t, err)

	select {
	case msg := <-hub.broadcast:
		item, ok := msg.(models.ListItem)
		require.True(t, ok)
		assert.Equal(t, u.Id, item.Id)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast message")
	}
}

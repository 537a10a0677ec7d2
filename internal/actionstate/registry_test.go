package actionstate

import (
	"testing"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireThenBusyUntilReleased(t *testing.T) {
	r := NewRegistry()
	target := models.NewTarget(models.ResourceTypeDeployment, "dep-1")

	guard, err := r.Acquire(target, func(s *models.ActionState) { s.Deploying = true })
	require.NoError(t, err)
	assert.True(t, r.Get(target).Deploying)

	_, err = r.Acquire(target, func(s *models.ActionState) { s.Deploying = true })
	require.Error(t, err)
	assert.Equal(t, rifterr.KindBusy, rifterr.KindOf(err))

	guard.Release()
	assert.True(t, r.Get(target).IsIdle())

	_, err = r.Acquire(target, func(s *models.ActionState) { s.Deploying = true })
	require.NoError(t, err)
}

func TestDifferentFlagsSameResourceStillConflict(t *testing.T) {
	r := NewRegistry()
	target := models.NewTarget(models.ResourceTypeServer, "srv-1")

	guard, err := r.Acquire(target, func(s *models.ActionState) { s.Pulling = true })
	require.NoError(t, err)
	defer guard.Release()

	_, err = r.Acquire(target, func(s *models.ActionState) { s.Building = true })
	require.Error(t, err)
	assert.Equal(t, rifterr.KindBusy, rifterr.KindOf(err))
}

func TestDifferentResourcesDoNotConflict(t *testing.T) {
	r := NewRegistry()
	a := models.NewTarget(models.ResourceTypeServer, "srv-1")
	b := models.NewTarget(models.ResourceTypeServer, "srv-2")

	guardA, err := r.Acquire(a, func(s *models.ActionState) { s.Pulling = true })
	require.NoError(t, err)
	defer guardA.Release()

	guardB, err := r.Acquire(b, func(s *models.ActionState) { s.Pulling = true })
	require.NoError(t, err)
	defer guardB.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	target := models.NewTarget(models.ResourceTypeBuild, "build-1")
	guard, err := r.Acquire(target, func(s *models.ActionState) { s.Building = true })
	require.NoError(t, err)

	guard.Release()
	assert.NotPanics(t, func() { guard.Release() })
	assert.True(t, r.Get(target).IsIdle())
}

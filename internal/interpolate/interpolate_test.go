package interpolate_test

import (
	"testing"

	"github.com/riftctl/rift/internal/interpolate"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
	"github.com/stretchr/testify/require"
)

func openRecords(t *testing.T) *store.Records {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/rift.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.Records()
}

func TestStringResolvesKnownVariable(t *testing.T) {
	records := openRecords(t)
	_, err := records.UpsertVariable(models.Variable{Name: "REGISTRY", Value: "ghcr.io/acme"})
	require.NoError(t, err)

	got := interpolate.String(records, "[[REGISTRY]]/app:latest")
	require.Equal(t, "ghcr.io/acme/app:latest", got)
}

func TestStringLeavesUnknownReferenceLiteral(t *testing.T) {
	records := openRecords(t)
	got := interpolate.String(records, "value=[[MISSING]]")
	require.Equal(t, "value=[[MISSING]]", got)
}

func TestStringWithoutReferencesIsUnchanged(t *testing.T) {
	records := openRecords(t)
	got := interpolate.String(records, "plain string")
	require.Equal(t, "plain string", got)
}

func TestMapInterpolatesEveryValue(t *testing.T) {
	records := openRecords(t)
	_, err := records.UpsertVariable(models.Variable{Name: "DB_HOST", Value: "db.internal"})
	require.NoError(t, err)

	out := interpolate.Map(records, map[string]string{
		"DATABASE_URL": "postgres://[[DB_HOST]]:5432/app",
		"STATIC":       "unchanged",
	})
	require.Equal(t, "postgres://db.internal:5432/app", out["DATABASE_URL"])
	require.Equal(t, "unchanged", out["STATIC"])
}

func TestMapNilInputReturnsNil(t *testing.T) {
	records := openRecords(t)
	require.Nil(t, interpolate.Map(records, nil))
}

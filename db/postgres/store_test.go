package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
)

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func TestScanSnapshotPassesErrors(t *testing.T) {
	_, err := scanSnapshot(errRow{err: sql.ErrNoRows})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPublishRequiresCatalog(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Publish(context.Background(), nil, "")
	assert.EqualError(t, err, "catalog is required")
}

func TestWithoutMigrateSkipsSchema(t *testing.T) {
	// a nil pool would panic if the DDL ran
	s := NewStore(nil).WithMigrate(false)
	assert.NoError(t, s.ensureSchema(context.Background()))
	assert.True(t, NewStore(nil).migrate)
}

// TestPublishAndLoad runs against a real database when
// DIAGRAMS_TEST_POSTGRES_DSN is set.
func TestPublishAndLoad(t *testing.T) {
	dsn := os.Getenv("DIAGRAMS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DIAGRAMS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := Open(dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.WithMigrate(false).Migrate(ctx))

	cat, _, err := catalog.LoadEmbedded(ctx)
	require.NoError(t, err)

	snap, err := s.Publish(ctx, cat, "test")
	require.NoError(t, err)
	assert.True(t, snap.IsActive)

	active, err := s.ActiveSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, snap.ID, active.ID)

	reloaded, report, err := catalog.Load(ctx, s.ActiveSource())
	require.NoError(t, err)
	assert.False(t, report.Degraded())
	assert.Equal(t, cat.Hash(), reloaded.Hash())

	snaps, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snaps)
}

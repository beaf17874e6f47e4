package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvqphuoc01/diagram-mcp/db/clickhouse"
	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
)

type fakeStore struct {
	snapshots map[uuid.UUID]*clickhouse.CatalogSnapshot
	records   map[uuid.UUID][]clickhouse.RecordRow
	batches   int
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots: make(map[uuid.UUID]*clickhouse.CatalogSnapshot),
		records:   make(map[uuid.UUID][]clickhouse.RecordRow),
	}
}

func (f *fakeStore) CreateSnapshot(_ context.Context, s *clickhouse.CatalogSnapshot) error {
	cp := *s
	f.snapshots[s.ID] = &cp
	return nil
}

func (f *fakeStore) BulkInsertRecords(_ context.Context, rows []clickhouse.RecordRow) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.batches++
	for _, r := range rows {
		f.records[r.SnapshotID] = append(f.records[r.SnapshotID], r)
	}
	return nil
}

func (f *fakeStore) ActivateSnapshot(_ context.Context, id uuid.UUID) error {
	if _, ok := f.snapshots[id]; !ok {
		return errors.New("snapshot not found")
	}
	for sid, s := range f.snapshots {
		s.IsActive = sid == id
	}
	return nil
}

func (f *fakeStore) GetActiveSnapshot(context.Context) (*clickhouse.CatalogSnapshot, error) {
	for _, s := range f.snapshots {
		if s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CountRecords(_ context.Context, id uuid.UUID) (int, error) {
	return len(f.records[id]), nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.MustNew(
		catalog.ServiceRecord{Provider: catalog.AWS, Category: "compute", Name: "EC2"},
		catalog.ServiceRecord{Provider: catalog.AWS, Category: "compute", Name: "Lambda"},
		catalog.ServiceRecord{Provider: catalog.AWS, Category: "database", Name: "RDS"},
		catalog.ServiceRecord{Provider: catalog.GCP, Category: "database", Name: "SQL"},
		catalog.ServiceRecord{Provider: catalog.Azure, Category: "network", Name: "LoadBalancers"},
	)
}

func TestPublish(t *testing.T) {
	store := newFakeStore()
	a := NewClickHouseAdapter(store).WithBatchSize(2).WithLogger(zerolog.Nop())
	cat := testCatalog(t)

	res, err := a.Publish(context.Background(), &PublishInput{Catalog: cat})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Equal(t, 5, res.RecordCount)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 3, store.batches)

	snap := store.snapshots[res.SnapshotID]
	require.NotNil(t, snap)
	assert.True(t, snap.IsActive)
	assert.Equal(t, cat.Hash(), snap.Hash)
	assert.Equal(t, "1", snap.Version)
	assert.Len(t, store.records[res.SnapshotID], 5)

	stats, err := a.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.SnapshotID, stats.ActiveSnapshotID)
	assert.Equal(t, 5, stats.RecordCount)
	assert.InDelta(t, 1.0, stats.Coverage, 1e-9)
}

func TestPublishSkipsUnchangedCatalog(t *testing.T) {
	store := newFakeStore()
	a := NewClickHouseAdapter(store).WithLogger(zerolog.Nop())
	cat := testCatalog(t)

	first, err := a.Publish(context.Background(), &PublishInput{Catalog: cat})
	require.NoError(t, err)

	again, err := a.Publish(context.Background(), &PublishInput{Catalog: cat})
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, first.SnapshotID, again.SnapshotID)
	assert.Len(t, store.snapshots, 1)

	forced, err := a.Publish(context.Background(), &PublishInput{Catalog: cat, Force: true, Version: "2"})
	require.NoError(t, err)
	assert.False(t, forced.Skipped)
	assert.NotEqual(t, first.SnapshotID, forced.SnapshotID)
	assert.False(t, store.snapshots[first.SnapshotID].IsActive)
	assert.True(t, store.snapshots[forced.SnapshotID].IsActive)
}

func TestPublishLeavesSnapshotInactiveOnFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("disk full")
	a := NewClickHouseAdapter(store).WithLogger(zerolog.Nop())

	res, err := a.Publish(context.Background(), &PublishInput{Catalog: testCatalog(t)})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "disk full")
	assert.False(t, store.snapshots[res.SnapshotID].IsActive)

	stats, err := a.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.IsActive)
}

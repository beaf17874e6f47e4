package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
)

type staticSource struct {
	docs []catalog.Document
}

func (s staticSource) Name() string { return "static" }
func (s staticSource) Documents(context.Context) ([]catalog.Document, error) {
	return s.docs, nil
}

func TestRecordRowsRoundTrip(t *testing.T) {
	cat, _, err := catalog.LoadEmbedded(context.Background())
	require.NoError(t, err)

	id := uuid.New()
	rows := RecordRows(id, cat)
	require.Len(t, rows, cat.Len())
	for _, r := range rows {
		assert.Equal(t, id, r.SnapshotID)
	}

	reloaded, report, err := catalog.Load(context.Background(), staticSource{docs: GroupDocuments(rows)})
	require.NoError(t, err)
	assert.False(t, report.Degraded())
	assert.Equal(t, cat.Len(), reloaded.Len())
	assert.Equal(t, cat.Hash(), reloaded.Hash())
}

func TestGroupDocuments(t *testing.T) {
	rows := []RecordRow{
		{Provider: "gcp", Category: "database", Name: "SQL"},
		{Provider: "aws", Category: "compute", Name: "EC2", Aliases: []string{"server"}},
		{Provider: "gcp", Category: "compute", Name: "Run"},
	}
	docs := GroupDocuments(rows)
	require.Len(t, docs, 2)
	assert.Equal(t, catalog.GCP, docs[0].Provider)
	assert.Len(t, docs[0].Records, 2)
	assert.Equal(t, catalog.AWS, docs[1].Provider)
	assert.Equal(t, []string{"server"}, docs[1].Records[0].Aliases)

	assert.Empty(t, GroupDocuments(nil))
}

type fakeRow struct {
	err  error
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.vals {
		switch d := dest[i].(type) {
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		case *string:
			*d = v.(string)
		case *uint32:
			*d = v.(uint32)
		case *uint8:
			*d = v.(uint8)
		case *time.Time:
			*d = v.(time.Time)
		}
	}
	return nil
}

func TestScanSnapshot(t *testing.T) {
	t.Run("no rows", func(t *testing.T) {
		s, err := scanSnapshot(fakeRow{err: sql.ErrNoRows})
		assert.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("error", func(t *testing.T) {
		_, err := scanSnapshot(fakeRow{err: errors.New("down")})
		assert.EqualError(t, err, "down")
	})

	t.Run("row", func(t *testing.T) {
		id := uuid.New()
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		s, err := scanSnapshot(fakeRow{vals: []any{id, "embedded", "abc", "1", uint32(42), uint8(1), created}})
		require.NoError(t, err)
		assert.Equal(t, &CatalogSnapshot{
			ID: id, Source: "embedded", Hash: "abc", Version: "1",
			RecordCount: 42, IsActive: true, CreatedAt: created,
		}, s)
	})
}

func TestBoolToUInt8(t *testing.T) {
	assert.Equal(t, uint8(1), boolToUInt8(true))
	assert.Equal(t, uint8(0), boolToUInt8(false))
}

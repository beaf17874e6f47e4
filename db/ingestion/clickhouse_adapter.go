// Package ingestion publishes service catalogs into snapshot storage
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tvqphuoc01/diagram-mcp/db/clickhouse"
	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
)

// DefaultBatchSize is the number of records sent per batch insert
const DefaultBatchSize = 1000

// SnapshotStore is the part of the ClickHouse store the publisher needs
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snapshot *clickhouse.CatalogSnapshot) error
	BulkInsertRecords(ctx context.Context, records []clickhouse.RecordRow) error
	ActivateSnapshot(ctx context.Context, id uuid.UUID) error
	GetActiveSnapshot(ctx context.Context) (*clickhouse.CatalogSnapshot, error)
	CountRecords(ctx context.Context, snapshotID uuid.UUID) (int, error)
}

// ClickHouseAdapter publishes a loaded catalog as a new ClickHouse snapshot
type ClickHouseAdapter struct {
	store     SnapshotStore
	batchSize int
	logger    zerolog.Logger
}

// NewClickHouseAdapter creates a new ClickHouse adapter
func NewClickHouseAdapter(store SnapshotStore) *ClickHouseAdapter {
	return &ClickHouseAdapter{store: store, batchSize: DefaultBatchSize, logger: log.Logger}
}

// WithBatchSize overrides the batch insert size
func (a *ClickHouseAdapter) WithBatchSize(n int) *ClickHouseAdapter {
	if n > 0 {
		a.batchSize = n
	}
	return a
}

// WithLogger sets the logger
func (a *ClickHouseAdapter) WithLogger(l zerolog.Logger) *ClickHouseAdapter {
	a.logger = l
	return a
}

// PublishInput contains the catalog to publish
type PublishInput struct {
	Catalog *catalog.Catalog
	Version string
	// Force publishes even when the active snapshot already has the same content
	Force bool
}

// PublishResult tracks the result of a catalog publish
type PublishResult struct {
	SnapshotID   uuid.UUID     `json:"snapshot_id"`
	Source       string        `json:"source"`
	Hash         string        `json:"hash"`
	RecordCount  int           `json:"record_count"`
	Batches      int           `json:"batches"`
	Duration     time.Duration `json:"duration"`
	Skipped      bool          `json:"skipped"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Publish writes the catalog as an inactive snapshot, inserts its records
// in batches and activates the snapshot once every record is stored.
func (a *ClickHouseAdapter) Publish(ctx context.Context, input *PublishInput) (*PublishResult, error) {
	startTime := time.Now()
	cat := input.Catalog
	result := &PublishResult{
		Source: cat.Source(),
		Hash:   cat.Hash(),
	}

	if !input.Force {
		active, err := a.store.GetActiveSnapshot(ctx)
		if err != nil {
			result.ErrorMessage = err.Error()
			return result, err
		}
		if active != nil && active.Hash == result.Hash {
			result.SnapshotID = active.ID
			result.RecordCount = active.RecordCount
			result.Skipped = true
			result.Success = true
			result.Duration = time.Since(startTime)
			a.logger.Info().Str("snapshot", active.ID.String()).Msg("Catalog unchanged, publish skipped")
			return result, nil
		}
	}

	version := input.Version
	if version == "" {
		version = "1"
	}
	snapshot := &clickhouse.CatalogSnapshot{
		ID:          uuid.New(),
		Source:      cat.Source(),
		Hash:        cat.Hash(),
		Version:     version,
		RecordCount: cat.Len(),
		IsActive:    false,
	}
	if err := a.store.CreateSnapshot(ctx, snapshot); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to create snapshot: %v", err)
		return result, err
	}
	result.SnapshotID = snapshot.ID

	rows := clickhouse.RecordRows(snapshot.ID, cat)
	for i := 0; i < len(rows); i += a.batchSize {
		end := min(i+a.batchSize, len(rows))
		if err := a.store.BulkInsertRecords(ctx, rows[i:end]); err != nil {
			result.ErrorMessage = fmt.Sprintf("failed to bulk insert records at batch %d: %v", i/a.batchSize, err)
			return result, err
		}
		result.RecordCount += end - i
		result.Batches++
	}

	if err := a.store.ActivateSnapshot(ctx, snapshot.ID); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to activate snapshot: %v", err)
		return result, err
	}

	result.Success = true
	result.Duration = time.Since(startTime)
	a.logger.Info().
		Str("snapshot", snapshot.ID.String()).
		Int("records", result.RecordCount).
		Int("batches", result.Batches).
		Dur("duration", result.Duration).
		Msg("Catalog published")
	return result, nil
}

// Stats returns statistics about the active snapshot
func (a *ClickHouseAdapter) Stats(ctx context.Context) (*PublishStats, error) {
	stats := &PublishStats{}

	snapshot, err := a.store.GetActiveSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return stats, nil
	}

	stats.ActiveSnapshotID = snapshot.ID
	stats.Hash = snapshot.Hash
	stats.LastUpdated = snapshot.CreatedAt
	stats.IsActive = true
	stats.ExpectedRecords = snapshot.RecordCount

	count, err := a.store.CountRecords(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}
	stats.RecordCount = count
	if snapshot.RecordCount > 0 {
		stats.Coverage = float64(count) / float64(snapshot.RecordCount)
	}
	return stats, nil
}

// PublishStats contains statistics about the published catalog
type PublishStats struct {
	ActiveSnapshotID uuid.UUID `json:"active_snapshot_id"`
	Hash             string    `json:"hash,omitempty"`
	LastUpdated      time.Time `json:"last_updated"`
	IsActive         bool      `json:"is_active"`
	RecordCount      int       `json:"record_count"`
	ExpectedRecords  int       `json:"expected_records"`
	Coverage         float64   `json:"coverage"`
}

// Package postgres keeps catalog snapshots in a Postgres database and serves
// the active one as a catalog source.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS catalog_snapshots (
  id UUID PRIMARY KEY,
  source TEXT NOT NULL,
  hash TEXT NOT NULL,
  version TEXT NOT NULL DEFAULT '1',
  record_count INTEGER NOT NULL DEFAULT 0,
  is_active BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS service_catalog (
  snapshot_id UUID NOT NULL REFERENCES catalog_snapshots (id) ON DELETE CASCADE,
  provider TEXT NOT NULL,
  category TEXT NOT NULL,
  name TEXT NOT NULL,
  aliases TEXT[] NOT NULL DEFAULT '{}',
  import_path TEXT NOT NULL DEFAULT '',
  icon_ref TEXT NOT NULL DEFAULT '',
  service_code TEXT NOT NULL DEFAULT '',
  UNIQUE (snapshot_id, provider, name)
);
CREATE INDEX IF NOT EXISTS idx_catalog_snapshots_active ON catalog_snapshots (is_active);
`

// Snapshot is one published version of the catalog
type Snapshot struct {
	ID          uuid.UUID `json:"id"`
	Source      string    `json:"source"`
	Hash        string    `json:"hash"`
	Version     string    `json:"version"`
	RecordCount int       `json:"record_count"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store reads and writes catalog snapshots
type Store struct {
	db      *sql.DB
	migrate bool

	schemaOnce sync.Once
	schemaErr  error
}

// Open connects to Postgres with the lib/pq driver
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing connection pool. The schema is created on
// first use unless WithMigrate(false) is set.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, migrate: true}
}

// WithMigrate controls whether the store creates its tables on first use.
// Without it every call expects the tables to exist.
func (s *Store) WithMigrate(enabled bool) *Store {
	s.migrate = enabled
	return s
}

// Migrate creates the catalog tables if missing
func (s *Store) Migrate(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schemaDDL)
	})
	if s.schemaErr != nil {
		return fmt.Errorf("failed to apply schema: %w", s.schemaErr)
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if !s.migrate {
		return nil
	}
	return s.Migrate(ctx)
}

// Publish stores the catalog as a new snapshot and makes it the active one.
// Everything happens in one transaction.
func (s *Store) Publish(ctx context.Context, cat *catalog.Catalog, version string) (*Snapshot, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if version == "" {
		version = "1"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := &Snapshot{
		ID:          uuid.New(),
		Source:      cat.Source(),
		Hash:        cat.Hash(),
		Version:     version,
		RecordCount: cat.Len(),
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `UPDATE catalog_snapshots SET is_active = FALSE WHERE is_active`); err != nil {
		return nil, fmt.Errorf("failed to deactivate snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO catalog_snapshots (id, source, hash, version, record_count, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		snap.ID, snap.Source, snap.Hash, snap.Version, snap.RecordCount, snap.IsActive, snap.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("service_catalog",
		"snapshot_id", "provider", "category", "name", "aliases", "import_path", "icon_ref", "service_code"))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, rec := range cat.All() {
		if _, err := stmt.ExecContext(ctx, snap.ID, string(rec.Provider), string(rec.Category), rec.Name,
			pq.Array(rec.Aliases), rec.ImportPath, rec.IconRef, rec.ServiceCode); err != nil {
			_ = stmt.Close()
			return nil, fmt.Errorf("failed to copy %s: %w", rec.Key(), err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return nil, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return nil, fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return snap, nil
}

// ActiveSnapshot returns the active snapshot; nil when none is active
func (s *Store) ActiveSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, source, hash, version, record_count, is_active, created_at
FROM catalog_snapshots WHERE is_active LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots lists snapshots, newest first
func (s *Store) ListSnapshots(ctx context.Context) ([]*Snapshot, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, hash, version, record_count, is_active, created_at
FROM catalog_snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Records returns the service records of a snapshot
func (s *Store) Records(ctx context.Context, snapshotID uuid.UUID) ([]catalog.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, category, name, aliases, import_path, icon_ref, service_code
FROM service_catalog WHERE snapshot_id = $1 ORDER BY provider, name`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []catalog.ServiceRecord
	for rows.Next() {
		var rec catalog.ServiceRecord
		var provider, category string
		if err := rows.Scan(&provider, &category, &rec.Name, pq.Array(&rec.Aliases),
			&rec.ImportPath, &rec.IconRef, &rec.ServiceCode); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Provider = catalog.Provider(provider)
		rec.Category = catalog.Category(category)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ActiveSource serves the active snapshot as a catalog source
func (s *Store) ActiveSource() catalog.Source {
	return &source{store: s}
}

type source struct {
	store *Store
}

func (src *source) Name() string { return "postgres" }

func (src *source) Documents(ctx context.Context) ([]catalog.Document, error) {
	snap, err := src.store.ActiveSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("no active catalog snapshot")
	}
	recs, err := src.store.Records(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return catalog.GroupByProvider(recs), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	if err := row.Scan(&snap.ID, &snap.Source, &snap.Hash, &snap.Version,
		&snap.RecordCount, &snap.IsActive, &snap.CreatedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}

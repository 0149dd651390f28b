// Package postgres mirrors case meta rows into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/afd-harvester/internal/afd"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MetaStoreConfig controls the Postgres connection pool used for meta rows.
type MetaStoreConfig struct {
	DSN             string
	Table           string
	RunID           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// MetaStore upserts meta rows keyed by case_title_cleaned.
type MetaStore struct {
	pool  txPool
	table string
	runID string
	clock afd.Clock
}

// NewMetaStore connects to Postgres using cfg.
func NewMetaStore(ctx context.Context, cfg MetaStoreConfig, clock afd.Clock) (*MetaStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewMetaStoreWithPool(pool, cfg.Table, cfg.RunID, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewMetaStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMetaStoreWithPool(pool txPool, table, runID string, clock afd.Clock) (*MetaStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if table == "" {
		table = "case_meta"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &MetaStore{pool: pool, table: table, runID: runID, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *MetaStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the meta table when it is missing.
func (s *MetaStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	case_title_cleaned TEXT PRIMARY KEY,
	page_exists BOOLEAN NOT NULL,
	returned_title TEXT,
	pageid BIGINT,
	redirected BOOLEAN NOT NULL DEFAULT FALSE,
	run_id TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// StoreCaseMeta upserts rows in one transaction.
func (s *MetaStore) StoreCaseMeta(ctx context.Context, rows []afd.CaseMeta) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("meta store is not configured")
	}
	if len(rows) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	case_title_cleaned,
	page_exists,
	returned_title,
	pageid,
	redirected,
	run_id,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (case_title_cleaned) DO UPDATE SET
	page_exists = EXCLUDED.page_exists,
	returned_title = EXCLUDED.returned_title,
	pageid = EXCLUDED.pageid,
	redirected = EXCLUDED.redirected,
	run_id = EXCLUDED.run_id,
	updated_at = EXCLUDED.updated_at`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin meta upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.clock.Now().UTC()
	for _, row := range rows {
		var pageID *int64
		if id, ok := row.PageID.Value(); ok {
			pageID = &id
		}
		if _, err := tx.Exec(ctx, query,
			row.CleanedTitle,
			row.PageExists,
			row.ReturnedTitle,
			pageID,
			row.PageID.Redirected(),
			s.runID,
			now,
		); err != nil {
			return fmt.Errorf("upsert meta %q: %w", row.CleanedTitle, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit meta upsert: %w", err)
	}
	return nil
}

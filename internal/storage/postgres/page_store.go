// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the pages table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PageStore reads and writes page rows in Postgres. The url column is the
// primary key; every write path funnels through an upsert keyed on it.
type PageStore struct {
	pool  pgxPool
	table string
}

// NewPageStore creates a Postgres-backed PageStore using the provided config.
func NewPageStore(ctx context.Context, cfg Config) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &PageStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(pool pgxPool, table string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PageStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *PageStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	return s.pool.Ping(ctx)
}

// UpsertPages writes a chunk of page records in a single multi-row statement
// inside one transaction, so either the whole chunk lands or none of it does.
// The chunk must not contain two records with the same URL; deduplication is
// the batcher's responsibility.
func (s *PageStore) UpsertPages(ctx context.Context, pages []crawler.PageRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if len(pages) == 0 {
		return nil
	}
	for _, p := range pages {
		if p.URL == "" {
			return fmt.Errorf("page url is required")
		}
	}

	values := make([]string, 0, len(pages))
	args := make([]any, 0, len(pages)*4)
	for i, p := range pages {
		base := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, now())", base+1, base+2, base+3, base+4))
		args = append(args, p.URL, p.Domain, p.ContentLocator, p.Active)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (url, domain, content_locator, is_active, updated_at)
VALUES %s
ON CONFLICT (url) DO UPDATE SET
	domain = EXCLUDED.domain,
	content_locator = EXCLUDED.content_locator,
	is_active = EXCLUDED.is_active,
	updated_at = now()`, s.table, strings.Join(values, ", "))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert pages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert transaction: %w", err)
	}
	return nil
}

// InsertPageIfAbsent records a newly discovered page unless a row for the URL
// already exists. Existing rows are left untouched.
func (s *PageStore) InsertPageIfAbsent(ctx context.Context, page crawler.PageRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if page.URL == "" {
		return fmt.Errorf("page url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, domain, content_locator, is_active, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (url) DO NOTHING`, s.table)

	if _, err := s.pool.Exec(ctx, query, page.URL, page.Domain, page.ContentLocator, page.Active); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// DeactivatePage marks the row for url inactive. A URL that was never
// recorded is left absent; this is not an error.
func (s *PageStore) DeactivatePage(ctx context.Context, url string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if url == "" {
		return fmt.Errorf("page url is required")
	}
	query := fmt.Sprintf("UPDATE %s SET is_active = FALSE, updated_at = now() WHERE url = $1", s.table)
	if _, err := s.pool.Exec(ctx, query, url); err != nil {
		return fmt.Errorf("deactivate page: %w", err)
	}
	return nil
}

// CountActive returns the number of rows currently marked active.
func (s *PageStore) CountActive(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("page store is not configured")
	}
	query := fmt.Sprintf("SELECT count(*) FROM %s WHERE is_active = TRUE", s.table)
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active pages: %w", err)
	}
	return n, nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/furniture-helper/furniture-crawler/internal/progress"
)

// EventStore appends crawl progress events to the crawl_events table. The
// table is append-only; rows are never updated.
type EventStore struct {
	pool  pgxPool
	table string
}

// NewEventStore creates a Postgres-backed EventStore over an existing pool.
// The event store shares the page store's pool rather than opening its own.
func NewEventStore(pool pgxPool, table string) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EventStore{pool: pool, table: table}, nil
}

// InsertEvents writes one batch in a single multi-row statement.
func (s *EventStore) InsertEvents(ctx context.Context, events []progress.Event) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("event store is not configured")
	}
	if len(events) == 0 {
		return nil
	}

	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*8)
	for i, e := range events {
		base := i * 8
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, e.RunID, e.TS, string(e.Stage), e.URL, e.Domain, e.Outcome, e.Links, e.Dur.Milliseconds())
	}

	query := fmt.Sprintf(`
INSERT INTO %s (run_id, ts, stage, url, domain, outcome, links, duration_ms)
VALUES %s`, s.table, strings.Join(values, ", "))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert crawl events: %w", err)
	}
	return nil
}

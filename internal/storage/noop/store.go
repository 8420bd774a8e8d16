// Package noop provides page and event stores that discard everything.
// They back dry runs where pages are fetched and snapshotted but no
// relational state is kept.
package noop

import (
	"context"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
	"github.com/furniture-helper/furniture-crawler/internal/progress"
)

// PageStore discards every write and never fails.
type PageStore struct{}

// NewPageStore returns the discarding page store.
func NewPageStore() *PageStore { return &PageStore{} }

// UpsertPages discards the records.
func (*PageStore) UpsertPages(context.Context, []crawler.PageRecord) error { return nil }

// InsertPageIfAbsent discards the record.
func (*PageStore) InsertPageIfAbsent(context.Context, crawler.PageRecord) error { return nil }

// DeactivatePage discards the update.
func (*PageStore) DeactivatePage(context.Context, string) error { return nil }

// Close is a no-op.
func (*PageStore) Close() {}

// EventStore discards every progress event batch.
type EventStore struct{}

// NewEventStore returns the discarding event store.
func NewEventStore() *EventStore { return &EventStore{} }

// InsertEvents discards the batch.
func (*EventStore) InsertEvents(context.Context, []progress.Event) error { return nil }

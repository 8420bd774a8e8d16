package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/progress"
)

// EventWriter persists batches of crawl events.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []progress.Event) error
}

// StoreSink appends event batches to a durable event store.
type StoreSink struct {
	writer EventWriter
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink over the given writer.
func NewStoreSink(writer EventWriter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{writer: writer, logger: logger}
}

// Consume writes the batch. Errors surface to the hub, which logs and moves
// on; event persistence is never allowed to stall the crawl.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.writer == nil || len(batch) == 0 {
		return nil
	}
	if err := s.writer.InsertEvents(ctx, batch); err != nil {
		return fmt.Errorf("insert crawl events: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

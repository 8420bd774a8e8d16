// Package batcher implements write-behind batching of page records.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
	"github.com/furniture-helper/furniture-crawler/internal/metrics"
)

// ErrDrainTimeout reports that the drain budget elapsed before the window
// was fully flushed.
var ErrDrainTimeout = errors.New("batch drain timed out")

// Config controls batching thresholds.
type Config struct {
	// ChunkSize caps the rows written per statement.
	ChunkSize int
	// MaxWindow is the buffered record count that triggers a flush.
	MaxWindow int
}

// pageWriter is the slice of the page store the batcher needs.
type pageWriter interface {
	UpsertPages(ctx context.Context, pages []crawler.PageRecord) error
}

// Batcher buffers page records and writes them to the store in bounded
// chunks. One mutex scopes the whole append-and-flush sequence, so at most
// one flush is in progress at any time and enqueue order is preserved.
type Batcher struct {
	store     pageWriter
	logger    *zap.Logger
	chunkSize int
	maxWindow int

	mu     sync.Mutex
	window []crawler.PageRecord
	total  int64
}

// New builds a Batcher over the given store.
func New(store pageWriter, cfg Config, logger *zap.Logger) (*Batcher, error) {
	if store == nil {
		return nil, errors.New("batcher requires a page store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize < 0 || cfg.MaxWindow < 0 {
		return nil, fmt.Errorf("batch sizes must not be negative, got chunk %d window %d", cfg.ChunkSize, cfg.MaxWindow)
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 100
	}
	if cfg.MaxWindow == 0 {
		cfg.MaxWindow = 1000
	}
	return &Batcher{
		store:     store,
		logger:    logger,
		chunkSize: cfg.ChunkSize,
		maxWindow: cfg.MaxWindow,
	}, nil
}

// Enqueue appends one record to the window. Reaching the window threshold
// flushes synchronously before Enqueue returns; a flush failure surfaces to
// this caller while the records stay buffered.
func (b *Batcher) Enqueue(ctx context.Context, page crawler.PageRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.window = append(b.window, page)
	metrics.SetBatchWindowSize(len(b.window))
	if len(b.window) < b.maxWindow {
		return nil
	}
	return b.flushLocked(ctx)
}

// Flush writes out the entire window in chunk-sized statements.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Drain flushes the window within the given budget. On timeout the window
// keeps every unflushed record and ErrDrainTimeout is returned; records from
// chunks that were still in flight when the deadline lapsed remain buffered
// as well, and the idempotent upsert makes their rewrite harmless.
func (b *Batcher) Drain(ctx context.Context, budget time.Duration) error {
	dctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.Flush(dctx) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("drain flush: %w", err)
		}
		return nil
	case <-dctx.Done():
		return fmt.Errorf("%w after %s", ErrDrainTimeout, budget)
	}
}

// Pending reports how many records are buffered.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.window)
}

// Total reports how many rows have been written to the store.
func (b *Batcher) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// flushLocked drains the window chunk by chunk. The caller holds b.mu. A
// chunk is removed from the window only after the store accepted it; on
// failure the chunk stays at the head for the next flush attempt.
func (b *Batcher) flushLocked(ctx context.Context) error {
	for len(b.window) > 0 {
		n := b.chunkSize
		if n > len(b.window) {
			n = len(b.window)
		}
		chunk := dedupeLastWins(b.window[:n])

		start := time.Now()
		if err := b.store.UpsertPages(ctx, chunk); err != nil {
			metrics.ObserveFlush("failure", 0, time.Since(start))
			b.logger.Error("flush chunk",
				zap.Int("chunk", len(chunk)),
				zap.Int("window", len(b.window)),
				zap.Error(err),
			)
			return fmt.Errorf("flush chunk of %d: %w", len(chunk), err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The deadline lapsed while the store call was in flight. Keep
			// the chunk buffered; rewriting it later is idempotent.
			metrics.ObserveFlush("timeout", 0, time.Since(start))
			return fmt.Errorf("flush deadline lapsed mid-chunk: %w", ctxErr)
		}
		metrics.ObserveFlush("success", len(chunk), time.Since(start))

		b.window = b.window[n:]
		b.total += int64(len(chunk))
		metrics.SetBatchWindowSize(len(b.window))
	}
	b.window = nil
	return nil
}

// dedupeLastWins collapses records sharing a URL down to the latest one,
// holding its position at the last occurrence. The store rejects chunks
// that touch the same row twice, so this must run before every write.
func dedupeLastWins(chunk []crawler.PageRecord) []crawler.PageRecord {
	last := make(map[string]int, len(chunk))
	for i, rec := range chunk {
		last[rec.URL] = i
	}
	if len(last) == len(chunk) {
		return chunk
	}
	out := make([]crawler.PageRecord, 0, len(last))
	for i, rec := range chunk {
		if last[rec.URL] == i {
			out = append(out, rec)
		}
	}
	return out
}

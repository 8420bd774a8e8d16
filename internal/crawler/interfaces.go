package crawler

import (
	"context"
	"time"
)

// WorkSource pulls crawl work from the distributed queue and acknowledges
// processed deliveries. Pulls are bounded waits: an empty batch is a normal
// result, not an error.
type WorkSource interface {
	Pull(ctx context.Context, remaining int) ([]WorkItem, error)
	Ack(ctx context.Context, url string) error
	Close() error
}

// Renderer loads a page and returns its HTML snapshot, visible text, and
// same-domain links.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (RenderedPage, error)
	Close(ctx context.Context) error
}

// ArtifactStore writes raw page snapshots and returns a locator URI.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// PageStore persists page records keyed by URL.
type PageStore interface {
	UpsertPages(ctx context.Context, pages []PageRecord) error
	InsertPageIfAbsent(ctx context.Context, page PageRecord) error
	DeactivatePage(ctx context.Context, url string) error
	Close()
}

// PageBatcher accumulates page records and writes them to the page store in
// bounded transactional batches.
type PageBatcher interface {
	Enqueue(ctx context.Context, page PageRecord) error
	Flush(ctx context.Context) error
	Drain(ctx context.Context, budget time.Duration) error
}

// DiscoveryGate admits each discovered URL into the system at most once per
// process, backed by the page store for cross-run dedup.
type DiscoveryGate interface {
	CheckAndInsert(ctx context.Context, url string) error
}

// CompletionFunc is invoked when an admitted URL reaches a terminal outcome:
// crawled, rejected, or failed. The coordinator fires it at most once per
// admission.
type CompletionFunc func(url string)

// Package dedup admits each discovered URL into the system at most once.
package dedup

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
	"github.com/furniture-helper/furniture-crawler/internal/metrics"
)

// pageInserter is the slice of the page store the gate needs.
type pageInserter interface {
	InsertPageIfAbsent(ctx context.Context, page crawler.PageRecord) error
}

// Announcer puts a newly discovered URL back onto the work queue so a
// future run crawls it.
type Announcer interface {
	Publish(ctx context.Context, url string) (string, error)
}

// Gate tracks URLs seen during this process and records first sightings in
// the page store with a placeholder locator. The in-memory set is best
// effort and dies with the process; the pages primary key is the source of
// truth across runs.
type Gate struct {
	store     pageInserter
	announcer Announcer
	logger    *zap.Logger
	seen      sync.Map
}

// New builds a Gate over the given store. announcer may be nil; discovered
// URLs are then recorded but not fed back to the queue.
func New(store pageInserter, announcer Announcer, logger *zap.Logger) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("discovery gate requires a page store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, announcer: announcer, logger: logger}, nil
}

// CheckAndInsert registers url unless this process has already seen it. On a
// store fault the URL is forgotten again so a later discovery can retry the
// insert.
func (g *Gate) CheckAndInsert(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("url is required")
	}

	if _, loaded := g.seen.LoadOrStore(url, struct{}{}); loaded {
		metrics.ObserveDiscovery("duplicate")
		return nil
	}

	page := crawler.PageRecord{
		URL:            url,
		Domain:         crawler.DomainOf(url),
		ContentLocator: crawler.PlaceholderLocator,
		Active:         true,
	}
	if err := g.store.InsertPageIfAbsent(ctx, page); err != nil {
		g.seen.Delete(url)
		metrics.ObserveDiscovery("error")
		return fmt.Errorf("record discovered page: %w", err)
	}

	metrics.ObserveDiscovery("inserted")
	g.logger.Debug("page discovered", zap.String("url", url))

	// Announcement failures stay local: the row exists, so a future seed
	// run can still pick the page up.
	if g.announcer != nil {
		if _, err := g.announcer.Publish(ctx, url); err != nil {
			g.logger.Warn("announce discovered page", zap.String("url", url), zap.Error(err))
		}
	}
	return nil
}

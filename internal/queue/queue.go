// Package queue implements the work-queue consumer. A Consumer pulls
// discovery work from an at-least-once delivery source, tracks the most
// recent delivery token per URL, and acknowledges deliveries only when the
// caller signals that the URL has been durably processed.
package queue

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

// Delivery is one raw message received from a Source. Token identifies this
// delivery, not the URL: redelivery of the same URL carries a fresh token.
type Delivery struct {
	URL   string
	Token string
}

// Source is the transport behind a Consumer. Fetch blocks until messages
// arrive or ctx ends; Acknowledge deletes one delivery by token.
type Source interface {
	Fetch(ctx context.Context, max int) ([]Delivery, error)
	Acknowledge(ctx context.Context, token string) error
	Close() error
}

// Config controls pull sizing and the bounded wait per pull.
type Config struct {
	// MaxBatch caps the messages requested per pull.
	MaxBatch int
	// WaitTimeout bounds how long one pull may block.
	WaitTimeout time.Duration
}

// Consumer adapts a Source to the crawl pipeline's pull/ack contract. It
// keeps a url -> token map overwritten on every pull so an Ack always
// targets the newest delivery of that URL.
type Consumer struct {
	source   Source
	logger   *zap.Logger
	maxBatch int
	wait     time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

// NewConsumer builds a Consumer over the given source.
func NewConsumer(source Source, cfg Config, logger *zap.Logger) (*Consumer, error) {
	if source == nil {
		return nil, errors.New("consumer requires a source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 10
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	return &Consumer{
		source:   source,
		logger:   logger,
		maxBatch: cfg.MaxBatch,
		wait:     cfg.WaitTimeout,
		tokens:   make(map[string]string),
	}, nil
}

// Pull fetches up to min(MaxBatch, ceil(remaining/10)) work items, blocking
// at most the configured wait interval. An exhausted wait yields an empty
// batch, not an error. remaining <= 0 means the run budget is unbounded.
func (c *Consumer) Pull(ctx context.Context, remaining int) ([]crawler.WorkItem, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.wait)
	defer cancel()

	deliveries, err := c.source.Fetch(fetchCtx, c.batchSize(remaining))
	if err != nil {
		if fetchCtx.Err() != nil && ctx.Err() == nil {
			metrics.ObservePull(0)
			return nil, nil
		}
		return nil, fmt.Errorf("fetch work items: %w", err)
	}

	items := make([]crawler.WorkItem, 0, len(deliveries))
	c.mu.Lock()
	for _, d := range deliveries {
		if d.URL == "" {
			continue
		}
		c.tokens[d.URL] = d.Token
		items = append(items, crawler.WorkItem{URL: d.URL, DeliveryToken: d.Token})
	}
	c.mu.Unlock()

	metrics.ObservePull(len(items))
	return items, nil
}

// Ack deletes the most recent delivery of url from the queue. A URL with no
// tracked token is a warning, not an error: the ack raced a redelivery or
// already happened.
func (c *Consumer) Ack(ctx context.Context, url string) error {
	c.mu.Lock()
	token, ok := c.tokens[url]
	if ok {
		delete(c.tokens, url)
	}
	c.mu.Unlock()

	if !ok {
		metrics.ObserveAck("missing_token")
		c.logger.Warn("no delivery token tracked for url", zap.String("url", url))
		return nil
	}

	if err := c.source.Acknowledge(ctx, token); err != nil {
		metrics.ObserveAck("error")
		return fmt.Errorf("acknowledge %s: %w", url, err)
	}
	metrics.ObserveAck("ok")
	return nil
}

// Tracked reports how many URLs currently have an unacknowledged delivery.
func (c *Consumer) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

// Close releases the underlying source.
func (c *Consumer) Close() error {
	if err := c.source.Close(); err != nil {
		return fmt.Errorf("close queue source: %w", err)
	}
	return nil
}

// batchSize bounds one pull by the provider maximum and by a tenth of the
// remaining run budget, so the consumer never over-fetches near the end of
// a run.
func (c *Consumer) batchSize(remaining int) int {
	if remaining <= 0 {
		return c.maxBatch
	}
	n := (remaining + 9) / 10
	if n > c.maxBatch {
		n = c.maxBatch
	}
	if n < 1 {
		n = 1
	}
	return n
}

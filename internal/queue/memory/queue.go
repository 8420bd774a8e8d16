// Package memory provides an in-memory work-queue source for development
// and tests. It mimics at-least-once delivery: a fetched message is leased,
// and an unacknowledged lease expires back into the visible queue with a
// fresh token.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/furniture-helper/furniture-crawler/internal/clock"
	"github.com/furniture-helper/furniture-crawler/internal/clock/system"
	"github.com/furniture-helper/furniture-crawler/internal/queue"
)

// Config seeds the queue and sets its redelivery behavior.
type Config struct {
	// URLs are enqueued at construction.
	URLs []string
	// RedeliverAfter is the lease duration before an unacknowledged
	// delivery becomes visible again.
	RedeliverAfter time.Duration
}

type lease struct {
	url     string
	expires time.Time
}

// Queue is an in-memory queue.Source.
type Queue struct {
	clk            clock.Clock
	redeliverAfter time.Duration

	mu      sync.Mutex
	visible []string
	leased  map[string]lease
	seq     int
	closed  bool

	wake chan struct{}
}

// New builds a Queue seeded from cfg, timed by the system clock.
func New(cfg Config) *Queue {
	return NewWithClock(cfg, system.New())
}

// NewWithClock builds a Queue with an injected clock.
func NewWithClock(cfg Config, clk clock.Clock) *Queue {
	if cfg.RedeliverAfter <= 0 {
		cfg.RedeliverAfter = 30 * time.Second
	}
	return &Queue{
		clk:            clk,
		redeliverAfter: cfg.RedeliverAfter,
		visible:        append([]string(nil), cfg.URLs...),
		leased:         make(map[string]lease),
		wake:           make(chan struct{}, 1),
	}
}

// Push makes url visible for delivery.
func (q *Queue) Push(url string) {
	q.mu.Lock()
	q.visible = append(q.visible, url)
	q.mu.Unlock()
	q.signal()
}

// Fetch leases up to max visible messages. With nothing visible it blocks
// until a message arrives, a lease expires, or ctx ends.
func (q *Queue) Fetch(ctx context.Context, max int) ([]queue.Delivery, error) {
	if max < 1 {
		max = 1
	}
	for {
		deliveries, nextExpiry := q.take(max)
		if len(deliveries) > 0 {
			return deliveries, nil
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, errors.New("queue closed")
		}

		if err := q.waitForWork(ctx, nextExpiry); err != nil {
			return nil, err
		}
	}
}

// waitForWork blocks until something may have become fetchable.
func (q *Queue) waitForWork(ctx context.Context, nextExpiry time.Time) error {
	var expiryC <-chan time.Time
	if !nextExpiry.IsZero() {
		wait := nextExpiry.Sub(q.clk.Now())
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expiryC = timer.C
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch wait: %w", ctx.Err())
	case <-q.wake:
		return nil
	case <-expiryC:
		return nil
	}
}

// take reclaims expired leases, then leases up to max messages. It returns
// the earliest remaining lease expiry so Fetch knows how long to sleep.
func (q *Queue) take(max int) ([]queue.Delivery, time.Time) {
	now := q.clk.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	for token, l := range q.leased {
		if !l.expires.After(now) {
			q.visible = append(q.visible, l.url)
			delete(q.leased, token)
		}
	}

	n := max
	if n > len(q.visible) {
		n = len(q.visible)
	}
	deliveries := make([]queue.Delivery, 0, n)
	for _, url := range q.visible[:n] {
		q.seq++
		token := fmt.Sprintf("delivery-%d", q.seq)
		q.leased[token] = lease{url: url, expires: now.Add(q.redeliverAfter)}
		deliveries = append(deliveries, queue.Delivery{URL: url, Token: token})
	}
	q.visible = q.visible[n:]

	var next time.Time
	for _, l := range q.leased {
		if next.IsZero() || l.expires.Before(next) {
			next = l.expires
		}
	}
	return deliveries, next
}

// Acknowledge deletes the leased delivery for token. An unknown or expired
// token is an error, matching real queues that reject stale ack handles.
func (q *Queue) Acknowledge(_ context.Context, token string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.leased[token]; !ok {
		return fmt.Errorf("unknown delivery token %q", token)
	}
	delete(q.leased, token)
	return nil
}

// Remaining reports visible plus leased message counts.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.visible) + len(q.leased)
}

// Close marks the queue closed. Fetches already blocked return when their
// context ends.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

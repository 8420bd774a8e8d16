// Package ratelimit paces outbound fetches per retailer domain so the
// crawler never hammers a single storefront, regardless of how its URLs
// are interleaved on the work queue.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
	"github.com/furniture-helper/furniture-crawler/internal/metrics"
)

// Config holds the per-domain pacing knobs. A non-positive RPS disables
// pacing entirely.
type Config struct {
	DomainRPS   float64
	DomainBurst int
}

// Limiter hands out one token bucket per canonical domain. Buckets are
// created lazily on first sight of a domain and share the configured rate.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.DomainRPS)
	if cfg.DomainRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.DomainBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Wait blocks until the domain of rawURL has a token available or ctx ends.
// URLs that do not parse share a single "unknown" bucket.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := crawler.DomainOf(rawURL)
	if domain == "" {
		domain = "unknown"
	}

	l.mu.Lock()
	bucket, ok := l.buckets[domain]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[domain] = bucket
	}
	l.mu.Unlock()

	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", domain, err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, delay)
	}
	return nil
}

// Domains reports how many domains have an active bucket.
func (l *Limiter) Domains() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Package memory records announced URLs in memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher stores every published URL for later inspection.
type Publisher struct {
	mu   sync.RWMutex
	urls []string
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records url and returns a pseudo message ID.
func (p *Publisher) Publish(_ context.Context, url string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, url)
	return fmt.Sprintf("memory-%d", len(p.urls)), nil
}

// URLs returns the recorded publishes in order.
func (p *Publisher) URLs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.urls...)
}

// Close is a no-op for the memory publisher.
func (p *Publisher) Close() error { return nil }

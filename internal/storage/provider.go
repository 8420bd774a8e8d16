// Package storage abstracts where raw page snapshots live. Implementations
// exist for Google Cloud Storage, the local filesystem, and an in-memory
// store for tests and dry runs.
package storage

import "context"

// Provider writes an artifact under a path and returns a locator URI that a
// downstream consumer can resolve (gs://, file://, or memory://).
type Provider interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

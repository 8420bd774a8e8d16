// Package render loads storefront pages and turns them into HTML snapshots,
// visible text, and same-domain links. Two variants exist: a headless-Chrome
// renderer for JavaScript-heavy retailers and a plain-HTTP one for static
// sites and CI. The variant is chosen at construction time.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
)

// Renderer providers selectable via configuration.
const (
	ProviderChromedp = "chromedp"
	ProviderStatic   = "static"
)

// ErrRendererDisabled indicates rendering has been disabled via configuration.
var ErrRendererDisabled = errors.New("renderer disabled")

// Pacer throttles fetches before they hit the network. The render package
// calls it once per page load with the page URL.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config carries the knobs shared by renderer variants.
type Config struct {
	Provider    string
	Timeout     time.Duration
	IdleTimeout time.Duration
	UserAgent   string
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderChromedp
	}
	if c.Timeout <= 0 {
		c.Timeout = 25 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 8 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "furniture-crawler/1.0"
	}
}

// New constructs the renderer named by cfg.Provider. pacer may be nil when
// no per-domain pacing is configured.
func New(cfg Config, pacer Pacer, logger *zap.Logger) (crawler.Renderer, error) {
	cfg.applyDefaults()
	switch cfg.Provider {
	case ProviderChromedp:
		return NewChromedp(cfg, pacer, logger)
	case ProviderStatic:
		return NewStatic(cfg, pacer, logger)
	default:
		return nil, fmt.Errorf("unknown render provider %q", cfg.Provider)
	}
}

// pace applies the pacer when one is configured.
func pace(ctx context.Context, pacer Pacer, rawURL string) error {
	if pacer == nil {
		return nil
	}
	return pacer.Wait(ctx, rawURL)
}

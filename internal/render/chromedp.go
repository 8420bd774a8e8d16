package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
)

// snapshotGrace bounds the DOM snapshot attempt after a navigation that ran
// out its budget: slow storefronts still yield whatever has loaded.
const snapshotGrace = 3 * time.Second

// ChromedpRenderer renders pages using headless Chrome via chromedp. The
// browser process is shared; every Render opens its own tab.
type ChromedpRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	pacer           Pacer
	logger          *zap.Logger
	timeout         time.Duration
	idleTimeout     time.Duration
	userAgent       string
}

// NewChromedp creates a headless-Chrome renderer and warms up the browser.
func NewChromedp(cfg Config, pacer Pacer, logger *zap.Logger) (*ChromedpRenderer, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		pacer:           pacer,
		logger:          logger,
		timeout:         cfg.Timeout,
		idleTimeout:     cfg.IdleTimeout,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the chromedp allocator and browser contexts.
func (r *ChromedpRenderer) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

// Render opens one tab, navigates, waits for the network to settle, and
// snapshots the DOM. An exhausted navigation budget is not fatal; a canceled
// caller context is.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string) (crawler.RenderedPage, error) {
	if r == nil {
		return crawler.RenderedPage{}, ErrRendererDisabled
	}
	if err := pace(ctx, r.pacer, rawURL); err != nil {
		return crawler.RenderedPage{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	r.recordResponse(tabCtx, meta)

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	navErr := chromedp.Run(taskCtx, chromedp.Tasks{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	})
	if navErr != nil {
		if !errors.Is(navErr, context.DeadlineExceeded) || ctx.Err() != nil {
			return crawler.RenderedPage{}, fmt.Errorf("navigate %s: %w", rawURL, navErr)
		}
		r.logger.Debug("navigation budget exhausted, snapshotting partial DOM", zap.String("url", rawURL))
	} else {
		r.waitNetworkIdle(taskCtx, idle)
	}

	html, err := r.snapshot(tabCtx, taskCtx)
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("snapshot %s: %w", rawURL, err)
	}

	return buildPage(rawURL, meta.finalURL(rawURL), []byte(html))
}

// waitNetworkIdle blocks until the tab reports a quiet network, the idle
// budget lapses, or the task context ends. Expiry is not a failure.
func (r *ChromedpRenderer) waitNetworkIdle(ctx context.Context, idle <-chan struct{}) {
	timer := time.NewTimer(r.idleTimeout)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// snapshot reads the page HTML on the task context, falling back to a short
// grace window on the tab when the budget lapsed mid-load.
func (r *ChromedpRenderer) snapshot(tabCtx, taskCtx context.Context) (string, error) {
	runCtx := taskCtx
	if taskCtx.Err() != nil {
		graceCtx, cancel := context.WithTimeout(tabCtx, snapshotGrace)
		defer cancel()
		runCtx = graceCtx
	}
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	headers    http.Header
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: make(http.Header),
	}
}

func (m *responseMeta) finalURL(raw string) string {
	if m.url == "" {
		return raw
	}
	return m.url
}

func (r *ChromedpRenderer) recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
			for k, v := range resp.Response.Headers {
				meta.headers.Add(k, fmt.Sprint(v))
			}
		})
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

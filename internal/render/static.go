package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
)

// StaticRenderer fetches pages over plain HTTP via a Colly collector. It
// serves static storefronts and environments without a browser.
type StaticRenderer struct {
	baseCollector *colly.Collector
	pacer         Pacer
	logger        *zap.Logger
}

// NewStatic constructs the plain-HTTP renderer.
func NewStatic(cfg Config, pacer Pacer, logger *zap.Logger) (*StaticRenderer, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = false
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &StaticRenderer{
		baseCollector: base,
		pacer:         pacer,
		logger:        logger,
	}, nil
}

// Render fetches the page body and extracts text and links from it. Each
// call clones the base collector so fetches never share callback state.
func (f *StaticRenderer) Render(ctx context.Context, rawURL string) (crawler.RenderedPage, error) {
	if f == nil {
		return crawler.RenderedPage{}, ErrRendererDisabled
	}
	if err := pace(ctx, f.pacer, rawURL); err != nil {
		return crawler.RenderedPage{}, err
	}

	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{
			finalURL: r.Request.URL.String(),
			body:     append([]byte(nil), r.Body...),
		})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return crawler.RenderedPage{}, err
		}
		if res.err != nil {
			return crawler.RenderedPage{}, fmt.Errorf("fetch %s: %w", rawURL, res.err)
		}
		return buildPage(rawURL, res.finalURL, res.body)
	default:
		return crawler.RenderedPage{}, errors.New("fetch produced no result")
	}
}

// Close implements Renderer; the collector holds no resources that need
// teardown.
func (f *StaticRenderer) Close(context.Context) error {
	return nil
}

type fetchResult struct {
	finalURL string
	body     []byte
	err      error
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	sha256util "github.com/furniture-helper/furniture-crawler/internal/hash/sha256"
	"github.com/furniture-helper/furniture-crawler/internal/metrics"
	"github.com/furniture-helper/furniture-crawler/internal/progress"
)

// ErrStopped is returned by Admit once Stop has been called.
var ErrStopped = errors.New("coordinator stopped")

// Terminal crawl outcomes, used as metric labels.
const (
	OutcomeSuccess       = "success"
	OutcomeThinContent   = "thin_content"
	OutcomeRenderError   = "render_error"
	OutcomeArtifactError = "artifact_error"
)

// Config holds the coordinator's admission and crawl knobs.
type Config struct {
	AllowedDomains      []string
	Concurrency         int
	AdmissionsPerMinute int
	MinContentChars     int
	ArtifactPrefix      string
}

// Coordinator owns the crawl pipeline between admission and completion. It
// filters URLs, caps concurrent renders, enforces the admission rate
// ceiling, snapshots rendered pages into artifact storage, registers
// discovered links, and queues page records for persistence. The completion
// callback fires at most once per admitted URL.
type Coordinator struct {
	cfg       Config
	filter    *AdmissionFilter
	renderer  Renderer
	artifacts ArtifactStore
	pages     PageStore
	batcher   PageBatcher
	gate      DiscoveryGate
	events    progress.Emitter
	complete  CompletionFunc
	logger    *zap.Logger

	limiter *rate.Limiter
	slots   chan struct{}

	// base outlives any single pull cycle. In-flight crawls run on it so a
	// run deadline does not abort them mid-render; it ends only at process
	// shutdown.
	base context.Context

	wg        sync.WaitGroup
	stopped   atomic.Bool
	admitted  atomic.Int64
	completed atomic.Int64
}

// New builds a Coordinator. All collaborators and the completion callback
// are required; events may be nil when no progress hub is wired.
func New(
	base context.Context,
	cfg Config,
	renderer Renderer,
	artifacts ArtifactStore,
	pages PageStore,
	batcher PageBatcher,
	gate DiscoveryGate,
	events progress.Emitter,
	complete CompletionFunc,
	logger *zap.Logger,
) (*Coordinator, error) {
	if base == nil {
		base = context.Background()
	}
	if renderer == nil || artifacts == nil || pages == nil || batcher == nil || gate == nil {
		return nil, errors.New("coordinator requires renderer, artifact store, page store, batcher, and gate")
	}
	if complete == nil {
		return nil, errors.New("coordinator requires a completion callback")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.AdmissionsPerMinute <= 0 {
		return nil, fmt.Errorf("admissions per minute must be positive, got %d", cfg.AdmissionsPerMinute)
	}
	if cfg.MinContentChars < 0 {
		return nil, fmt.Errorf("min content chars must not be negative, got %d", cfg.MinContentChars)
	}
	if cfg.ArtifactPrefix == "" {
		cfg.ArtifactPrefix = "pages"
	}

	return &Coordinator{
		cfg:       cfg,
		filter:    NewAdmissionFilter(cfg.AllowedDomains),
		renderer:  renderer,
		artifacts: artifacts,
		pages:     pages,
		batcher:   batcher,
		gate:      gate,
		events:    events,
		complete:  complete,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.AdmissionsPerMinute)), 1),
		slots:     make(chan struct{}, cfg.Concurrency),
		base:      base,
	}, nil
}

// Admit feeds one URL into the pipeline. Rejected URLs are deactivated and
// completed synchronously; admitted URLs crawl on their own goroutine.
// After Stop, Admit returns ErrStopped and the URL is neither crawled nor
// completed, so its delivery stays unacknowledged.
func (c *Coordinator) Admit(ctx context.Context, rawURL string) error {
	if c.stopped.Load() {
		return ErrStopped
	}

	if verdict := c.filter.Check(rawURL); !verdict.Admit {
		c.reject(ctx, rawURL, verdict.Reason)
		return nil
	}

	c.admitted.Add(1)
	c.emit(progress.Event{Stage: progress.StageAdmitted, URL: rawURL, Domain: DomainOf(rawURL)})
	c.wg.Add(1)
	go c.crawl(rawURL)
	return nil
}

// Stop closes admission. In-flight crawls continue to their natural end.
func (c *Coordinator) Stop(reason string) {
	if c.stopped.CompareAndSwap(false, true) {
		c.logger.Info("admission stopped", zap.String("reason", reason))
	}
}

// Wait blocks until every in-flight crawl has finished or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight crawls: %w", ctx.Err())
	}
}

// Admitted reports how many URLs passed the admission filter.
func (c *Coordinator) Admitted() int64 { return c.admitted.Load() }

// Completed reports how many completion signals have fired.
func (c *Coordinator) Completed() int64 { return c.completed.Load() }

func (c *Coordinator) reject(ctx context.Context, rawURL, reason string) {
	metrics.ObserveRejection(reason)
	c.logger.Debug("admission rejected",
		zap.String("url", rawURL),
		zap.String("reason", reason),
	)
	if err := c.pages.DeactivatePage(ctx, rawURL); err != nil {
		c.logger.Warn("deactivate rejected page", zap.String("url", rawURL), zap.Error(err))
	}
	c.emit(progress.Event{Stage: progress.StageRejected, URL: rawURL, Domain: DomainOf(rawURL), Outcome: reason})
	c.completed.Add(1)
	c.complete(rawURL)
}

func (c *Coordinator) emit(evt progress.Event) {
	if c.events != nil {
		c.events.Emit(evt)
	}
}

// crawl runs one admitted URL to a terminal outcome. Shutdown before an
// outcome is reached leaves the URL uncompleted so the queue redelivers it
// on the next run.
func (c *Coordinator) crawl(rawURL string) {
	defer c.wg.Done()

	var (
		once      sync.Once
		renderDur time.Duration
		linkCount int
	)
	finish := func(outcome string) {
		once.Do(func() {
			metrics.ObserveCrawl(outcome)
			stage := progress.StageFailed
			if outcome == OutcomeSuccess {
				stage = progress.StageCrawled
			}
			c.emit(progress.Event{
				Stage:   stage,
				URL:     rawURL,
				Domain:  DomainOf(rawURL),
				Outcome: outcome,
				Links:   linkCount,
				Dur:     renderDur,
			})
			c.completed.Add(1)
			c.complete(rawURL)
		})
	}

	select {
	case c.slots <- struct{}{}:
	case <-c.base.Done():
		return
	}
	defer func() { <-c.slots }()

	if err := c.limiter.Wait(c.base); err != nil {
		return
	}

	metrics.IncCrawlsInFlight()
	defer metrics.DecCrawlsInFlight()

	start := time.Now()
	page, err := c.renderer.Render(c.base, rawURL)
	renderDur = time.Since(start)
	metrics.ObserveRenderDuration(renderDur)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.logger.Warn("render canceled", zap.String("url", rawURL))
			return
		}
		c.logger.Warn("render failed", zap.String("url", rawURL), zap.Error(err))
		c.deactivate(rawURL)
		finish(OutcomeRenderError)
		return
	}

	linkCount = len(page.Links)

	if len(strings.TrimSpace(page.Text)) < c.cfg.MinContentChars {
		c.logger.Debug("page content below threshold", zap.String("url", rawURL))
		c.deactivate(rawURL)
		finish(OutcomeThinContent)
		return
	}

	locator, err := c.artifacts.PutObject(c.base, c.objectPath(rawURL), "text/html", page.HTML)
	if err != nil {
		c.logger.Error("store page artifact", zap.String("url", rawURL), zap.Error(err))
		c.deactivate(rawURL)
		finish(OutcomeArtifactError)
		return
	}

	for _, link := range page.Links {
		if err := c.gate.CheckAndInsert(c.base, link); err != nil {
			c.logger.Warn("register discovered link", zap.String("url", link), zap.Error(err))
		}
	}

	record := PageRecord{
		URL:            rawURL,
		Domain:         DomainOf(rawURL),
		ContentLocator: locator,
		Active:         true,
	}
	if err := c.batcher.Enqueue(c.base, record); err != nil {
		// The record stays in the retained window; the flush fault belongs
		// to the batcher's caller chain, not to this page.
		c.logger.Error("flush page records", zap.String("url", rawURL), zap.Error(err))
	}

	c.logger.Info("page crawled",
		zap.String("url", rawURL),
		zap.String("locator", locator),
		zap.Int("links", len(page.Links)),
	)
	finish(OutcomeSuccess)
}

func (c *Coordinator) deactivate(rawURL string) {
	if err := c.pages.DeactivatePage(c.base, rawURL); err != nil {
		c.logger.Warn("deactivate page", zap.String("url", rawURL), zap.Error(err))
	}
}

func (c *Coordinator) objectPath(rawURL string) string {
	domain := DomainOf(rawURL)
	if domain == "" {
		domain = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s.html", c.cfg.ArtifactPrefix, domain, sha256util.HexSum([]byte(rawURL)))
}

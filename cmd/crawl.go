package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/api"
	"github.com/furniture-helper/furniture-crawler/internal/batcher"
	"github.com/furniture-helper/furniture-crawler/internal/clock/system"
	"github.com/furniture-helper/furniture-crawler/internal/crawler"
	"github.com/furniture-helper/furniture-crawler/internal/dedup"
	idgen "github.com/furniture-helper/furniture-crawler/internal/id/uuid"
	"github.com/furniture-helper/furniture-crawler/internal/metrics"
	"github.com/furniture-helper/furniture-crawler/internal/progress"
	"github.com/furniture-helper/furniture-crawler/internal/progress/sinks"
	"github.com/furniture-helper/furniture-crawler/internal/shutdown"
	"github.com/furniture-helper/furniture-crawler/internal/worker"
)

// ackTimeout bounds each queue acknowledgement fired from a completion
// callback.
const ackTimeout = 10 * time.Second

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl ingestion pass",
		Long: `Pulls page URLs from the work queue and crawls them until the run
budget is spent, the queue stays idle, or the run is stopped by a signal
or timeout. Buffered page records are drained before exit.`,
		RunE: runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := a.Logger()
	cfg := a.Config()
	metrics.Init()

	runID, err := idgen.NewUUIDGenerator().NewRawID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID.String()))

	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.BatchEvents,
		MaxBatchWait:   cfg.Progress.BatchWait,
		Logger:         logger,
	}, sinks.NewLogSink(logger), sinks.NewStoreSink(a.Events(), logger))
	emitter := progress.NewRunEmitter(runID, system.New(), hub)

	pageBatcher, err := batcher.New(a.Pages(), batcher.Config{
		ChunkSize: cfg.Batch.ChunkSize,
		MaxWindow: cfg.Batch.MaxWindow,
	}, logger)
	if err != nil {
		return fmt.Errorf("build batcher: %w", err)
	}

	gate, err := dedup.New(a.Pages(), a.Announcer(), logger)
	if err != nil {
		return fmt.Errorf("build discovery gate: %w", err)
	}

	consumer := a.Consumer()
	complete := func(url string) {
		ackCtx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		defer cancel()
		if err := consumer.Ack(ackCtx, url); err != nil {
			logger.Warn("acknowledge delivery", zap.String("url", url), zap.Error(err))
		}
	}

	// Crawls run on a process-lifetime context so a run deadline does not
	// abort them mid-render.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	coord, err := crawler.New(baseCtx, crawler.Config{
		AllowedDomains:      cfg.Crawler.AllowedDomains,
		Concurrency:         cfg.Crawler.Concurrency,
		AdmissionsPerMinute: cfg.Crawler.AdmissionsPerMinute,
		MinContentChars:     cfg.Crawler.MinContentChars,
		ArtifactPrefix:      cfg.Storage.Prefix,
	}, a.Renderer(), a.Storage(), a.Pages(), pageBatcher, gate, emitter, complete, logger)
	if err != nil {
		return fmt.Errorf("build crawl coordinator: %w", err)
	}

	w, err := worker.New(consumer, coord, worker.Config{
		RunBudget:    cfg.Crawler.RunBudget,
		MaxIdlePulls: cfg.Crawler.MaxIdlePulls,
	}, logger)
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	sd, err := shutdown.New(pageBatcher, shutdown.Config{
		DrainTimeout:     cfg.Shutdown.DrainTimeout,
		ExitDrainTimeout: cfg.Shutdown.ExitDrainTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("build shutdown coordinator: %w", err)
	}
	defer sd.ExitHook()

	opsServer := startOpsServer(a.Ready, func() api.Stats {
		return api.Stats{
			RunID:     runID.String(),
			Admitted:  coord.Admitted(),
			Completed: coord.Completed(),
			Tracked:   consumer.Tracked(),
			Dropped:   hub.Dropped(),
		}
	}, cfg.Server.MetricsAddr, logger)
	defer stopOpsServer(opsServer, logger)

	runCtx, stop := shutdown.WithSignals(cmd.Context())
	defer stop()
	if cfg.Crawler.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, cfg.Crawler.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	emitter.Emit(progress.Event{Stage: progress.StageRunStart})
	logger.Info("crawl run starting",
		zap.Int("run_budget", cfg.Crawler.RunBudget),
		zap.Duration("run_timeout", cfg.Crawler.RunTimeout),
	)

	runErr := w.Run(runCtx)

	outcome := "clean"
	if runErr != nil {
		outcome = "fault"
	}
	emitter.Emit(progress.Event{Stage: progress.StageRunDone, Outcome: outcome, Dur: time.Since(start)})

	sd.Shutdown(context.Background())

	closeCtx, cancelClose := context.WithTimeout(context.Background(), ackTimeout)
	defer cancelClose()
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("close progress hub", zap.Error(err))
	}

	logger.Info("crawl run finished",
		zap.String("outcome", outcome),
		zap.Int64("admitted", coord.Admitted()),
		zap.Int64("completed", coord.Completed()),
		zap.Duration("duration", time.Since(start)),
	)

	if runErr != nil {
		return fmt.Errorf("run crawl: %w", runErr)
	}
	if sd.Failed() {
		return errors.New("shutdown drain failed")
	}
	return nil
}

func startOpsServer(ready api.ReadyFunc, stats api.StatsFunc, addr string, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(ready, stats, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()
	return srv
}

func stopOpsServer(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shut down ops server", zap.Error(err))
	}
}

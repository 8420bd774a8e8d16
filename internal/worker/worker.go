// Package worker runs the pull-admit loop that bridges the work queue and
// the crawl coordinator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
)

// pullBackoff spaces out retries after a failed pull so a flapping queue
// does not spin the loop.
const pullBackoff = time.Second

// Coordinator is the slice of the crawl coordinator the worker drives.
type Coordinator interface {
	Admit(ctx context.Context, url string) error
	Stop(reason string)
	Wait(ctx context.Context) error
}

// WorkSource is the slice of the queue consumer the worker drives.
type WorkSource interface {
	Pull(ctx context.Context, remaining int) ([]crawler.WorkItem, error)
}

// Config controls run-loop termination.
type Config struct {
	// RunBudget caps admissions attempted this run; 0 means unbounded.
	RunBudget int
	// MaxIdlePulls ends the run after this many consecutive empty pulls.
	MaxIdlePulls int
}

// Worker pulls work items and feeds them to the coordinator until the
// budget is spent, the queue stays idle, or the run context ends. Every
// pulled URL counts against the budget whether it is admitted or rejected;
// both consume a delivery.
type Worker struct {
	source WorkSource
	coord  Coordinator
	cfg    Config
	logger *zap.Logger
}

// New builds a Worker.
func New(source WorkSource, coord Coordinator, cfg Config, logger *zap.Logger) (*Worker, error) {
	if source == nil || coord == nil {
		return nil, errors.New("worker requires a work source and a coordinator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxIdlePulls <= 0 {
		cfg.MaxIdlePulls = 3
	}
	return &Worker{
		source: source,
		coord:  coord,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run executes the pull-admit loop, then waits for in-flight crawls. It
// returns nil on a clean end of run, including a run-timeout stop.
func (w *Worker) Run(ctx context.Context) error {
	remaining := w.cfg.RunBudget
	idle := 0

loop:
	for {
		if ctx.Err() != nil {
			w.coord.Stop("run context ended")
			break
		}
		if w.cfg.RunBudget > 0 && remaining <= 0 {
			w.coord.Stop("admission budget exhausted")
			break
		}

		items, err := w.source.Pull(ctx, remaining)
		if err != nil {
			if ctx.Err() != nil {
				w.coord.Stop("run context ended")
				break
			}
			w.logger.Error("pull work items", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(pullBackoff):
			}
			continue
		}

		if len(items) == 0 {
			idle++
			if idle >= w.cfg.MaxIdlePulls {
				w.coord.Stop("work queue idle")
				break
			}
			continue
		}
		idle = 0

		for _, item := range items {
			if err := w.coord.Admit(ctx, item.URL); err != nil {
				if errors.Is(err, crawler.ErrStopped) {
					break loop
				}
				w.logger.Error("admit url", zap.String("url", item.URL), zap.Error(err))
				continue
			}
			if w.cfg.RunBudget > 0 {
				remaining--
				if remaining <= 0 {
					w.coord.Stop("admission budget exhausted")
					break loop
				}
			}
		}
	}

	// The run deadline must not abandon in-flight crawls instantly; they
	// finish on the coordinator's base context.
	waitCtx := ctx
	if waitCtx.Err() != nil {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}
	if err := w.coord.Wait(waitCtx); err != nil {
		return fmt.Errorf("wait for coordinator: %w", err)
	}
	return nil
}

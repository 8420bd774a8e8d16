// Package shutdown drives the bounded-time drain sequence that runs before
// process exit.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Drainer flushes buffered work within a time budget.
type Drainer interface {
	Drain(ctx context.Context, budget time.Duration) error
}

// Config sets the drain budgets.
type Config struct {
	// DrainTimeout bounds the deliberate drain on signal or end of run.
	DrainTimeout time.Duration
	// ExitDrainTimeout bounds the last-resort drain at process exit.
	ExitDrainTimeout time.Duration
}

// Coordinator owns the end-of-life drain. The deliberate path runs once;
// the exit hook is a short best-effort fallback for paths that never
// reached it. Drain failures are logged and swallowed here, but recorded so
// the process can exit non-zero.
type Coordinator struct {
	drainer Drainer
	logger  *zap.Logger
	cfg     Config

	mu      sync.Mutex
	drained bool
	failed  bool
}

// New builds a Coordinator for the given drainer.
func New(drainer Drainer, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if drainer == nil {
		return nil, errors.New("shutdown coordinator requires a drainer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.ExitDrainTimeout <= 0 {
		cfg.ExitDrainTimeout = 5 * time.Second
	}
	return &Coordinator{
		drainer: drainer,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// WithSignals derives a context that ends on SIGINT or SIGTERM.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs the deliberate drain with the long budget.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.drain(ctx, c.cfg.DrainTimeout, false)
}

// ExitHook runs the short best-effort drain unless a deliberate drain
// already happened. Defer it at the top of the run so abrupt unwinds still
// try to flush.
func (c *Coordinator) ExitHook() {
	c.drain(context.Background(), c.cfg.ExitDrainTimeout, true)
}

// Failed reports whether any drain attempt failed; the process should exit
// non-zero when it did.
func (c *Coordinator) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *Coordinator) drain(ctx context.Context, budget time.Duration, bestEffort bool) {
	c.mu.Lock()
	if c.drained {
		c.mu.Unlock()
		return
	}
	c.drained = true
	c.mu.Unlock()

	c.logger.Info("draining buffered page records",
		zap.Duration("budget", budget),
		zap.Bool("best_effort", bestEffort),
	)
	if err := c.drainer.Drain(ctx, budget); err != nil {
		c.logger.Error("shutdown drain failed", zap.Error(err))
		c.mu.Lock()
		c.failed = true
		c.mu.Unlock()
		return
	}
	c.logger.Info("shutdown drain complete")
}

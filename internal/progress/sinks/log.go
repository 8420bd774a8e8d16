// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/progress"
)

// LogSink writes each event as a structured log line. It serves development
// and audits where no durable event store is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("crawl progress",
			zap.String("run_id", evt.RunID.String()),
			zap.Time("ts", evt.TS),
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
			zap.String("domain", evt.Domain),
			zap.String("outcome", evt.Outcome),
			zap.Int("links", evt.Links),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

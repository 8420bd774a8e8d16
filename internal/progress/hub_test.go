package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/clock/system"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func validEvent(stage Stage, url string) Event {
	return Event{
		RunID: uuid.New(),
		TS:    time.Now().UTC(),
		Stage: stage,
		URL:   url,
	}
}

func TestHubDeliversEventsToSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond, Logger: zap.NewNop()}, sink)

	hub.Emit(validEvent(StageAdmitted, "https://shop.example/a"))
	hub.Emit(validEvent(StageCrawled, "https://shop.example/a"))

	require.Eventually(t, func() bool { return sink.total() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubFlushesWhenBatchFills(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 5, MaxBatchWait: time.Hour, Logger: zap.NewNop()}, sink)

	for i := 0; i < 5; i++ {
		hub.Emit(validEvent(StageAdmitted, "https://shop.example/a"))
	}

	require.Eventually(t, func() bool { return sink.total() == 5 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubCloseFlushesTailAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour, Logger: zap.NewNop()}, sink)

	hub.Emit(validEvent(StageRejected, "https://shop.example/cart"))
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, 1, sink.total())
	require.True(t, sink.closed)

	// Emits after close are silently discarded.
	hub.Emit(validEvent(StageAdmitted, "https://shop.example/b"))
	require.Equal(t, 1, sink.total())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond, Logger: zap.NewNop()}, sink)

	hub.Emit(Event{Stage: StageAdmitted})
	require.NoError(t, hub.Close(context.Background()))
	require.Zero(t, sink.total())
}

func TestRunEmitterStampsRunIDAndTimestamp(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour, Logger: zap.NewNop()}, sink)
	runID := uuid.New()
	emitter := NewRunEmitter(runID, system.New(), hub)

	emitter.Emit(Event{Stage: StageCrawled, URL: "https://shop.example/a", Outcome: "success"})
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, 1, sink.total())
	got := sink.batches[0][0]
	require.Equal(t, runID, got.RunID)
	require.False(t, got.TS.IsZero())
	require.Equal(t, "success", got.Outcome)
}

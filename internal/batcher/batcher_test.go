package batcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/crawler"
	"github.com/furniture-helper/furniture-crawler/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func record(i int) crawler.PageRecord {
	return crawler.PageRecord{
		URL:            fmt.Sprintf("https://shop.example/products/item-%d", i),
		Domain:         "shop.example",
		ContentLocator: fmt.Sprintf("gs://furniture-pages/pages/item-%d.html", i),
		Active:         true,
	}
}

func enqueueN(t *testing.T, b *Batcher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, b.Enqueue(context.Background(), record(i)))
	}
}

func TestBatcherFlushWritesChunksInOrder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	b, err := New(store, Config{ChunkSize: 100, MaxWindow: 1000}, zap.NewNop())
	require.NoError(t, err)

	enqueueN(t, b, 250)
	require.Equal(t, 250, b.Pending())

	require.NoError(t, b.Flush(context.Background()))

	require.Equal(t, []int{100, 100, 50}, store.callSizes())
	require.Equal(t, record(0).URL, store.call(0)[0].URL)
	require.Equal(t, record(100).URL, store.call(1)[0].URL)
	require.Equal(t, 0, b.Pending())
	require.EqualValues(t, 250, b.Total())
}

func TestBatcherEnqueueFlushesAtThreshold(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	b, err := New(store, Config{ChunkSize: 100, MaxWindow: 10}, zap.NewNop())
	require.NoError(t, err)

	enqueueN(t, b, 9)
	require.Empty(t, store.callSizes())
	require.Equal(t, 9, b.Pending())

	require.NoError(t, b.Enqueue(context.Background(), record(9)))
	require.Equal(t, []int{10}, store.callSizes())
	require.Equal(t, 0, b.Pending())
}

func TestBatcherLastWriteWinsWithinChunk(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	b, err := New(store, Config{ChunkSize: 100, MaxWindow: 1000}, zap.NewNop())
	require.NoError(t, err)

	stale := record(1)
	stale.ContentLocator = "gs://furniture-pages/pages/stale.html"
	fresh := record(1)

	require.NoError(t, b.Enqueue(context.Background(), stale))
	require.NoError(t, b.Enqueue(context.Background(), record(2)))
	require.NoError(t, b.Enqueue(context.Background(), fresh))

	require.NoError(t, b.Flush(context.Background()))

	chunk := store.call(0)
	require.Len(t, chunk, 2)
	require.Equal(t, record(2).URL, chunk[0].URL)
	require.Equal(t, fresh.URL, chunk[1].URL)
	require.Equal(t, fresh.ContentLocator, chunk[1].ContentLocator)
	require.EqualValues(t, 2, b.Total())
}

func TestBatcherRetainsWindowOnFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failOn[1] = errors.New("store unavailable")
	b, err := New(store, Config{ChunkSize: 100, MaxWindow: 1000}, zap.NewNop())
	require.NoError(t, err)

	enqueueN(t, b, 3)
	require.Error(t, b.Flush(context.Background()))

	// Nothing was removed: the failed chunk stays at the head.
	require.Equal(t, 3, b.Pending())
	require.EqualValues(t, 0, b.Total())

	// The store healed; the retry flushes the same records.
	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, 0, b.Pending())
	require.Equal(t, []int{3}, store.callSizes())
	require.EqualValues(t, 3, b.Total())
}

func TestBatcherPartialFailureKeepsRemainder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failOn[2] = errors.New("store unavailable")
	b, err := New(store, Config{ChunkSize: 100, MaxWindow: 1000}, zap.NewNop())
	require.NoError(t, err)

	enqueueN(t, b, 250)
	require.Error(t, b.Flush(context.Background()))

	// First chunk landed, second failed: 150 records remain buffered.
	require.Equal(t, []int{100}, store.callSizes())
	require.Equal(t, 150, b.Pending())
	require.EqualValues(t, 100, b.Total())

	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, 0, b.Pending())
	require.EqualValues(t, 250, b.Total())
}

func TestBatcherSerializesStoreCalls(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.latency = 5 * time.Millisecond
	b, err := New(store, Config{ChunkSize: 10, MaxWindow: 1000}, zap.NewNop())
	require.NoError(t, err)

	enqueueN(t, b, 30)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Flush(context.Background())
		}()
	}
	wg.Wait()

	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, 1, store.maxConcurrent())
	require.Equal(t, 0, b.Pending())
	require.EqualValues(t, 30, b.Total())
}

func TestBatcherDrainTimeoutLeavesWindowIntact(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.latency = 200 * time.Millisecond
	b, err := New(store, Config{ChunkSize: 100, MaxWindow: 1000}, zap.NewNop())
	require.NoError(t, err)

	enqueueN(t, b, 5)

	start := time.Now()
	err = b.Drain(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrDrainTimeout)
	require.Less(t, elapsed, 150*time.Millisecond, "drain must report the timeout without waiting out the store")

	// Pending blocks on the batcher mutex until the stalled store call
	// returns, then reports the records that were kept.
	require.Equal(t, 5, b.Pending())
	require.EqualValues(t, 0, b.Total())
}

func TestBatcherDrainFlushesWindow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	b, err := New(store, Config{ChunkSize: 100, MaxWindow: 1000}, zap.NewNop())
	require.NoError(t, err)

	enqueueN(t, b, 7)
	require.NoError(t, b.Drain(context.Background(), time.Second))
	require.Equal(t, 0, b.Pending())
	require.EqualValues(t, 7, b.Total())
}

func TestBatcherDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{}, zap.NewNop())
	require.Error(t, err)

	_, err = New(newFakeStore(), Config{ChunkSize: -1}, zap.NewNop())
	require.Error(t, err)

	// Zero config falls back to a 100-row chunk.
	store := newFakeStore()
	b, err := New(store, Config{}, zap.NewNop())
	require.NoError(t, err)
	enqueueN(t, b, 150)
	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, []int{100, 50}, store.callSizes())
}

type fakeStore struct {
	mu          sync.Mutex
	calls       [][]crawler.PageRecord
	attempts    int
	failOn      map[int]error
	latency     time.Duration
	inflight    int
	maxInflight int
}

func newFakeStore() *fakeStore {
	return &fakeStore{failOn: make(map[int]error)}
}

func (s *fakeStore) UpsertPages(_ context.Context, pages []crawler.PageRecord) error {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		// Sleeps without watching the context, like a stalled driver would.
		time.Sleep(latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if err := s.failOn[attempt]; err != nil {
		return err
	}
	s.calls = append(s.calls, append([]crawler.PageRecord(nil), pages...))
	return nil
}

func (s *fakeStore) callSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, 0, len(s.calls))
	for _, c := range s.calls {
		sizes = append(sizes, len(c))
	}
	return sizes
}

func (s *fakeStore) call(i int) []crawler.PageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.PageRecord(nil), s.calls[i]...)
}

func (s *fakeStore) maxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInflight
}

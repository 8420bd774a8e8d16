package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/furniture-helper/furniture-crawler/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// fakeSource hands out scripted deliveries and records acknowledgements.
type fakeSource struct {
	mu       sync.Mutex
	batches  [][]Delivery
	fetchMax []int
	acked    []string
	ackErr   error
	block    bool
	closed   bool
}

func (f *fakeSource) Fetch(ctx context.Context, max int) ([]Delivery, error) {
	f.mu.Lock()
	f.fetchMax = append(f.fetchMax, max)
	if f.block {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSource) Acknowledge(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, token)
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) ackedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func newConsumer(t *testing.T, source Source, cfg Config) *Consumer {
	t.Helper()
	c, err := NewConsumer(source, cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestConsumerPullTracksTokens(t *testing.T) {
	t.Parallel()

	source := &fakeSource{batches: [][]Delivery{{
		{URL: "https://shop.example/p/1", Token: "t1"},
		{URL: "https://shop.example/p/2", Token: "t2"},
	}}}
	c := newConsumer(t, source, Config{MaxBatch: 10})

	items, err := c.Pull(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "https://shop.example/p/1", items[0].URL)
	require.Equal(t, "t1", items[0].DeliveryToken)
	require.Equal(t, 2, c.Tracked())
}

func TestConsumerPullSizing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		maxBatch  int
		remaining int
		want      int
	}{
		{"unbounded budget uses provider max", 10, 0, 10},
		{"large budget capped by provider max", 10, 500, 10},
		{"small budget pulls a tenth rounded up", 10, 25, 3},
		{"tiny budget still pulls one", 10, 4, 1},
		{"exact tenth", 10, 100, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			source := &fakeSource{}
			c := newConsumer(t, source, Config{MaxBatch: tc.maxBatch})
			_, err := c.Pull(context.Background(), tc.remaining)
			require.NoError(t, err)
			require.Equal(t, []int{tc.want}, source.fetchMax)
		})
	}
}

func TestConsumerPullWaitExpiryIsEmptyBatch(t *testing.T) {
	t.Parallel()

	source := &fakeSource{block: true}
	c := newConsumer(t, source, Config{MaxBatch: 5, WaitTimeout: 20 * time.Millisecond})

	items, err := c.Pull(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestConsumerPullCallerCancellationIsError(t *testing.T) {
	t.Parallel()

	source := &fakeSource{block: true}
	c := newConsumer(t, source, Config{MaxBatch: 5, WaitTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Pull(ctx, 0)
	require.Error(t, err)
}

func TestConsumerAckUsesNewestToken(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example/p/1"
	source := &fakeSource{batches: [][]Delivery{
		{{URL: url, Token: "old"}},
		{{URL: url, Token: "new"}},
	}}
	c := newConsumer(t, source, Config{MaxBatch: 10})

	_, err := c.Pull(context.Background(), 0)
	require.NoError(t, err)
	_, err = c.Pull(context.Background(), 0)
	require.NoError(t, err)

	require.NoError(t, c.Ack(context.Background(), url))
	require.Equal(t, []string{"new"}, source.ackedTokens())
	require.Equal(t, 0, c.Tracked())
}

func TestConsumerAckWithoutTokenIsNoOp(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	c := newConsumer(t, source, Config{MaxBatch: 10})

	require.NoError(t, c.Ack(context.Background(), "https://shop.example/p/unknown"))
	require.Empty(t, source.ackedTokens())
}

func TestConsumerDoubleAckSecondIsNoOp(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example/p/1"
	source := &fakeSource{batches: [][]Delivery{{{URL: url, Token: "t1"}}}}
	c := newConsumer(t, source, Config{MaxBatch: 10})

	_, err := c.Pull(context.Background(), 0)
	require.NoError(t, err)

	require.NoError(t, c.Ack(context.Background(), url))
	require.NoError(t, c.Ack(context.Background(), url))
	require.Equal(t, []string{"t1"}, source.ackedTokens())
}

func TestConsumerAckPropagatesSourceFault(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example/p/1"
	source := &fakeSource{
		batches: [][]Delivery{{{URL: url, Token: "t1"}}},
		ackErr:  errors.New("broker unavailable"),
	}
	c := newConsumer(t, source, Config{MaxBatch: 10})

	_, err := c.Pull(context.Background(), 0)
	require.NoError(t, err)
	require.Error(t, c.Ack(context.Background(), url))
}

func TestConsumerClose(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	c := newConsumer(t, source, Config{})
	require.NoError(t, c.Close())
	require.True(t, source.closed)
}

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/furniture-helper/furniture-crawler/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func TestLimiterPacesSameDomain(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: the second fetch waits ~100ms.
	l := New(Config{DomainRPS: 10, DomainBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://shop.example/products/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://shop.example/products/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDomainsDoNotShareBuckets(t *testing.T) {
	t.Parallel()

	l := New(Config{DomainRPS: 1, DomainBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 2, l.Domains())
}

func TestLimiterWWWAndBareHostShareBucket(t *testing.T) {
	t.Parallel()

	l := New(Config{DomainRPS: 1, DomainBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.shop.example/a"))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(waitCtx, "https://shop.example/b"))
	require.Equal(t, 1, l.Domains())
}

func TestLimiterZeroRPSNeverBlocks(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://shop.example/a"))
	}
}

func TestLimiterCanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DomainRPS: 1, DomainBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://shop.example/a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://shop.example/b"))
}

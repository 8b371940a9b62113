// Copyright 2025 James Ross
package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestLimiter(t *testing.T, cfg Config) (*Limiter, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewLimiter(rdb, zap.NewNop(), cfg)
	cleanup := func() { rdb.Close(); mr.Close() }
	return l, cleanup
}

func TestConsumeAllowsWithinBurst(t *testing.T) {
	l, cleanup := setupTestLimiter(t, Config{RatePerSecond: 10, BurstSize: 5, KeyTTL: time.Minute})
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Consume(ctx, "scan", 1)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
}

func TestConsumeDeniesOnceBurstExhausted(t *testing.T) {
	l, cleanup := setupTestLimiter(t, Config{RatePerSecond: 1, BurstSize: 2, KeyTTL: time.Minute})
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Consume(ctx, "scan", 1)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Consume(ctx, "scan", 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestConsumeScopesAreIndependent(t *testing.T) {
	l, cleanup := setupTestLimiter(t, Config{RatePerSecond: 1, BurstSize: 1, KeyTTL: time.Minute})
	defer cleanup()
	ctx := context.Background()

	res1, err := l.Consume(ctx, "a", 1)
	require.NoError(t, err)
	require.True(t, res1.Allowed)

	res2, err := l.Consume(ctx, "b", 1)
	require.NoError(t, err)
	require.True(t, res2.Allowed)
}

func TestResetRestoresBucket(t *testing.T) {
	l, cleanup := setupTestLimiter(t, Config{RatePerSecond: 1, BurstSize: 1, KeyTTL: time.Minute})
	defer cleanup()
	ctx := context.Background()

	_, err := l.Consume(ctx, "scan", 1)
	require.NoError(t, err)
	res, err := l.Consume(ctx, "scan", 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "scan"))
	res2, err := l.Consume(ctx, "scan", 1)
	require.NoError(t, err)
	require.True(t, res2.Allowed)
}

// Copyright 2025 James Ross
package admin

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestAdmin(t *testing.T) (*config.Config, *redis.Client, *queue.Orchestrator, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)

	o := queue.NewOrchestrator(rdb, cfg.Sharq.KeyPrefix, nil, int64(cfg.Sharq.JobExpireInterval.Milliseconds()), cfg.Sharq.IntervalFloorMS)
	cleanup := func() { rdb.Close(); mr.Close() }
	return cfg, rdb, o, cleanup
}

func TestStatsListsReadyTypes(t *testing.T) {
	cfg, rdb, o, cleanup := setupTestAdmin(t)
	defer cleanup()
	ctx := context.Background()

	_, err := o.Enqueue(ctx, "sms", "q1", "j1", []byte("x"), 1000)
	require.NoError(t, err)

	stats, err := Stats(ctx, cfg, rdb)
	require.NoError(t, err)
	require.Contains(t, stats.ReadyTypes, "sms")
	require.Empty(t, stats.ActiveTypes)
}

func TestPeekListsJobIDsWithoutConsuming(t *testing.T) {
	cfg, rdb, o, cleanup := setupTestAdmin(t)
	defer cleanup()
	ctx := context.Background()

	_, err := o.Enqueue(ctx, "sms", "q1", "j1", []byte("a"), 1000)
	require.NoError(t, err)
	_, err = o.Enqueue(ctx, "sms", "q1", "j2", []byte("b"), 1000)
	require.NoError(t, err)

	peek, err := Peek(ctx, cfg, rdb, "sms", "q1", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"j1", "j2"}, peek.JobIDs)

	res, err := o.Dequeue(ctx, "sms")
	require.NoError(t, err)
	require.Equal(t, "j1", res.JobID)
}

func TestPurgeTypeDeletesKeysAndDeregistersType(t *testing.T) {
	cfg, rdb, o, cleanup := setupTestAdmin(t)
	defer cleanup()
	ctx := context.Background()

	_, err := o.Enqueue(ctx, "sms", "q1", "j1", []byte("a"), 1000)
	require.NoError(t, err)
	_, err = o.Enqueue(ctx, "sms", "q2", "j2", []byte("b"), 1000)
	require.NoError(t, err)

	deleted, err := PurgeType(ctx, cfg, rdb, "sms")
	require.NoError(t, err)
	require.Greater(t, deleted, int64(0))

	stats, err := Stats(ctx, cfg, rdb)
	require.NoError(t, err)
	require.NotContains(t, stats.ReadyTypes, "sms")
}

func TestSetIntervalUpdatesExistingTenant(t *testing.T) {
	_, _, o, cleanup := setupTestAdmin(t)
	defer cleanup()
	ctx := context.Background()

	_, err := o.Enqueue(ctx, "sms", "q1", "j1", []byte("a"), 1000)
	require.NoError(t, err)

	res, err := SetInterval(ctx, o, "sms", "q1", 5000)
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)
}

func TestBenchDrainsAllEnqueuedJobs(t *testing.T) {
	_, _, o, cleanup := setupTestAdmin(t)
	defer cleanup()
	ctx := context.Background()

	res, err := Bench(ctx, o, "bench", 2, 16, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	require.Greater(t, res.Duration.Nanoseconds(), int64(0))
}

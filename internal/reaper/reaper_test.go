// Copyright 2025 James Ross
package reaper

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweepRequeuesExpiredJobs(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Redis.Addr = mr.Addr()

	clock := &queue.FixedClock{Ms: 0}
	o := queue.NewOrchestrator(rdb, cfg.Sharq.KeyPrefix, clock, 2000, cfg.Sharq.IntervalFloorMS)
	log, _ := zap.NewDevelopment()
	rep := New(cfg, o, log)

	ctx := context.Background()
	_, err = o.Enqueue(ctx, "sms", "q1", "j1", []byte("hello"), 1000)
	require.NoError(t, err)
	res, err := o.Dequeue(ctx, "sms")
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)

	clock.Ms = 5000
	rep.sweepOnce(ctx)

	res2, err := o.Dequeue(ctx, "sms")
	require.NoError(t, err)
	require.Equal(t, "success", res2.Status)
	require.Equal(t, "j1", res2.JobID)
}

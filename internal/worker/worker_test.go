// Copyright 2025 James Ross
package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestConsumer(t *testing.T, handler Handler) (*Consumer, *queue.Orchestrator, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Worker.Count = 1
	cfg.Worker.QueueTypes = []string{"sms"}

	o := queue.NewOrchestrator(rdb, cfg.Sharq.KeyPrefix, nil, int64(cfg.Sharq.JobExpireInterval.Milliseconds()), cfg.Sharq.IntervalFloorMS)
	log, _ := zap.NewDevelopment()
	c := New(cfg, o, handler, log)

	cleanup := func() { rdb.Close(); mr.Close() }
	return c, o, rdb, cleanup
}

func TestProcessSuccessFinishesJob(t *testing.T) {
	var handled queue.DequeueResult
	c, o, _, cleanup := setupTestConsumer(t, func(ctx context.Context, job queue.DequeueResult) error {
		handled = job
		return nil
	})
	defer cleanup()
	ctx := context.Background()

	_, err := o.Enqueue(ctx, "sms", "q1", "j1", []byte("hello"), 1000)
	require.NoError(t, err)
	res, err := o.Dequeue(ctx, "sms")
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)

	c.process(ctx, "w1", "sms", res)
	require.Equal(t, "j1", handled.JobID)

	// Job was finished: a second finish call reports failure (not found).
	fin, err := o.Finish(ctx, "sms", "q1", "j1")
	require.NoError(t, err)
	require.Equal(t, "failure", fin.Status)
}

func TestProcessFailureLeavesJobForRequeue(t *testing.T) {
	c, o, _, cleanup := setupTestConsumer(t, func(ctx context.Context, job queue.DequeueResult) error {
		return errors.New("handler failed")
	})
	defer cleanup()
	ctx := context.Background()

	_, err := o.Enqueue(ctx, "sms", "q1", "j1", []byte("hello"), 1000)
	require.NoError(t, err)
	res, err := o.Dequeue(ctx, "sms")
	require.NoError(t, err)

	c.process(ctx, "w1", "sms", res)

	// Still active: finish must still succeed because the job was never removed.
	fin, err := o.Finish(ctx, "sms", "q1", "j1")
	require.NoError(t, err)
	require.Equal(t, "success", fin.Status)
}

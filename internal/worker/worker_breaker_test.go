// Copyright 2025 James Ross
package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/go-redis-work-queue/internal/breaker"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Repeated handler failures should trip the breaker open, pausing dequeues
// until the cooldown elapses.
func TestConsumerBreakerTripsOnRepeatedFailures(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Worker.Count = 1
	cfg.Worker.QueueTypes = []string{"sms"}
	cfg.Worker.BreakerPause = 5 * time.Millisecond
	cfg.Worker.PollInterval = 5 * time.Millisecond
	cfg.CircuitBreaker.Window = 20 * time.Millisecond
	cfg.CircuitBreaker.CooldownPeriod = 200 * time.Millisecond
	cfg.CircuitBreaker.FailureThreshold = 0.5
	cfg.CircuitBreaker.MinSamples = 1

	o := queue.NewOrchestrator(rdb, cfg.Sharq.KeyPrefix, nil, int64(cfg.Sharq.JobExpireInterval.Milliseconds()), cfg.Sharq.IntervalFloorMS)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		qid := "q" + string(rune('a'+i))
		_, err := o.Enqueue(ctx, "sms", qid, "j"+string(rune('a'+i)), []byte("x"), 1000)
		require.NoError(t, err)
	}

	log, _ := zap.NewDevelopment()
	c := New(cfg, o, func(ctx context.Context, job queue.DequeueResult) error {
		return errors.New("always fails")
	}, log)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = c.Run(runCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	opened := false
	for time.Now().Before(deadline) {
		if c.cb.State() == breaker.Open {
			opened = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	require.True(t, opened, "breaker did not open under repeated failures")
}

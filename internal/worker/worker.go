// Copyright 2025 James Ross
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/breaker"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"go.uber.org/zap"
)

// Handler processes one dequeued job. A nil return marks the job finished;
// a non-nil return leaves it in the active set, where it is recovered by
// the next requeue sweep once its expiry elapses.
type Handler func(ctx context.Context, job queue.DequeueResult) error

// Consumer runs a pool of goroutines that dequeue and process jobs across a
// configured set of queue types, gated by a shared circuit breaker.
type Consumer struct {
	cfg     *config.Config
	o       *queue.Orchestrator
	log     *zap.Logger
	cb      *breaker.CircuitBreaker
	handler Handler
	baseID  string
}

func New(cfg *config.Config, o *queue.Orchestrator, handler Handler, log *zap.Logger) *Consumer {
	cb := breaker.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)
	host, _ := os.Hostname()
	base := fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
	return &Consumer{cfg: cfg, o: o, log: log, cb: cb, handler: handler, baseID: base}
}

func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Worker.Count; i++ {
		wg.Add(1)
		id := fmt.Sprintf("%s-%d", c.baseID, i)
		go func(workerID string) {
			defer wg.Done()
			obs.WorkerActive.Inc()
			defer obs.WorkerActive.Dec()
			c.runOne(ctx, workerID)
		}(id)
	}

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				switch c.cb.State() {
				case breaker.Closed:
					obs.CircuitBreakerState.Set(0)
				case breaker.HalfOpen:
					obs.CircuitBreakerState.Set(1)
				case breaker.Open:
					obs.CircuitBreakerState.Set(2)
				}
			}
		}
	}()

	wg.Wait()
	return nil
}

func (c *Consumer) runOne(ctx context.Context, workerID string) {
	for ctx.Err() == nil {
		if !c.cb.Allow() {
			time.Sleep(c.cfg.Worker.BreakerPause)
			continue
		}

		found := false
		for _, qtype := range c.cfg.Worker.QueueTypes {
			deqCtx, deqSpan := obs.StartDequeueSpan(ctx, qtype)
			res, err := c.o.Dequeue(deqCtx, qtype)
			if err != nil {
				obs.RecordError(deqCtx, err)
				deqSpan.End()
				c.log.Warn("dequeue error", obs.String("queue_type", qtype), obs.Err(err))
				continue
			}
			if res.Status != "success" {
				deqSpan.End()
				obs.DequeueRateLimited.WithLabelValues(qtype).Inc()
				continue
			}
			obs.SetSpanSuccess(deqCtx)
			deqSpan.End()
			obs.JobsDequeued.WithLabelValues(qtype).Inc()

			c.process(ctx, workerID, qtype, res)
			found = true
			break
		}
		if !found {
			time.Sleep(c.cfg.Worker.PollInterval)
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID, queueType string, res queue.DequeueResult) {
	job := queue.NewJob(queueType, res.QueueID, res.JobID, res.Payload)
	ctx, span := obs.ContextWithJobSpan(ctx, job)
	defer span.End()

	obs.AddSpanAttributes(ctx, obs.KeyValue("worker.id", workerID))

	start := time.Now()
	err := c.handler(ctx, res)
	obs.JobProcessingDuration.Observe(time.Since(start).Seconds())

	prev := c.cb.State()
	c.cb.Record(err == nil)
	curr := c.cb.State()
	if prev != curr && curr == breaker.Open {
		obs.CircuitBreakerTrips.Inc()
	}

	if err != nil {
		obs.RecordError(ctx, err)
		c.log.Warn("job handler failed, leaving for requeue sweep",
			obs.String("job_id", res.JobID), obs.String("queue_type", queueType), obs.Err(err))
		return
	}

	obs.SetSpanSuccess(ctx)
	if _, ferr := c.o.Finish(ctx, queueType, res.QueueID, res.JobID); ferr != nil {
		c.log.Error("finish failed", obs.String("job_id", res.JobID), obs.Err(ferr))
		return
	}
	obs.JobsFinished.WithLabelValues(queueType).Inc()
	c.log.Info("job finished",
		obs.String("job_id", res.JobID), obs.String("queue_type", queueType), obs.String("queue_id", res.QueueID))
}

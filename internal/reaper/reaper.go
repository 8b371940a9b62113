// Copyright 2025 James Ross
package reaper

import (
	"context"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"go.uber.org/zap"
)

// Scheduler periodically sweeps every queue type's active set for jobs
// whose expiry has elapsed, moving them back to the front of their job
// list so a stalled or crashed consumer never strands a job indefinitely.
type Scheduler struct {
	cfg *config.Config
	o   *queue.Orchestrator
	log *zap.Logger
}

func New(cfg *config.Config, o *queue.Orchestrator, log *zap.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, o: o, log: log}
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.cfg.Sharq.RequeueInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	recovered, err := s.o.Requeue(ctx)
	if err != nil {
		s.log.Warn("requeue sweep error", obs.Err(err))
		return
	}
	for qtype, n := range recovered {
		if n == 0 {
			continue
		}
		obs.JobsRequeued.WithLabelValues(qtype).Add(float64(n))
		s.log.Warn("requeued expired jobs", obs.String("queue_type", qtype), obs.Int("count", int(n)))
	}
}

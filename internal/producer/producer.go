// Copyright 2025 James Ross
package producer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/flyingrobots/go-redis-work-queue/internal/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Producer walks a directory tree and enqueues one job per discovered file.
// The queue type is the file's top-level directory under ScanDir and the
// queue id is the second path segment below ScanDir, so a tree laid out as
// <ScanDir>/<type>/<tenant>/file mirrors the (T, Q) data model directly.
type Producer struct {
	cfg     *config.Config
	rdb     *redis.Client
	log     *zap.Logger
	o       *queue.Orchestrator
	limiter *ratelimit.Limiter
}

func New(cfg *config.Config, rdb *redis.Client, o *queue.Orchestrator, log *zap.Logger) *Producer {
	limiter := ratelimit.NewLimiter(rdb, log, ratelimit.Config{
		RatePerSecond: int64(cfg.Producer.RateLimitPerSec),
		BurstSize:     int64(cfg.Producer.RateLimitPerSec),
		KeyTTL:        time.Hour,
	})
	return &Producer{cfg: cfg, rdb: rdb, o: o, log: log, limiter: limiter}
}

func (p *Producer) Run(ctx context.Context) error {
	root := p.cfg.Producer.ScanDir
	absRoot, errAbs := filepath.Abs(root)
	if errAbs != nil {
		return errAbs
	}
	include := p.cfg.Producer.IncludeGlobs
	exclude := p.cfg.Producer.ExcludeGlobs

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		abs, err2 := filepath.Abs(path)
		if err2 != nil {
			return nil
		}
		if !strings.HasPrefix(abs, absRoot+string(os.PathSeparator)) && abs != absRoot {
			return nil
		}
		rel, _ := filepath.Rel(root, path)

		incMatch := len(include) == 0
		for _, g := range include {
			if ok, _ := doublestar.PathMatch(g, rel); ok {
				incMatch = true
				break
			}
		}
		if !incMatch {
			return nil
		}
		for _, g := range exclude {
			if ok, _ := doublestar.PathMatch(g, rel); ok {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.rateLimit(ctx); err != nil {
			return err
		}

		queueType, queueID := p.classify(rel)
		jobID := uuid.NewString()
		payload, err := os.ReadFile(path)
		if err != nil {
			p.log.Warn("skipping unreadable file", obs.String("path", path), obs.Err(err))
			return nil
		}

		enqCtx, enqSpan := obs.StartEnqueueSpan(ctx, queueType, queueID)
		obs.AddSpanAttributes(enqCtx,
			obs.KeyValue("job.id", jobID),
			obs.KeyValue("job.path", abs),
			obs.KeyValue("job.size", int64(len(payload))),
		)

		_, err = p.o.Enqueue(enqCtx, queueType, queueID, jobID, payload, p.cfg.Sharq.DefaultIntervalMS)
		if err != nil {
			obs.RecordError(enqCtx, err)
			enqSpan.End()
			return err
		}
		obs.SetSpanSuccess(enqCtx)
		enqSpan.End()

		obs.JobsEnqueued.WithLabelValues(queueType).Inc()
		p.log.Info("enqueued job",
			obs.String("job_id", jobID),
			obs.String("queue_type", queueType),
			obs.String("queue_id", queueID),
		)
		return nil
	})
}

// classify derives (queue_type, queue_id) from a file's path relative to
// ScanDir: the first segment is the type, the second the tenant id. A file
// one directory deep gets the configured default type and that directory's
// name as the id; a file directly in ScanDir gets the default type and the
// id "unassigned".
func (p *Producer) classify(rel string) (queueType, queueID string) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) >= 3:
		return parts[0], parts[1]
	case len(parts) == 2:
		return p.cfg.Producer.DefaultType, parts[0]
	default:
		return p.cfg.Producer.DefaultType, "unassigned"
	}
}

// rateLimit throttles the scan loop to the configured ingress rate using a
// Redis-backed token bucket, shared across every producer instance
// configured with the same rate_limit_key.
func (p *Producer) rateLimit(ctx context.Context) error {
	if p.cfg.Producer.RateLimitPerSec <= 0 {
		return nil
	}
	return p.limiter.Wait(ctx, p.cfg.Producer.RateLimitKey, 1)
}

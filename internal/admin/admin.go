// Copyright 2025 James Ross
package admin

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StatsResult summarizes the ready/active type registries for an operator
// dashboard: which queue types currently have queued or in-flight work. It
// lists type names only, without job or tenant counts.
type StatsResult struct {
	ReadyTypes  []string `json:"ready_types"`
	ActiveTypes []string `json:"active_types"`
}

func Stats(ctx context.Context, cfg *config.Config, rdb *redis.Client) (StatsResult, error) {
	keys := queue.KeyBuilder{Prefix: cfg.Sharq.KeyPrefix}
	ready, err := rdb.SMembers(ctx, keys.ReadyTypeRegistry()).Result()
	if err != nil {
		return StatsResult{}, err
	}
	active, err := rdb.SMembers(ctx, keys.ActiveTypeRegistry()).Result()
	if err != nil {
		return StatsResult{}, err
	}
	sort.Strings(ready)
	sort.Strings(active)
	return StatsResult{ReadyTypes: ready, ActiveTypes: active}, nil
}

// Metrics exposes the three-mode metrics query to admin tooling.
func Metrics(ctx context.Context, o *queue.Orchestrator, queueType, queueID string) (queue.MetricsResult, error) {
	return o.Metrics(ctx, queueType, queueID)
}

// PeekResult lists the job ids awaiting dequeue for one tenant, without
// consuming them.
type PeekResult struct {
	QueueType string   `json:"queue_type"`
	QueueID   string   `json:"queue_id"`
	JobIDs    []string `json:"job_ids"`
}

func Peek(ctx context.Context, cfg *config.Config, rdb *redis.Client, queueType, queueID string, n int64) (PeekResult, error) {
	if n <= 0 {
		n = 10
	}
	keys := queue.KeyBuilder{Prefix: cfg.Sharq.KeyPrefix}
	items, err := rdb.LRange(ctx, keys.JobList(queueType, queueID), 0, n-1).Result()
	if err != nil {
		return PeekResult{}, err
	}
	return PeekResult{QueueType: queueType, QueueID: queueID, JobIDs: items}, nil
}

// SetInterval updates a tenant's rate-limit interval via the orchestrator.
func SetInterval(ctx context.Context, o *queue.Orchestrator, queueType, queueID string, intervalMs int64) (queue.StatusResult, error) {
	return o.Interval(ctx, queueType, queueID, intervalMs)
}

// PurgeType deletes the per-type keys of one queue type: its ready set,
// active set, every tenant job list discoverable from the ready set, and the
// type's entries in both registries. Payload-map and interval-map entries and
// the per-minute rate counters are not deleted.
func PurgeType(ctx context.Context, cfg *config.Config, rdb *redis.Client, queueType string) (int64, error) {
	keys := queue.KeyBuilder{Prefix: cfg.Sharq.KeyPrefix}

	tenantIDs, err := rdb.ZRange(ctx, keys.ReadySet(queueType), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	toDelete := []string{keys.ReadySet(queueType), keys.ActiveSet(queueType)}
	for _, qid := range tenantIDs {
		toDelete = append(toDelete, keys.JobList(queueType, qid))
	}

	var deleted int64
	if len(toDelete) > 0 {
		n, err := rdb.Del(ctx, toDelete...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if err := rdb.SRem(ctx, keys.ReadyTypeRegistry(), queueType).Err(); err != nil {
		return deleted, err
	}
	if err := rdb.SRem(ctx, keys.ActiveTypeRegistry(), queueType).Err(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// BenchResult reports the outcome of an enqueue/dequeue throughput probe.
type BenchResult struct {
	Count      int           `json:"count"`
	Duration   time.Duration `json:"duration"`
	Throughput float64       `json:"throughput_jobs_per_sec"`
	P50        time.Duration `json:"p50_latency"`
	P95        time.Duration `json:"p95_latency"`
}

// Bench enqueues count jobs under a synthetic queue type/tenant, then
// dequeues and finishes them as fast as the rate limit allows, measuring
// per-job latency from enqueue to finish.
func Bench(ctx context.Context, o *queue.Orchestrator, queueType string, count int, payloadSize int, intervalMs int64) (BenchResult, error) {
	res := BenchResult{Count: count}
	if count <= 0 {
		return res, fmt.Errorf("count must be > 0")
	}
	if payloadSize <= 0 {
		payloadSize = 64
	}
	if intervalMs <= 0 {
		intervalMs = queue.DefaultIntervalFloorMS
	}

	queueID := "bench-" + uuid.NewString()
	payload := make([]byte, payloadSize)

	start := time.Now()
	enqueuedAt := make(map[string]time.Time, count)
	for i := 0; i < count; i++ {
		jobID := uuid.NewString()
		if _, err := o.Enqueue(ctx, queueType, queueID, jobID, payload, intervalMs); err != nil {
			return res, err
		}
		enqueuedAt[jobID] = time.Now()
	}

	lats := make([]float64, 0, count)
	for len(lats) < count {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		d, err := o.Dequeue(ctx, queueType)
		if err != nil {
			return res, err
		}
		if d.Status != "success" {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if _, err := o.Finish(ctx, queueType, d.QueueID, d.JobID); err != nil {
			return res, err
		}
		if t0, ok := enqueuedAt[d.JobID]; ok {
			lats = append(lats, time.Since(t0).Seconds())
		}
	}

	res.Duration = time.Since(start)
	if res.Duration > 0 {
		res.Throughput = float64(count) / res.Duration.Seconds()
	}
	if len(lats) > 0 {
		sort.Float64s(lats)
		res.P50 = time.Duration(lats[int(math.Round(0.50*float64(len(lats)-1)))] * float64(time.Second))
		res.P95 = time.Duration(lats[int(math.Round(0.95*float64(len(lats)-1)))] * float64(time.Second))
	}
	return res, nil
}

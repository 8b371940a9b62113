// Copyright 2025 James Ross
package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// MinuteCount is one (minute, count) sample from a rate counter series.
type MinuteCount struct {
	Minute int64
	Count  int64
}

// MetricsResult is the union of all three metrics modes; only the fields
// relevant to the requested mode are populated.
type MetricsResult struct {
	Status string

	// Global mode.
	QueueTypes     []string
	EnqueueCounts  []MinuteCount
	DequeueCounts  []MinuteCount

	// Per-type mode.
	QueueIDs []string

	// Per-tenant mode.
	QueueLength int64
}

// MetricsReader implements the read-only, three-mode metrics query (C6). It
// never mutates state and so needs no atomic script of its own beyond the
// shared minute-bucket decoder used by the global and per-tenant modes.
type MetricsReader struct {
	rdb    redis.Scripter
	client redis.Cmdable
	keys   KeyBuilder
	clock  Clock
}

func NewMetricsReader(rdb *redis.Client, keys KeyBuilder, clock Clock) *MetricsReader {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MetricsReader{rdb: rdb, client: rdb, keys: keys, clock: clock}
}

// Read dispatches to the mode selected by the presence of queueType/queueID.
func (r *MetricsReader) Read(ctx context.Context, queueType, queueID string) (MetricsResult, error) {
	if queueID != "" && !IsValidIdentifier(queueID) {
		return MetricsResult{}, badArgument("queue_id", "must be a non-empty identifier")
	}
	if queueType != "" && !IsValidIdentifier(queueType) {
		return MetricsResult{}, badArgument("queue_type", "must be a non-empty identifier")
	}

	switch {
	case queueType == "" && queueID == "":
		return r.global(ctx)
	case queueType != "" && queueID == "":
		return r.perType(ctx, queueType)
	case queueType != "" && queueID != "":
		return r.perTenant(ctx, queueType, queueID)
	default: // queueType == "" && queueID != ""
		return MetricsResult{}, badArgument("queue_id", "must be accompanied by queue_type")
	}
}

func (r *MetricsReader) global(ctx context.Context) (MetricsResult, error) {
	activeTypes, err := r.client.SMembers(ctx, r.keys.ActiveTypeRegistry()).Result()
	if err != nil {
		return MetricsResult{}, fmt.Errorf("metrics: active types: %w", err)
	}
	readyTypes, err := r.client.SMembers(ctx, r.keys.ReadyTypeRegistry()).Result()
	if err != nil {
		return MetricsResult{}, fmt.Errorf("metrics: ready types: %w", err)
	}
	allTypes := unionStrings(activeTypes, readyTypes)

	now := r.clock.NowMs()
	enq, deq, err := r.runMetricsScript(ctx, r.keys.Prefix, now)
	if err != nil {
		return MetricsResult{}, err
	}

	return MetricsResult{
		Status:        "success",
		QueueTypes:    allTypes,
		EnqueueCounts: enq,
		DequeueCounts: deq,
	}, nil
}

func (r *MetricsReader) perType(ctx context.Context, queueType string) (MetricsResult, error) {
	pipe := r.client.Pipeline()
	readyCmd := pipe.ZRange(ctx, r.keys.ReadySet(queueType), 0, -1)
	activeCmd := pipe.ZRange(ctx, r.keys.ActiveSet(queueType), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return MetricsResult{}, fmt.Errorf("metrics: per-type: %w", err)
	}

	ready, _ := readyCmd.Result()
	active, _ := activeCmd.Result()

	ids := make(map[string]struct{}, len(ready)+len(active))
	for _, q := range ready {
		ids[q] = struct{}{}
	}
	for _, token := range active {
		if idx := strings.IndexByte(token, ':'); idx >= 0 {
			ids[token[:idx]] = struct{}{}
		}
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}

	return MetricsResult{Status: "success", QueueIDs: out}, nil
}

func (r *MetricsReader) perTenant(ctx context.Context, queueType, queueID string) (MetricsResult, error) {
	base := r.keys.TenantBase(queueType, queueID)
	now := r.clock.NowMs()
	enq, deq, err := r.runMetricsScript(ctx, base, now)
	if err != nil {
		return MetricsResult{}, err
	}

	length, err := r.client.LLen(ctx, base).Result()
	if err != nil {
		return MetricsResult{}, fmt.Errorf("metrics: queue length: %w", err)
	}

	return MetricsResult{
		Status:        "success",
		EnqueueCounts: enq,
		DequeueCounts: deq,
		QueueLength:   length,
	}, nil
}

// runMetricsScript invokes metricsScript against base and decodes its two
// flat (minute, count) sequences into structured slices.
func (r *MetricsReader) runMetricsScript(ctx context.Context, base string, now int64) ([]MinuteCount, []MinuteCount, error) {
	reply, err := metricsScript.Run(ctx, r.rdb, []string{base}, now).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	rows, ok := reply.([]interface{})
	if !ok || len(rows) != 2 {
		return nil, nil, fmt.Errorf("metrics: unexpected script reply shape")
	}
	enq := decodeMinutePairs(rows[0])
	deq := decodeMinutePairs(rows[1])
	return enq, deq, nil
}

func decodeMinutePairs(v interface{}) []MinuteCount {
	flat, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]MinuteCount, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out = append(out, MinuteCount{
			Minute: toInt64(flat[i]),
			Count:  toInt64(flat[i+1]),
		})
	}
	return out
}

func unionStrings(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

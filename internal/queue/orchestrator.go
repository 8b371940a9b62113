// Copyright 2025 James Ross
package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueType is substituted whenever a caller omits queue_type.
const DefaultQueueType = "default"

// Orchestrator is the object clients call. It validates input, stamps the
// clock, computes keys, invokes the corresponding atomic script, and shapes
// the reply. It holds no state of its own beyond its collaborators, so
// restarts are always safe.
type Orchestrator struct {
	rdb           redis.Scripter
	plainClient   PlainCommander
	keys          KeyBuilder
	clock         Clock
	jobExpireMs   int64
	intervalFloor int64
	reader        *MetricsReader
}

// PlainCommander is the subset of *redis.Client the orchestrator needs
// outside of script invocation (the read of the active-type registry that
// Requeue iterates over).
type PlainCommander interface {
	redis.Cmdable
}

// NewOrchestrator wires a redis client, key prefix, clock and the two
// configured durations into a ready-to-use Orchestrator.
func NewOrchestrator(rdb *redis.Client, keyPrefix string, clock Clock, jobExpireMs, intervalFloorMs int64) *Orchestrator {
	kb := KeyBuilder{Prefix: keyPrefix}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Orchestrator{
		rdb:           rdb,
		plainClient:   rdb,
		keys:          kb,
		clock:         clock,
		jobExpireMs:   jobExpireMs,
		intervalFloor: intervalFloorMs,
		reader:        NewMetricsReader(rdb, kb, clock),
	}
}

func (o *Orchestrator) normalizeQueueType(queueType string) string {
	if queueType == "" {
		return DefaultQueueType
	}
	return queueType
}

func (o *Orchestrator) validateIdentifiers(fields map[string]string) error {
	for field, v := range fields {
		if !IsValidIdentifier(v) {
			return badArgument(field, "must be a non-empty identifier of letters, digits, '_' or '-'")
		}
	}
	return nil
}

// EnqueueResult mirrors the {status:"queued"} success reply.
type EnqueueResult struct {
	Status string
}

// Enqueue appends a job to (queueType, queueID)'s job list, binding its
// rate-limit interval on first sight of the tenant.
func (o *Orchestrator) Enqueue(ctx context.Context, queueType, queueID, jobID string, payload []byte, intervalMs int64) (EnqueueResult, error) {
	queueType = o.normalizeQueueType(queueType)
	if !IsValidInterval(intervalMs, o.intervalFloor) {
		return EnqueueResult{}, badArgument("interval", "must be between %d and %d ms", o.effectiveFloor(), MaxIntervalMS)
	}
	if err := o.validateIdentifiers(map[string]string{
		"job_id":     jobID,
		"queue_id":   queueID,
		"queue_type": queueType,
	}); err != nil {
		return EnqueueResult{}, err
	}

	now := o.clock.NowMs()
	_, err := enqueueScript.Run(ctx, o.rdb,
		[]string{o.keys.Prefix, queueType},
		now, queueID, jobID, payload, intervalMs,
	).Result()
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("enqueue: %w", err)
	}
	return EnqueueResult{Status: "queued"}, nil
}

func (o *Orchestrator) effectiveFloor() int64 {
	if o.intervalFloor <= 0 {
		return DefaultIntervalFloorMS
	}
	return o.intervalFloor
}

// DequeueResult mirrors the dequeue success/failure reply.
type DequeueResult struct {
	Status  string
	QueueID string
	JobID   string
	Payload []byte
}

// Dequeue pops the next eligible job for queueType, if any tenant's ready
// score has elapsed.
func (o *Orchestrator) Dequeue(ctx context.Context, queueType string) (DequeueResult, error) {
	queueType = o.normalizeQueueType(queueType)
	if !IsValidIdentifier(queueType) {
		return DequeueResult{}, badArgument("queue_type", "must be a non-empty identifier")
	}

	now := o.clock.NowMs()
	reply, err := dequeueScript.Run(ctx, o.rdb,
		[]string{o.keys.Prefix, queueType},
		now, o.jobExpireMs,
	).Result()
	if err != nil {
		return DequeueResult{}, fmt.Errorf("dequeue: %w", err)
	}

	items, ok := reply.([]interface{})
	if !ok || len(items) < 3 {
		return DequeueResult{Status: "failure"}, nil
	}
	queueID, _ := items[0].(string)
	jobID, _ := items[1].(string)
	payload := payloadBytes(items[2])

	return DequeueResult{
		Status:  "success",
		QueueID: queueID,
		JobID:   jobID,
		Payload: payload,
	}, nil
}

func payloadBytes(v interface{}) []byte {
	switch p := v.(type) {
	case string:
		return []byte(p)
	case []byte:
		return p
	default:
		return nil
	}
}

// StatusResult mirrors the plain {status:"success"|"failure"} reply used by
// finish and interval.
type StatusResult struct {
	Status string
}

// Finish marks a dequeued job as completed, removing it from the active set
// and its payload from the payload map.
func (o *Orchestrator) Finish(ctx context.Context, queueType, queueID, jobID string) (StatusResult, error) {
	queueType = o.normalizeQueueType(queueType)
	if err := o.validateIdentifiers(map[string]string{
		"job_id":     jobID,
		"queue_id":   queueID,
		"queue_type": queueType,
	}); err != nil {
		return StatusResult{}, err
	}

	reply, err := finishScript.Run(ctx, o.rdb,
		[]string{o.keys.Prefix, queueType},
		queueID, jobID,
	).Result()
	if err != nil {
		return StatusResult{}, fmt.Errorf("finish: %w", err)
	}
	if toInt64(reply) == 0 {
		return StatusResult{Status: "failure"}, nil
	}
	return StatusResult{Status: "success"}, nil
}

// Interval updates the rate-limit interval for an existing tenant. It takes
// effect on the tenant's next dequeue, not its current ready-set score.
func (o *Orchestrator) Interval(ctx context.Context, queueType, queueID string, intervalMs int64) (StatusResult, error) {
	queueType = o.normalizeQueueType(queueType)
	if !IsValidInterval(intervalMs, o.intervalFloor) {
		return StatusResult{}, badArgument("interval", "must be between %d and %d ms", o.effectiveFloor(), MaxIntervalMS)
	}
	if err := o.validateIdentifiers(map[string]string{
		"queue_id":   queueID,
		"queue_type": queueType,
	}); err != nil {
		return StatusResult{}, err
	}

	reply, err := intervalScript.Run(ctx, o.rdb,
		[]string{o.keys.Prefix, queueType},
		queueID, intervalMs,
	).Result()
	if err != nil {
		return StatusResult{}, fmt.Errorf("interval: %w", err)
	}
	if toInt64(reply) == 0 {
		return StatusResult{Status: "failure"}, nil
	}
	return StatusResult{Status: "success"}, nil
}

// Requeue enumerates every queue type with in-flight work and invokes the
// requeue script once per type, so a single atomic execution never spans
// the whole deployment. It returns the number of jobs recovered per type.
func (o *Orchestrator) Requeue(ctx context.Context) (map[string]int64, error) {
	types, err := o.plainClient.SMembers(ctx, o.keys.ActiveTypeRegistry()).Result()
	if err != nil {
		return nil, fmt.Errorf("requeue: list active types: %w", err)
	}

	now := o.clock.NowMs()
	recovered := make(map[string]int64, len(types))
	for _, qtype := range types {
		reply, err := requeueScript.Run(ctx, o.rdb,
			[]string{o.keys.Prefix, qtype},
			now,
		).Result()
		if err != nil {
			return recovered, fmt.Errorf("requeue: type %q: %w", qtype, err)
		}
		recovered[qtype] = toInt64(reply)
	}
	return recovered, nil
}

// Metrics delegates to the three-mode metrics reader.
func (o *Orchestrator) Metrics(ctx context.Context, queueType, queueID string) (MetricsResult, error) {
	return o.reader.Read(ctx, queueType, queueID)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// Copyright 2025 James Ross
package queue

import "strconv"

// KeyBuilder is a pure function of (prefix, type, id, job) to the store keys
// enumerated in the data model. It is the single source of truth for key
// shape, used both by Go callers (the metrics reader, admin tooling) and
// mirrored inside the Lua scripts, which reconstruct the same keys from the
// same prefix/type/id arguments rather than receiving every key precomputed.
type KeyBuilder struct {
	Prefix string
}

// JobList is P:T:Q, the ordered list of job ids awaiting dequeue.
func (k KeyBuilder) JobList(queueType, queueID string) string {
	return k.Prefix + ":" + queueType + ":" + queueID
}

// PayloadMap is P:payload, the hash of "T:Q:J" -> payload bytes.
func (k KeyBuilder) PayloadMap() string {
	return k.Prefix + ":payload"
}

// PayloadField is the "T:Q:J" field within PayloadMap.
func (k KeyBuilder) PayloadField(queueType, queueID, jobID string) string {
	return queueType + ":" + queueID + ":" + jobID
}

// IntervalMap is P:interval, the hash of "T:Q" -> interval_ms.
func (k KeyBuilder) IntervalMap() string {
	return k.Prefix + ":interval"
}

// IntervalField is the "T:Q" field within IntervalMap.
func (k KeyBuilder) IntervalField(queueType, queueID string) string {
	return queueType + ":" + queueID
}

// ReadySet is P:T, the score-ordered set of queue ids eligible for dequeue.
func (k KeyBuilder) ReadySet(queueType string) string {
	return k.Prefix + ":" + queueType
}

// ActiveSet is P:T:active, the score-ordered set of in-flight "Q:J" tokens.
func (k KeyBuilder) ActiveSet(queueType string) string {
	return k.Prefix + ":" + queueType + ":active"
}

// ActiveMember is the "Q:J" member token within an ActiveSet.
func (k KeyBuilder) ActiveMember(queueID, jobID string) string {
	return queueID + ":" + jobID
}

// ReadyTypeRegistry is P:ready:queue_type.
func (k KeyBuilder) ReadyTypeRegistry() string {
	return k.Prefix + ":ready:queue_type"
}

// ActiveTypeRegistry is P:active:queue_type.
func (k KeyBuilder) ActiveTypeRegistry() string {
	return k.Prefix + ":active:queue_type"
}

// EnqueueCounter is P:enqueue:<minute>, the global per-minute enqueue count.
func (k KeyBuilder) EnqueueCounter(minute int64) string {
	return k.Prefix + ":enqueue:" + strconv.FormatInt(minute, 10)
}

// DequeueCounter is P:dequeue:<minute>, the global per-minute dequeue count.
func (k KeyBuilder) DequeueCounter(minute int64) string {
	return k.Prefix + ":dequeue:" + strconv.FormatInt(minute, 10)
}

// TenantBase is P:T:Q, the key prefix under which per-tenant counters live.
func (k KeyBuilder) TenantBase(queueType, queueID string) string {
	return k.Prefix + ":" + queueType + ":" + queueID
}

// Minute truncates an epoch-millisecond timestamp to its UTC minute bucket.
func Minute(nowMs int64) int64 {
	return nowMs / 60000
}

// Copyright 2025 James Ross
package queue

// Job is an envelope around an opaque payload bound for a specific tenant.
// The core never parses Payload; it is a single byte token handed to the
// store and returned verbatim on dequeue.
type Job struct {
	QueueType string
	QueueID   string
	JobID     string
	Payload   []byte
}

func NewJob(queueType, queueID, jobID string, payload []byte) Job {
	return Job{QueueType: queueType, QueueID: queueID, JobID: jobID, Payload: payload}
}

// Package queue defines the durable job queue contract (§4.6): at
// least once delivery, retry with exponential backoff, per-queue
// concurrency and rate limits, and bounded retention of finished jobs.
package queue

import (
	"context"

	"github.com/mailmirror/core/internal/domain"
)

// Queue is the durable job queue surface one backend (Redis) implements.
type Queue interface {
	// Enqueue durably stores job and makes it immediately eligible for
	// Pop. Callers set job.Queue and job.Payload; Enqueue assigns ID,
	// State, MaxAttempts defaults, and timestamps.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Pop claims the next ready job on name, honoring that queue's rate
	// limit. Returns (nil, nil) when nothing is ready right now rather
	// than blocking, so a worker can poll other queues.
	Pop(ctx context.Context, name domain.QueueName) (*domain.Job, error)

	// Ack marks job completed and schedules it for retention cleanup.
	Ack(ctx context.Context, job *domain.Job) error

	// Retry re-enqueues job after an exponential backoff computed from
	// its updated AttemptCount, or moves it to JobDead when
	// AttemptCount has reached MaxAttempts (§4.6, §7).
	Retry(ctx context.Context, job *domain.Job, cause error) error

	// PurgeExpired moves jobs whose processing lease has expired back
	// onto their pending set and returns how many it moved; finished
	// jobs expire on their own retention TTL. Intended to run on its own periodic tick, separate from
	// the sync scheduler's 5-minute tick (§4.8).
	PurgeExpired(ctx context.Context) (int, error)
}

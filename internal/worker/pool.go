// Package worker runs the durable job queues (§4.6): one pool of
// goroutines per queue, each repeatedly popping a job, dispatching it
// to the registered handler, and acking or retrying the result.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/queue"
)

// idlePollInterval is how long a worker sleeps after finding no ready
// job before polling its queue again.
const idlePollInterval = 2 * time.Second

// Handler processes one job. Returning an error causes Retry with
// backoff; returning nil acks the job.
type Handler func(ctx context.Context, job *domain.Job) error

type registration struct {
	name        domain.QueueName
	concurrency int
	handler     Handler
}

// Pool runs a fixed number of goroutines per registered queue,
// generalizing the single shared worker pool the teacher's codebase
// uses for one concern into one pool per queue, since each queue has
// its own concurrency and rate-limit requirements (§4.6).
type Pool struct {
	q       queue.Queue
	log     *zap.Logger
	metrics *monitoring.Metrics
	regs    []registration
}

func New(q queue.Queue, log *zap.Logger, metrics *monitoring.Metrics) *Pool {
	return &Pool{q: q, log: log, metrics: metrics}
}

// Register adds a queue to run with concurrency worker goroutines.
// Must be called before Run.
func (p *Pool) Register(name domain.QueueName, concurrency int, handler Handler) {
	p.regs = append(p.regs, registration{name: name, concurrency: concurrency, handler: handler})
}

// Run blocks until ctx is canceled, running every registered queue's
// workers concurrently. It always returns nil on shutdown: worker
// failures are handled per-job via Retry, not propagated as a pool
// failure, since one account's provider outage must not stop every
// other account's sync (§7).
func (p *Pool) Run(ctx context.Context) error {
	done := make(chan struct{})
	var active int
	for _, reg := range p.regs {
		for i := 0; i < reg.concurrency; i++ {
			active++
			go func(reg registration) {
				p.runWorker(ctx, reg)
				done <- struct{}{}
			}(reg)
		}
	}
	for i := 0; i < active; i++ {
		<-done
	}
	return nil
}

func (p *Pool) runWorker(ctx context.Context, reg registration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.q.Pop(ctx, reg.name)
		if err != nil {
			p.log.Error("popping job", zap.String("queue", string(reg.name)), zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}

		p.process(ctx, reg, job)
	}
}

func (p *Pool) process(ctx context.Context, reg registration, job *domain.Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panic", zap.String("queue", string(reg.name)), zap.Any("recovered", r))
			_ = p.q.Retry(ctx, job, errPanic)
		}
	}()

	if err := reg.handler(ctx, job); err != nil {
		p.log.Warn("job failed",
			zap.String("queue", string(reg.name)),
			zap.String("jobId", job.ID),
			zap.Int("attempt", job.AttemptCount+1),
			zap.Error(err),
		)

		// A rejected credential needs a human to fix it, not another
		// attempt a few seconds later: retrying just re-hammers the
		// provider's auth endpoint and risks locking the account (§7).
		// Forcing AttemptCount to MaxAttempts makes Retry's own
		// exhausted-attempts branch dead-letter the job immediately.
		if errors.Is(err, mailerr.ErrCredentialRejected) {
			job.AttemptCount = job.MaxAttempts
			if retryErr := p.q.Retry(ctx, job, err); retryErr != nil {
				p.log.Error("dead-lettering job", zap.String("jobId", job.ID), zap.Error(retryErr))
			}
			p.recordOutcome(reg.name, true)
			return
		}

		willDeadLetter := job.AttemptCount+1 >= job.MaxAttempts
		if retryErr := p.q.Retry(ctx, job, err); retryErr != nil {
			p.log.Error("retrying job", zap.String("jobId", job.ID), zap.Error(retryErr))
		}
		p.recordOutcome(reg.name, willDeadLetter)
		return
	}

	if err := p.q.Ack(ctx, job); err != nil {
		p.log.Error("acking job", zap.String("jobId", job.ID), zap.Error(err))
		return
	}
	if p.metrics != nil {
		p.metrics.RecordJobCompleted(string(reg.name))
	}
}

// recordOutcome records a failed job against either the dead or
// retried counter, depending on whether Retry moved it to JobDead or
// rescheduled it with backoff.
func (p *Pool) recordOutcome(name domain.QueueName, dead bool) {
	if p.metrics == nil {
		return
	}
	if dead {
		p.metrics.RecordJobDead(string(name))
		return
	}
	p.metrics.RecordJobRetried(string(name))
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(idlePollInterval):
	}
}

var errPanic = panicError{}

type panicError struct{}

func (panicError) Error() string { return "worker panic recovered" }

package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
	"github.com/mailmirror/core/internal/monitoring"
)

// fakeQueue records Ack/Retry calls and mimics just enough of the
// redis queue's Retry semantics (dead-letter once AttemptCount reaches
// MaxAttempts) for the pool's dispatch logic to be tested in isolation.
type fakeQueue struct {
	mu       sync.Mutex
	acked    []*domain.Job
	retried  []*domain.Job
	deadened []*domain.Job
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *domain.Job) error { return nil }
func (f *fakeQueue) Pop(ctx context.Context, name domain.QueueName) (*domain.Job, error) {
	return nil, nil
}

func (f *fakeQueue) Ack(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, job)
	return nil
}

func (f *fakeQueue) Retry(ctx context.Context, job *domain.Job, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.AttemptCount++
	if job.AttemptCount >= job.MaxAttempts {
		job.State = domain.JobDead
		f.deadened = append(f.deadened, job)
		return nil
	}
	job.State = domain.JobFailed
	f.retried = append(f.retried, job)
	return nil
}

func (f *fakeQueue) PurgeExpired(ctx context.Context) (int, error) { return 0, nil }

// testMetrics is shared across this package's tests: promauto registers
// against the default registry, so constructing a fresh Metrics per
// test function would panic on the second registration.
var testMetrics = monitoring.NewMetrics()

func TestProcessAcksAndRecordsCompletionOnSuccess(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), testMetrics)
	reg := registration{name: domain.QueueInitialSync, handler: func(ctx context.Context, job *domain.Job) error { return nil }}

	job := &domain.Job{ID: "job1", MaxAttempts: 3}
	p.process(context.Background(), reg, job)

	require.Len(t, q.acked, 1)
	assert.Empty(t, q.retried)
	assert.Empty(t, q.deadened)
}

func TestProcessRetriesOrdinaryFailures(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), testMetrics)
	reg := registration{name: domain.QueueInitialSync, handler: func(ctx context.Context, job *domain.Job) error {
		return fmt.Errorf("transient provider error")
	}}

	job := &domain.Job{ID: "job1", MaxAttempts: 3}
	p.process(context.Background(), reg, job)

	assert.Empty(t, q.acked)
	require.Len(t, q.retried, 1)
	assert.Empty(t, q.deadened)
}

func TestProcessDeadLettersCredentialRejectionImmediately(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, zap.NewNop(), testMetrics)
	reg := registration{name: domain.QueueInitialSync, handler: func(ctx context.Context, job *domain.Job) error {
		return fmt.Errorf("imap login: %w", mailerr.ErrCredentialRejected)
	}}

	// MaxAttempts is large enough that an ordinary failure would not
	// dead-letter on the first attempt; credential rejection must skip
	// straight to dead regardless.
	job := &domain.Job{ID: "job1", MaxAttempts: 5}
	p.process(context.Background(), reg, job)

	assert.Empty(t, q.acked)
	assert.Empty(t, q.retried)
	require.Len(t, q.deadened, 1)
	assert.Equal(t, domain.JobDead, q.deadened[0].State)
}

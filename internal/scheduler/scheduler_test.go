package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/store/memory"
)

// fakeQueue records every Enqueue call; the other Queue methods are
// unused by the scheduler and left unimplemented.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []*domain.Job
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, job)
	return nil
}
func (f *fakeQueue) Pop(ctx context.Context, name domain.QueueName) (*domain.Job, error) { return nil, nil }
func (f *fakeQueue) Ack(ctx context.Context, job *domain.Job) error                       { return nil }
func (f *fakeQueue) Retry(ctx context.Context, job *domain.Job, cause error) error        { return nil }
func (f *fakeQueue) PurgeExpired(ctx context.Context) (int, error)                        { return 0, nil }

// testMetrics is shared across this package's tests: promauto registers
// against the default registry, so constructing a fresh Metrics per
// test function would panic on the second registration.
var testMetrics = monitoring.NewMetrics()

func TestTickEnqueuesIncrementalSyncForDueAccounts(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID:            "acc1",
		UserID:        "user1",
		Email:         "user@gmail.com",
		SyncedFolders: domain.NewStringSet("INBOX", "Sent"),
	}))

	q := &fakeQueue{}
	s := New(st, q, testMetrics, zap.NewNop())
	s.tick(context.Background())

	require.Len(t, q.enqueued, 1)
	job := q.enqueued[0]
	assert.Equal(t, domain.QueueIncrementalSync, job.Queue)
	assert.Equal(t, incrementalSyncMaxAttempts, job.MaxAttempts)

	var payload domain.IncrementalSyncPayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, "acc1", payload.AccountID)
	assert.ElementsMatch(t, []string{"INBOX", "Sent"}, payload.Folders)
}

func TestTickSkipsAccountsWithNoSyncedFolders(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID:            "acc1",
		UserID:        "user1",
		Email:         "user@gmail.com",
		SyncedFolders: domain.NewStringSet(),
	}))

	q := &fakeQueue{}
	s := New(st, q, testMetrics, zap.NewNop())
	s.tick(context.Background())

	assert.Empty(t, q.enqueued)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := memory.New()
	q := &fakeQueue{}
	s := New(st, q, testMetrics, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

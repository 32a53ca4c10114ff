package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/provider"
	"github.com/mailmirror/core/internal/store/memory"
)

// fakeAdapter implements provider.Adapter with canned data, standing
// in for a live IMAP/Graph connection.
type fakeAdapter struct {
	folders   []domain.RawFolder
	highest   map[string]provider.Watermark
	fetched   map[string][]provider.FetchedMessage
	testErr   error
}

func (f *fakeAdapter) TestConnection(ctx context.Context) error { return f.testErr }
func (f *fakeAdapter) ListFolders(ctx context.Context) ([]domain.RawFolder, error) {
	return f.folders, nil
}
func (f *fakeAdapter) HighestWatermark(ctx context.Context, folder string) (provider.Watermark, error) {
	return f.highest[folder], nil
}
func (f *fakeAdapter) FetchSince(ctx context.Context, folder string, since provider.Watermark) ([]provider.FetchedMessage, error) {
	return f.fetched[folder], nil
}

// fakeFactory always returns the same adapter regardless of account.
type fakeFactory struct {
	mu      sync.Mutex
	adapter provider.Adapter
	calls   int
}

func (f *fakeFactory) NewAdapter(ctx context.Context, account *domain.MailAccount) (provider.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.adapter, nil
}

func TestRunInitialSyncDiscoversAndPersistsMessages(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID:     "acc1",
		UserID: "user1",
		Email:  "user@gmail.com",
	}))

	adapter := &fakeAdapter{
		folders: []domain.RawFolder{
			{DisplayName: "INBOX"},
			{DisplayName: "Notes"}, // excluded, should never be synced
		},
		highest: map[string]provider.Watermark{
			"INBOX": provider.UIDWatermark(2),
		},
		fetched: map[string][]provider.FetchedMessage{
			"INBOX": {
				{Message: domain.Message{UID: 1, Subject: "hi"}, Watermark: provider.UIDWatermark(1)},
				{Message: domain.Message{UID: 2, Subject: "hi2"}, Watermark: provider.UIDWatermark(2)},
			},
		},
	}
	factory := &fakeFactory{adapter: adapter}
	orch := NewWithFactory(st, nil, &fakeQueue{}, factory, Config{}, testMetrics, zap.NewNop())

	err := orch.RunInitialSync(context.Background(), "acc1")
	require.NoError(t, err)

	account, err := st.GetAccount(context.Background(), "acc1")
	require.NoError(t, err)
	assert.True(t, account.SyncedFolders.Has("INBOX"))
	assert.False(t, account.SyncedFolders.Has("Notes"))
	assert.NotNil(t, account.LastSyncedAt)

	page, err := st.ListMessages(context.Background(), domain.MessageFilter{AccountID: "acc1", Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestRunInitialSyncSkipsFolderWithNoNewMail(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{ID: "acc1", UserID: "u", Email: "u@gmail.com"}))

	adapter := &fakeAdapter{
		folders: []domain.RawFolder{{DisplayName: "INBOX"}},
		highest: map[string]provider.Watermark{"INBOX": provider.UIDWatermark(0)},
	}
	factory := &fakeFactory{adapter: adapter}
	orch := NewWithFactory(st, nil, &fakeQueue{}, factory, Config{}, testMetrics, zap.NewNop())

	err := orch.RunInitialSync(context.Background(), "acc1")
	require.NoError(t, err)

	account, err := st.GetAccount(context.Background(), "acc1")
	require.NoError(t, err)
	assert.True(t, account.SyncedFolders.Has("INBOX"))
}

func TestRunIncrementalSyncOnlyRevisitsGivenFolders(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: "acc1", UserID: "u", Email: "u@gmail.com",
		SyncedFolders: domain.NewStringSet("INBOX"),
	}))

	adapter := &fakeAdapter{
		highest: map[string]provider.Watermark{"INBOX": provider.UIDWatermark(1)},
		fetched: map[string][]provider.FetchedMessage{
			"INBOX": {{Message: domain.Message{UID: 1, Subject: "hi"}, Watermark: provider.UIDWatermark(1)}},
		},
	}
	factory := &fakeFactory{adapter: adapter}
	orch := NewWithFactory(st, nil, &fakeQueue{}, factory, Config{}, testMetrics, zap.NewNop())

	err := orch.RunIncrementalSync(context.Background(), "acc1", []string{"INBOX"})
	require.NoError(t, err)

	page, err := st.ListMessages(context.Background(), domain.MessageFilter{AccountID: "acc1", Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSyncFolderResyncsFromScratchOnUIDValidityChange(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: "acc1", UserID: "u", Email: "u@gmail.com",
		SyncedFolders:     domain.NewStringSet("INBOX"),
		FolderUIDValidity: map[string]uint32{"INBOX": 100},
	}))
	// Pre-existing mirrored message under the OLD uidvalidity generation.
	require.NoError(t, st.UpsertMessage(context.Background(), &domain.Message{
		AccountID: "acc1", Folder: "INBOX", UID: 5, Subject: "old",
	}))

	adapter := &fakeAdapter{
		highest: map[string]provider.Watermark{
			"INBOX": provider.UIDWatermarkWithValidity(2, 200), // validity bumped, UIDs reset low
		},
		fetched: map[string][]provider.FetchedMessage{
			"INBOX": {
				{Message: domain.Message{UID: 1, Subject: "new1"}},
				{Message: domain.Message{UID: 2, Subject: "new2"}},
			},
		},
	}
	factory := &fakeFactory{adapter: adapter}
	orch := NewWithFactory(st, nil, &fakeQueue{}, factory, Config{}, testMetrics, zap.NewNop())

	err := orch.RunIncrementalSync(context.Background(), "acc1", []string{"INBOX"})
	require.NoError(t, err)

	page, err := st.ListMessages(context.Background(), domain.MessageFilter{AccountID: "acc1", Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total) // old UID-5 message plus both re-fetched low UIDs

	account, err := st.GetAccount(context.Background(), "acc1")
	require.NoError(t, err)
	assert.Equal(t, uint32(200), account.FolderUIDValidity["INBOX"])
}

func TestWatermarkAheadComparesByKind(t *testing.T) {
	assert.True(t, watermarkAhead(provider.UIDWatermark(5), provider.UIDWatermark(2)))
	assert.False(t, watermarkAhead(provider.UIDWatermark(2), provider.UIDWatermark(2)))

	now := time.Now()
	past := now.Add(-time.Hour)
	assert.True(t, watermarkAhead(provider.TimestampWatermark(now), provider.TimestampWatermark(past)))
	assert.False(t, watermarkAhead(provider.TimestampWatermark(past), provider.TimestampWatermark(now)))
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "gmail.com", emailDomain("someone@gmail.com"))
	assert.Equal(t, "", emailDomain("not-an-email"))
}

// fakeQueue records enqueued jobs without a real backing store.
type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*domain.Job
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
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

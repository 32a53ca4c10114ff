package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmirror/core/internal/domain"
)

type fakeSyncRunner struct {
	initialCalled      string
	incrementalCalled  string
	incrementalFolders []string
	err                error
}

func (f *fakeSyncRunner) RunInitialSync(ctx context.Context, accountID string) error {
	f.initialCalled = accountID
	return f.err
}

func (f *fakeSyncRunner) RunIncrementalSync(ctx context.Context, accountID string, folders []string) error {
	f.incrementalCalled = accountID
	f.incrementalFolders = folders
	return f.err
}

func TestInitialSyncHandlerDispatchesByAccountID(t *testing.T) {
	runner := &fakeSyncRunner{}
	payload, err := json.Marshal(domain.InitialSyncPayload{AccountID: "acc1", Email: "a@b.com"})
	require.NoError(t, err)

	handler := InitialSyncHandler(runner)
	err = handler(context.Background(), &domain.Job{Queue: domain.QueueInitialSync, Payload: payload})

	require.NoError(t, err)
	assert.Equal(t, "acc1", runner.initialCalled)
}

func TestInitialSyncHandlerPropagatesError(t *testing.T) {
	runner := &fakeSyncRunner{err: errors.New("boom")}
	payload, _ := json.Marshal(domain.InitialSyncPayload{AccountID: "acc1"})

	handler := InitialSyncHandler(runner)
	err := handler(context.Background(), &domain.Job{Payload: payload})

	assert.EqualError(t, err, "boom")
}

func TestInitialSyncHandlerRejectsMalformedPayload(t *testing.T) {
	handler := InitialSyncHandler(&fakeSyncRunner{})
	err := handler(context.Background(), &domain.Job{Payload: []byte("not json")})
	assert.Error(t, err)
}

func TestIncrementalSyncHandlerDispatchesFolders(t *testing.T) {
	runner := &fakeSyncRunner{}
	payload, err := json.Marshal(domain.IncrementalSyncPayload{
		AccountID: "acc1",
		Folders:   []string{"INBOX", "Sent"},
	})
	require.NoError(t, err)

	handler := IncrementalSyncHandler(runner)
	err = handler(context.Background(), &domain.Job{Payload: payload})

	require.NoError(t, err)
	assert.Equal(t, "acc1", runner.incrementalCalled)
	assert.Equal(t, []string{"INBOX", "Sent"}, runner.incrementalFolders)
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/orchestrator"
)

// syncRunner is the subset of *orchestrator.Orchestrator the sync
// handlers depend on, narrowed for testability.
type syncRunner interface {
	RunInitialSync(ctx context.Context, accountID string) error
	RunIncrementalSync(ctx context.Context, accountID string, folders []string) error
}

var _ syncRunner = (*orchestrator.Orchestrator)(nil)

// InitialSyncHandler returns the Handler for domain.QueueInitialSync:
// unmarshal the payload and run discovery plus a full delta sync over
// every eligible folder (§4.7.1, §4.7.5).
func InitialSyncHandler(o syncRunner) Handler {
	return func(ctx context.Context, job *domain.Job) error {
		var payload domain.InitialSyncPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshaling initial-sync payload: %w", err)
		}
		return o.RunInitialSync(ctx, payload.AccountID)
	}
}

// IncrementalSyncHandler returns the Handler for
// domain.QueueIncrementalSync: unmarshal the payload and delta-sync
// only the account's previously-synced folders, no rediscovery (§4.7.5).
func IncrementalSyncHandler(o syncRunner) Handler {
	return func(ctx context.Context, job *domain.Job) error {
		var payload domain.IncrementalSyncPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshaling incremental-sync payload: %w", err)
		}
		return o.RunIncrementalSync(ctx, payload.AccountID, payload.Folders)
	}
}

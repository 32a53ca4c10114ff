// Package scheduler runs the periodic tick that drives incremental
// sync (§4.8): every 5 minutes, enumerate accounts due for a refresh
// and enqueue one incremental-sync job per account.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/queue"
	"github.com/mailmirror/core/internal/store"
)

// tickInterval is the scheduler's fixed cadence (§4.8).
const tickInterval = 5 * time.Minute

// incrementalSyncMaxAttempts is the scheduler's own enqueue option
// (§4.8), set explicitly and equal to the queue's general default: an
// incremental-sync job gets at most 3 attempts before dead-lettering.
const incrementalSyncMaxAttempts = 3

// Scheduler enumerates accounts due for sync on a fixed tick and
// enqueues their incremental-sync job.
type Scheduler struct {
	accounts store.AccountStore
	queue    queue.Queue
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

func New(accounts store.AccountStore, q queue.Queue, metrics *monitoring.Metrics, log *zap.Logger) *Scheduler {
	return &Scheduler{accounts: accounts, queue: q, metrics: metrics, log: log}
}

// Run blocks, ticking every 5 minutes until ctx is canceled. It runs
// one tick immediately on start rather than waiting out the first
// interval, so a freshly deployed scheduler doesn't leave accounts
// idle for up to 5 minutes before its first pass.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tick(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	accounts, err := s.accounts.ListAccountsDueForSync(ctx)
	if err != nil {
		s.log.Error("listing accounts due for sync", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.SetAccountsDueForSync(len(accounts))
	}

	enqueued := 0
	for _, account := range accounts {
		if err := s.enqueueIncrementalSync(ctx, &account); err != nil {
			s.log.Error("enqueuing incremental sync",
				zap.String("accountId", account.ID), zap.Error(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordJobEnqueued(string(domain.QueueIncrementalSync))
		}
		enqueued++
	}
	s.log.Info("scheduler tick complete", zap.Int("accountsDue", len(accounts)), zap.Int("enqueued", enqueued))
}

func (s *Scheduler) enqueueIncrementalSync(ctx context.Context, account *domain.MailAccount) error {
	payload, err := json.Marshal(domain.IncrementalSyncPayload{
		AccountID: account.ID,
		Email:     account.Email,
		Folders:   account.SyncedFolders.Slice(),
	})
	if err != nil {
		return fmt.Errorf("marshaling incremental-sync payload: %w", err)
	}
	return s.queue.Enqueue(ctx, &domain.Job{
		Queue:       domain.QueueIncrementalSync,
		Payload:     payload,
		MaxAttempts: incrementalSyncMaxAttempts,
	})
}

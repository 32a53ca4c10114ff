// Package store defines the mirror store (§4.5): idempotent message
// and account persistence plus full-text search, independent of which
// SQL backend implements it.
package store

import (
	"context"
	"time"

	"github.com/mailmirror/core/internal/domain"
)

// AccountStore persists MailAccount records.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *domain.MailAccount) error
	GetAccount(ctx context.Context, id string) (*domain.MailAccount, error)
	GetAccountByEmail(ctx context.Context, userID, email string) (*domain.MailAccount, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]domain.MailAccount, error)
	// ListAccountsDueForSync returns every account ordered by
	// lastSyncedAt ascending (oldest/never-synced first), excluding
	// accounts with no synced folders yet (§4.8 scheduler contract).
	ListAccountsDueForSync(ctx context.Context) ([]domain.MailAccount, error)
	UpdateAccount(ctx context.Context, account *domain.MailAccount) error
	// DeleteAccount removes the account and every message mirrored
	// under it (§6 DELETE /accounts/{id}).
	DeleteAccount(ctx context.Context, id string) error
}

// MessageStore persists and queries Message records.
type MessageStore interface {
	// UpsertMessage inserts a message, silently absorbing the unique
	// (accountId, uid, folder) constraint violation as a no-op success
	// so retried jobs stay idempotent (§4.5, §7).
	UpsertMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, filter domain.MessageFilter) (domain.MessagePage, error)
	GetMessage(ctx context.Context, accountID, id string) (*domain.Message, error)
	MarkRead(ctx context.Context, accountID, id string, isRead bool) error
	// SoftDelete tombstones a message (sets DeletedAt) rather than
	// removing the row, preserving search history (§4.5).
	SoftDelete(ctx context.Context, accountID, id string) error
	Search(ctx context.Context, query domain.SearchQuery) (domain.MessagePage, error)
	// HighestUID returns the highest IMAP UID mirrored for
	// (accountID, folder), the watermark an IMAP delta sync resumes
	// from (§4.7.3).
	HighestUID(ctx context.Context, accountID, folder string) (int, error)
	// HighestReceivedAt returns the most recent ReceivedAt mirrored
	// for (accountID, folder), the watermark a Graph delta sync
	// resumes from since Graph has no per-folder UID (§4.7.4, §9).
	HighestReceivedAt(ctx context.Context, accountID, folder string) (time.Time, error)
}

// AttachmentStore persists attachment metadata (never blob bytes;
// those flow through the out-of-scope Uploader, §4.4).
type AttachmentStore interface {
	SaveAttachmentMeta(ctx context.Context, att *domain.Attachment) error
	ListAttachments(ctx context.Context, messageID string) ([]domain.Attachment, error)
}

// Store composes the full mirror store surface.
type Store interface {
	AccountStore
	MessageStore
	AttachmentStore
}

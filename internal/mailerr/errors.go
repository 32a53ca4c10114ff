// Package mailerr defines the normalized error taxonomy the sync
// engine uses across adapters, the orchestrator, and the HTTP surface.
// Kinds are sentinel errors, not library types, so callers test with
// errors.Is regardless of which adapter or store produced the error.
package mailerr

import (
	"errors"
	"strconv"
)

var (
	// ErrConfig marks a fatal startup misconfiguration (weak
	// ENCRYPTION_KEY, missing OAuth secrets).
	ErrConfig = errors.New("config error")

	// ErrCredentialRejected marks an IMAP AUTH failure or Graph
	// 401/invalid_grant: the account needs user intervention. The job
	// fails immediately without retry.
	ErrCredentialRejected = errors.New("credential rejected")

	// ErrProviderUnavailable marks DNS, TLS, 5xx, or socket timeouts:
	// retried by the queue with backoff, dead-lettered on exhaustion.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProtocol marks an unexpected IMAP response or malformed Graph
	// payload: the folder is skipped, siblings continue.
	ErrProtocol = errors.New("protocol error")

	// ErrParse marks a malformed RFC 5322 message: the message is
	// skipped and counted, the chunk continues.
	ErrParse = errors.New("parse error")

	// ErrDuplicateInsert is absorbed silently by the uniqueness
	// constraint; exported so callers can distinguish it from a real
	// failure when they care to.
	ErrDuplicateInsert = errors.New("duplicate insert")

	// ErrNotFound marks a requested account or message not owned by
	// the caller: surfaced to the HTTP caller as 404.
	ErrNotFound = errors.New("not found")

	// ErrCredentialTampered marks an AES-GCM authentication tag
	// mismatch on vault decryption.
	ErrCredentialTampered = errors.New("credential tampered")

	// ErrAlreadyLinked marks onboarding of an (user, email) pair that
	// is already linked: surfaced as 409.
	ErrAlreadyLinked = errors.New("account already linked")

	// ErrUnknownProvider marks onboarding of an email whose domain
	// does not map to a known provider.
	ErrUnknownProvider = errors.New("unknown provider")
)

// FolderError wraps a per-folder failure with enough context to log
// without aborting sibling folders (§7 per-folder isolation).
type FolderError struct {
	AccountID string
	Folder    string
	Err       error
}

func (e *FolderError) Error() string {
	return "folder " + e.Folder + " (account " + e.AccountID + "): " + e.Err.Error()
}

func (e *FolderError) Unwrap() error {
	return e.Err
}

// MessageError wraps a per-message parse failure (§7 per-message
// isolation): the message is skipped, the chunk continues.
type MessageError struct {
	UID int
	Err error
}

func (e *MessageError) Error() string {
	return "message uid " + strconv.Itoa(e.UID) + ": " + e.Err.Error()
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

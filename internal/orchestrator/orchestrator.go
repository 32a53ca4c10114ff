// Package orchestrator drives one sync attempt for one account (§4.7):
// onboarding, folder discovery, and the per-folder delta-sync loop
// that bridges a provider.Adapter to the mirror store, independent of
// which queue or HTTP handler triggered the run.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/normalizer"
	"github.com/mailmirror/core/internal/provider"
	"github.com/mailmirror/core/internal/provider/graph"
	"github.com/mailmirror/core/internal/provider/imap"
	"github.com/mailmirror/core/internal/queue"
	"github.com/mailmirror/core/internal/store"
	"github.com/mailmirror/core/internal/vault"
)

// chunkSize bounds how many newly-fetched messages are persisted per
// batch within one folder sync (§4.7.3).
const chunkSize = 50

// initialSyncMaxAttempts/attachmentUploadMaxAttempts are this
// orchestrator's own enqueue options, alongside the scheduler's (§4.8)
// incremental-sync option: onboarding and attachment uploads use the
// queue's general default retry budget of 3 attempts.
const (
	initialSyncMaxAttempts      = 3
	attachmentUploadMaxAttempts = 3
)

// Config configures an Orchestrator. CertsDir and TLSRejectUnauthorized
// are forwarded to every IMAP connection; MSClientID/MSClientSecret
// are used to rotate a Graph account's refresh token before each sync.
type Config struct {
	CertsDir              string
	TLSRejectUnauthorized bool
	MSClientID            string
	MSClientSecret        string
}

// Orchestrator implements §4.7's onboarding, discovery, and delta-sync
// responsibilities over one account at a time.
type Orchestrator struct {
	store   store.Store
	vault   *vault.Vault
	queue   queue.Queue
	factory provider.Factory
	cfg     Config
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// New returns an Orchestrator using the default adapterFactory (vault
// decrypt for IMAP, vault token rotation for Graph).
func New(st store.Store, vlt *vault.Vault, q queue.Queue, cfg Config, metrics *monitoring.Metrics, log *zap.Logger) *Orchestrator {
	return NewWithFactory(st, vlt, q, NewAdapterFactory(vlt, st, cfg), cfg, metrics, log)
}

// NewWithFactory returns an Orchestrator using a caller-supplied
// provider.Factory, primarily so tests can substitute a fake adapter
// without a live IMAP/Graph endpoint. cfg still supplies the TLS
// settings OnboardIMAP's one-off validation connection uses.
func NewWithFactory(st store.Store, vlt *vault.Vault, q queue.Queue, factory provider.Factory, cfg Config, metrics *monitoring.Metrics, log *zap.Logger) *Orchestrator {
	return &Orchestrator{store: st, vault: vlt, queue: q, factory: factory, cfg: cfg, metrics: metrics, log: log}
}

// OnboardIMAP implements §4.7.1's IMAP onboarding path: detect the
// provider, validate the credential with a live connect/logout,
// encrypt it, persist the account, and enqueue its initial sync.
func (o *Orchestrator) OnboardIMAP(ctx context.Context, userID, email, password string) (*domain.MailAccount, error) {
	if existing, err := o.store.GetAccountByEmail(ctx, userID, email); err == nil && existing != nil {
		return nil, mailerr.ErrAlreadyLinked
	}

	at := emailDomain(email)
	detected := domain.DetectProvider(at)
	if detected == domain.ProviderUnknown {
		return nil, fmt.Errorf("%w: %s", mailerr.ErrUnknownProvider, at)
	}

	adapter := imap.New(imap.Config{
		Host:                  imapHostFor(detected),
		Username:              email,
		Password:              password,
		CertsDir:              o.cfg.CertsDir,
		TLSRejectUnauthorized: o.cfg.TLSRejectUnauthorized,
	})
	if err := adapter.TestConnection(ctx); err != nil {
		return nil, err
	}

	encrypted, err := o.vault.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("encrypting credential: %w", err)
	}

	account := &domain.MailAccount{
		UserID:            userID,
		Email:             email,
		Provider:          detected,
		EncryptedPassword: encrypted,
		SyncedFolders:     domain.NewStringSet(),
		CreatedAt:         time.Now().UTC(),
	}
	if err := o.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("persisting account: %w", err)
	}

	if err := o.enqueueInitialSync(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// OnboardOAuth implements §4.7.1's OAuth onboarding path. If the
// (user, email) pair already exists its tokens are rotated and a fresh
// initial sync is enqueued rather than rejecting as already-linked.
func (o *Orchestrator) OnboardOAuth(ctx context.Context, userID, email, accessToken, refreshToken string) (*domain.MailAccount, error) {
	existing, err := o.store.GetAccountByEmail(ctx, userID, email)
	if err == nil && existing != nil {
		existing.AccessToken = accessToken
		existing.RefreshToken = refreshToken
		if err := o.store.UpdateAccount(ctx, existing); err != nil {
			return nil, fmt.Errorf("rotating tokens: %w", err)
		}
		if err := o.enqueueInitialSync(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	account := &domain.MailAccount{
		UserID:        userID,
		Email:         email,
		Provider:      domain.ProviderOutlook,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		SyncedFolders: domain.NewStringSet(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("persisting account: %w", err)
	}
	if err := o.enqueueInitialSync(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (o *Orchestrator) enqueueInitialSync(ctx context.Context, account *domain.MailAccount) error {
	payload, err := marshalPayload(domain.InitialSyncPayload{AccountID: account.ID, Email: account.Email})
	if err != nil {
		return err
	}
	if err := o.queue.Enqueue(ctx, &domain.Job{
		Queue:       domain.QueueInitialSync,
		Payload:     payload,
		MaxAttempts: initialSyncMaxAttempts,
	}); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.RecordJobEnqueued(string(domain.QueueInitialSync))
	}
	return nil
}

// RunInitialSync implements §4.7.5's initial-sync path: discover every
// folder, then delta-sync each. Per-folder failures are logged and
// skipped so one bad folder never aborts its siblings (§7).
func (o *Orchestrator) RunInitialSync(ctx context.Context, accountID string) error {
	start := time.Now()
	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}

	adapter, err := o.factory.NewAdapter(ctx, account)
	if err != nil {
		o.recordSyncError(account, "initial")
		return err
	}

	folders, err := o.discoverFolders(ctx, adapter)
	if err != nil {
		o.recordSyncError(account, "initial")
		return fmt.Errorf("discovering folders: %w", err)
	}

	synced := domain.NewStringSet()
	for _, folder := range folders {
		if err := o.syncFolder(ctx, account, adapter, folder); err != nil {
			// A rejected credential applies to every folder alike:
			// continuing to the next one would just re-hammer the
			// same broken auth (§7). Abort the whole run instead.
			if errors.Is(err, mailerr.ErrCredentialRejected) {
				return err
			}
			o.recordSyncError(account, "folder")
			o.log.Warn("folder sync failed, continuing with siblings",
				zap.String("accountId", accountID), zap.String("folder", folder), zap.Error(err))
			continue
		}
		synced.Add(folder)
	}

	account.SyncedFolders = synced
	now := time.Now().UTC()
	account.LastSyncedAt = &now
	o.persistAdapterCache(account, adapter)
	if err := o.store.UpdateAccount(ctx, account); err != nil {
		return err
	}
	o.recordSyncDuration(account, "initial", time.Since(start))
	return nil
}

// RunIncrementalSync implements §4.7.5's incremental-sync path: only
// the previously-synced folder set is revisited, no rediscovery.
func (o *Orchestrator) RunIncrementalSync(ctx context.Context, accountID string, folders []string) error {
	start := time.Now()
	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}

	adapter, err := o.factory.NewAdapter(ctx, account)
	if err != nil {
		o.recordSyncError(account, "incremental")
		return err
	}

	for _, folder := range folders {
		if err := o.syncFolder(ctx, account, adapter, folder); err != nil {
			if errors.Is(err, mailerr.ErrCredentialRejected) {
				return err
			}
			o.recordSyncError(account, "folder")
			o.log.Warn("folder sync failed, continuing with siblings",
				zap.String("accountId", accountID), zap.String("folder", folder), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	account.LastSyncedAt = &now
	o.persistAdapterCache(account, adapter)
	if err := o.store.UpdateAccount(ctx, account); err != nil {
		return err
	}
	o.recordSyncDuration(account, "incremental", time.Since(start))
	return nil
}

// discoverFolders implements §4.7.2: list raw folders, canonicalize,
// drop excluded folders, dedupe, and order by sync priority.
func (o *Orchestrator) discoverFolders(ctx context.Context, adapter provider.Adapter) ([]string, error) {
	raw, err := adapter.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	seen := domain.NewStringSet()
	var canonical []string
	for _, f := range raw {
		name := normalizer.Canonicalize(f)
		if !normalizer.ShouldSync(name) || seen.Has(name) {
			continue
		}
		seen.Add(name)
		canonical = append(canonical, name)
	}
	return normalizer.SortByPriority(canonical), nil
}

// syncFolder implements the shared shape of §4.7.3 (IMAP) and §4.7.4
// (Graph): read the mirror's current watermark, ask the adapter for
// everything newer, and persist in bounded chunks. The two provider
// watermark representations (UID vs timestamp) are unified by
// provider.Watermark, so this loop is provider-agnostic.
func (o *Orchestrator) syncFolder(ctx context.Context, account *domain.MailAccount, adapter provider.Adapter, folder string) error {
	since, err := o.currentWatermark(ctx, account, folder)
	if err != nil {
		return &mailerr.FolderError{AccountID: account.ID, Folder: folder, Err: err}
	}

	highest, err := adapter.HighestWatermark(ctx, folder)
	if err != nil {
		return err
	}

	// A changed UIDVALIDITY means the server reassigned this folder's
	// UIDs out from under us (rebuild, migration): the old watermark no
	// longer identifies the same messages, so resync from scratch
	// rather than silently missing or misreading mail (§9 Open Question a).
	if since.Kind == provider.WatermarkUID && since.UIDValidity != 0 && highest.UIDValidity != since.UIDValidity {
		o.log.Warn("uidvalidity changed, forcing full re-discovery of folder",
			zap.String("accountId", account.ID), zap.String("folder", folder),
			zap.Uint32("oldUidValidity", since.UIDValidity), zap.Uint32("newUidValidity", highest.UIDValidity))
		since = provider.UIDWatermark(0)
	}

	// A server highest UID below the mirror's own under an unchanged
	// UIDVALIDITY means UIDNEXT went backwards: the same kind of reset,
	// handled the same way.
	if since.Kind == provider.WatermarkUID && highest.Kind == provider.WatermarkUID && highest.UID < since.UID {
		o.log.Warn("uidnext went backwards, forcing full re-discovery of folder",
			zap.String("accountId", account.ID), zap.String("folder", folder),
			zap.Int("mirrorHighestUid", since.UID), zap.Int("serverHighestUid", highest.UID))
		since = provider.UIDWatermark(0)
	}

	if !watermarkAhead(highest, since) {
		return nil
	}

	if g, ok := adapter.(*graph.Adapter); ok {
		floor, err := o.store.HighestUID(ctx, account.ID, folder)
		if err != nil {
			return &mailerr.FolderError{AccountID: account.ID, Folder: folder, Err: err}
		}
		if account.LastFetchedUID > floor {
			floor = account.LastFetchedUID
		}
		g.SeedUID(floor)
	}

	fetched, err := adapter.FetchSince(ctx, folder, since)
	if err != nil {
		return err
	}

	mirrored := 0
	for start := 0; start < len(fetched); start += chunkSize {
		end := start + chunkSize
		if end > len(fetched) {
			end = len(fetched)
		}
		for _, fm := range fetched[start:end] {
			msg := fm.Message
			msg.AccountID = account.ID
			msg.Folder = folder
			if err := o.store.UpsertMessage(ctx, &msg); err != nil {
				o.recordSyncError(account, "message")
				o.log.Warn("persisting message failed, continuing with siblings",
					zap.String("accountId", account.ID), zap.String("folder", folder), zap.Int("uid", msg.UID), zap.Error(err))
				continue
			}
			mirrored++
			for _, att := range msg.Attachments {
				att.MessageID = msg.ID
				if len(att.Bytes) == 0 {
					if err := o.store.SaveAttachmentMeta(ctx, att); err != nil {
						o.log.Warn("persisting attachment metadata failed",
							zap.String("messageId", msg.ID), zap.Error(err))
					}
					continue
				}
				// The sync engine never blocks on the upload itself
				// (§4.4): the attachment-upload job carries the bytes
				// and the worker persists the metadata once it has a
				// storage URL to record.
				if err := o.enqueueAttachmentUpload(ctx, msg.ID, att); err != nil {
					o.log.Warn("enqueuing attachment upload failed",
						zap.String("messageId", msg.ID), zap.Error(err))
				}
			}
		}
	}
	if mirrored > 0 && o.metrics != nil {
		o.metrics.RecordMessagesMirrored(string(account.Provider), mirrored)
	}

	if highest.Kind == provider.WatermarkUID {
		if account.FolderUIDValidity == nil {
			account.FolderUIDValidity = make(map[string]uint32)
		}
		account.FolderUIDValidity[folder] = highest.UIDValidity
	}
	return nil
}

// currentWatermark resolves the mirror's resume position for folder,
// choosing UID or timestamp based on the provider the account uses
// (§9 design note: Graph has no per-folder UID).
func (o *Orchestrator) currentWatermark(ctx context.Context, account *domain.MailAccount, folder string) (provider.Watermark, error) {
	if account.IsOAuth() {
		t, err := o.store.HighestReceivedAt(ctx, account.ID, folder)
		if err != nil {
			return provider.Watermark{}, err
		}
		return provider.TimestampWatermark(t), nil
	}
	uid, err := o.store.HighestUID(ctx, account.ID, folder)
	if err != nil {
		return provider.Watermark{}, err
	}
	return provider.UIDWatermarkWithValidity(uid, account.FolderUIDValidity[folder]), nil
}

// watermarkAhead reports whether highest is strictly ahead of since,
// i.e. there is new mail worth fetching.
func watermarkAhead(highest, since provider.Watermark) bool {
	switch highest.Kind {
	case provider.WatermarkTimestamp:
		return highest.Timestamp.After(since.Timestamp)
	default:
		return highest.UID > since.UID
	}
}

func (o *Orchestrator) enqueueAttachmentUpload(ctx context.Context, messageID string, att *domain.Attachment) error {
	payload, err := marshalPayload(domain.AttachmentUploadPayload{
		MessageID:   messageID,
		Filename:    att.Filename,
		Bytes:       att.Bytes,
		ContentType: att.ContentType,
	})
	if err != nil {
		return err
	}
	return o.queue.Enqueue(ctx, &domain.Job{
		Queue:       domain.QueueAttachmentUpload,
		Payload:     payload,
		MaxAttempts: attachmentUploadMaxAttempts,
	})
}

// persistAdapterCache copies a Graph adapter's resolved folder-id
// cache back onto the account so the next sync tick skips a cold
// mailFolders re-scan (§4.7.2), and raises account.LastFetchedUID to the
// highest synthetic uid the adapter assigned; it never lowers it.
func (o *Orchestrator) persistAdapterCache(account *domain.MailAccount, adapter provider.Adapter) {
	if g, ok := adapter.(*graph.Adapter); ok {
		account.FolderIDs = g.FolderCache()
		if uid := g.HighestAssignedUID(); uid > account.LastFetchedUID {
			account.LastFetchedUID = uid
		}
	}
}

// recordSyncError is a nil-safe wrapper so every call site in this
// file can record a sync failure without a metrics != nil guard.
func (o *Orchestrator) recordSyncError(account *domain.MailAccount, kind string) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordSyncError(string(account.Provider), kind)
}

// recordSyncDuration is a nil-safe wrapper around Metrics.RecordSyncDuration.
func (o *Orchestrator) recordSyncDuration(account *domain.MailAccount, kind string, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordSyncDuration(string(account.Provider), kind, d)
}

func marshalPayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling job payload: %w", err)
	}
	return data, nil
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}

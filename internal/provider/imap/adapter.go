// Package imap implements the provider.Adapter capability surface
// against a real IMAP server using go-imap v2, grounded on the IMAP
// client pattern used elsewhere in the retrieved corpus (connect,
// select, search, fetch, parse).
package imap

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
	"github.com/mailmirror/core/internal/parser"
	"github.com/mailmirror/core/internal/provider"
)

// fetchBatchSize bounds how many messages one FetchSince call reads in
// a single IMAP round trip (§4.7.3: sync proceeds in bounded chunks so
// one huge mailbox can't starve the worker pool of a slot for minutes).
const fetchBatchSize = 200

// Config holds everything the adapter needs to connect, already
// resolved to plaintext by the caller's vault decrypt.
type Config struct {
	Host                  string
	Port                  string // default "993"
	Username              string
	Password              string
	CertsDir              string
	TLSRejectUnauthorized bool
}

var _ provider.Adapter = (*Adapter)(nil)

// Adapter implements provider.Adapter over one IMAP account.
type Adapter struct {
	cfg Config
}

// New returns an Adapter bound to cfg. It does not connect; every
// operation below dials fresh so a long-idle account never holds a
// stale connection across ticks (§5 resource model: short-lived
// per-job connections, not a pooled long-lived client).
func New(cfg Config) *Adapter {
	if cfg.Port == "" {
		cfg.Port = "993"
	}
	return &Adapter{cfg: cfg}
}

func (a *Adapter) connect(ctx context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%s", a.cfg.Host, a.cfg.Port)

	tlsCfg, err := tlsConfig(a.cfg.Host, a.cfg.CertsDir, a.cfg.TLSRejectUnauthorized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mailerr.ErrConfig, err)
	}

	client, err := imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: tlsCfg})
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", mailerr.ErrProviderUnavailable, addr, err)
	}

	if err := client.Login(a.cfg.Username, a.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("%w: %v", mailerr.ErrCredentialRejected, err)
	}

	return client, nil
}

// TestConnection dials, authenticates, and logs out without selecting
// a mailbox. Used by onboarding (§4.7.1) to validate a credential
// before the account is persisted.
func (a *Adapter) TestConnection(ctx context.Context) error {
	client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	return client.Logout().Wait()
}

// ListFolders enumerates every mailbox the account exposes.
func (a *Adapter) ListFolders(ctx context.Context) ([]domain.RawFolder, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	listCmd := client.List("", "*", &imap.ListOptions{
		SelectSubscribed: false,
		ReturnSpecialUse: true,
	})
	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: listing mailboxes: %v", mailerr.ErrProtocol, err)
	}

	out := make([]domain.RawFolder, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		out = append(out, domain.RawFolder{
			Path:        mbox.Mailbox,
			Delimiter:   string(mbox.Delim),
			Flags:       attrsToStrings(mbox.Attrs),
			SpecialUse:  specialUseOf(mbox.Attrs),
			DisplayName: mbox.Mailbox,
			Provider:    domain.ProviderUnknown,
		})
	}
	return out, nil
}

func attrsToStrings(attrs []imap.MailboxAttr) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, string(a))
	}
	return out
}

func specialUseOf(attrs []imap.MailboxAttr) string {
	for _, a := range attrs {
		switch a {
		case imap.MailboxAttrSent, imap.MailboxAttrDrafts, imap.MailboxAttrTrash,
			imap.MailboxAttrJunk, imap.MailboxAttrArchive, imap.MailboxAttrFlagged:
			return string(a)
		}
	}
	return ""
}

// HighestWatermark returns the folder's current UIDNext minus one: the
// highest UID that currently exists, seeding the first incremental
// sync without refetching the initial-sync range.
func (a *Adapter) HighestWatermark(ctx context.Context, folder string) (provider.Watermark, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return provider.Watermark{}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	data, err := client.Status(folder, &imap.StatusOptions{UIDNext: true, UIDValidity: true}).Wait()
	if err != nil {
		return provider.Watermark{}, &mailerr.FolderError{Folder: folder, Err: fmt.Errorf("%w: status: %v", mailerr.ErrProtocol, err)}
	}

	highest := int(data.UIDNext) - 1
	if highest < 0 {
		highest = 0
	}
	return provider.UIDWatermarkWithValidity(highest, data.UIDValidity), nil
}

// FetchSince returns the messages in folder with UID strictly greater
// than since.UID, at most fetchBatchSize per call (the newest ones when
// there are more). Select, status and fetch failures are wrapped in
// mailerr.FolderError so the orchestrator can skip this folder and
// continue with its siblings; connect and login failures are returned
// unwrapped.
func (a *Adapter) FetchSince(ctx context.Context, folder string, since provider.Watermark) ([]provider.FetchedMessage, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, &mailerr.FolderError{Folder: folder, Err: fmt.Errorf("%w: select: %v", mailerr.ErrProtocol, err)}
	}

	status, err := client.Status(folder, &imap.StatusOptions{UIDNext: true}).Wait()
	if err != nil {
		return nil, &mailerr.FolderError{Folder: folder, Err: fmt.Errorf("%w: status: %v", mailerr.ErrProtocol, err)}
	}

	startUID := uint32(since.UID) + 1
	// Newest mail matters more than oldest when a backlog exceeds one
	// batch (§4.7.3): shift the window to the top fetchBatchSize UIDs
	// rather than always reading the oldest unread messages first.
	if status.UIDNext > 1 {
		highestExisting := uint32(status.UIDNext) - 1
		if highestExisting >= startUID && highestExisting-startUID+1 > uint32(fetchBatchSize) {
			startUID = highestExisting - uint32(fetchBatchSize) + 1
		}
	}
	uidSet := imap.UIDSet{imap.UIDRange{Start: imap.UID(startUID), Stop: 0}}

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)

	var out []provider.FetchedMessage
	for len(out) < fetchBatchSize {
		item := fetchCmd.Next()
		if item == nil {
			break
		}
		buf, err := item.Collect()
		if err != nil {
			continue
		}

		raw := buf.FindBodySection(&imap.FetchItemBodySection{Peek: true})
		msg, attachments, err := parser.ParseIMAP(parser.IMAPInput{
			Folder:    folder,
			UID:       int(buf.UID),
			MessageID: messageIDOf(buf),
			Flags:     flagsOf(buf.Flags),
			Raw:       raw,
		})
		if err != nil {
			// Per-message isolation (§7): skip, don't abort the folder.
			continue
		}
		for _, att := range attachments {
			msg.Attachments = append(msg.Attachments, att)
		}

		out = append(out, provider.FetchedMessage{
			Message:   msg,
			Raw:       raw,
			Watermark: provider.UIDWatermark(int(buf.UID)),
		})
	}
	if err := fetchCmd.Close(); err != nil {
		reverseFetched(out)
		return out, &mailerr.FolderError{Folder: folder, Err: fmt.Errorf("%w: fetch: %v", mailerr.ErrProtocol, err)}
	}

	reverseFetched(out)
	return out, nil
}

// reverseFetched reverses msgs in place so FetchSince returns newest
// UID first (§4.7.3), matching the order the sync UI surfaces mail in.
func reverseFetched(msgs []provider.FetchedMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func messageIDOf(buf *imapclient.FetchMessageBuffer) string {
	if buf.Envelope == nil {
		return ""
	}
	return buf.Envelope.MessageID
}

func flagsOf(flags []imap.Flag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, string(f))
	}
	return out
}

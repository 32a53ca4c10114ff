package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
	"github.com/mailmirror/core/internal/normalizer"
	"github.com/mailmirror/core/internal/parser"
	"github.com/mailmirror/core/internal/provider"
)

// pageSize is Graph's $top value per request; fetchCap bounds the
// total messages read in one FetchSince call regardless of how many
// pages the mailbox would otherwise yield (§4.7.4: delta sync reads
// at most 500 messages per run so one huge Graph mailbox can't starve
// the worker pool of a slot).
const (
	pageSize = 50
	fetchCap = 500
)

// Adapter implements provider.Adapter over one Microsoft Graph
// mailbox. The access token passed to New must already be fresh;
// rotation happens one layer up, in vault.RefreshMicrosoftToken, so
// this adapter never needs to know about refresh tokens.
type Adapter struct {
	client      *client
	folderCache map[string]string // canonical/display name -> Graph folder id
	nextUID     int
}

// New returns an Adapter with an empty folder-id cache. Use
// NewWithFolderCache to seed it from domain.MailAccount.FolderIDs and
// avoid a cold re-list on every sync tick.
func New(accessToken string) *Adapter {
	return NewWithFolderCache(accessToken, nil)
}

// NewWithFolderCache returns an Adapter seeded with a previously
// persisted folder-id cache. The caller should read FolderCache back
// out after a sync and persist it onto the account (§4.7.2: Graph's
// folder id is kept in memory only, but caching it across ticks saves
// a full mailFolders re-scan per sync).
func NewWithFolderCache(accessToken string, cache map[string]string) *Adapter {
	if cache == nil {
		cache = make(map[string]string)
	}
	return &Adapter{client: newClient(accessToken), folderCache: cache, nextUID: 1}
}

// FolderCache returns the adapter's current folder-id cache, including
// any entries resolved during this adapter's lifetime.
func (a *Adapter) FolderCache() map[string]string {
	return a.folderCache
}

// SeedUID raises the adapter's synthetic-uid floor to seed+1 if seed is
// past the adapter's current position, so a fresh Adapter resumes the
// counter where the last sync run (or the mirror's own MAX(uid)) left
// off instead of restarting at 1 and colliding with already-mirrored
// messages (§9 design note).
func (a *Adapter) SeedUID(seed int) {
	if seed+1 > a.nextUID {
		a.nextUID = seed + 1
	}
}

// HighestAssignedUID returns the highest synthetic uid this adapter has
// handed out so far, for the caller to persist as the next run's floor.
func (a *Adapter) HighestAssignedUID() int {
	return a.nextUID - 1
}

// allocateUID hands out the next synthetic uid. Graph messages have no
// native per-folder uid, so FetchSince assigns one monotonically at
// fetch time rather than hashing the message id, which could collide
// and silently drop a message from the mirror (§9 design note).
func (a *Adapter) allocateUID() int {
	uid := a.nextUID
	a.nextUID++
	return uid
}

var _ provider.Adapter = (*Adapter)(nil)

type graphFolder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type folderListPage struct {
	Value    []graphFolder `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

// TestConnection verifies the token authenticates by listing a single
// mail folder, a cheap authenticated Graph call.
func (a *Adapter) TestConnection(ctx context.Context) error {
	var v map[string]any
	return a.client.get(ctx, "/me/mailFolders", url.Values{"$top": {"1"}}, &v)
}

// ListFolders enumerates the account's mail folders, following
// @odata.nextLink pagination.
func (a *Adapter) ListFolders(ctx context.Context) ([]domain.RawFolder, error) {
	var out []domain.RawFolder

	var page folderListPage
	if err := a.client.get(ctx, "/me/mailFolders", url.Values{"$top": {"100"}}, &page); err != nil {
		return nil, err
	}
	out = appendFolders(out, page.Value)

	for page.NextLink != "" {
		var next folderListPage
		if err := a.client.getURL(ctx, page.NextLink, &next); err != nil {
			return out, err
		}
		out = appendFolders(out, next.Value)
		page = next
	}

	return out, nil
}

func appendFolders(out []domain.RawFolder, folders []graphFolder) []domain.RawFolder {
	for _, f := range folders {
		out = append(out, domain.RawFolder{
			DisplayName: f.DisplayName,
			Provider:    domain.ProviderOutlook,
		})
	}
	return out
}

// folderID resolves a canonical folder name (or a display name) to its
// Graph folder id. It answers from the folder-id cache when it can (the
// cache is seeded from domain.MailAccount.FolderIDs); on a miss it
// re-lists the mailbox's folders and caches each one under both its
// display name and its canonical name.
func (a *Adapter) folderID(ctx context.Context, canonicalOrDisplay string) (string, error) {
	if id, ok := a.folderCache[canonicalOrDisplay]; ok {
		return id, nil
	}

	var page folderListPage
	if err := a.client.get(ctx, "/me/mailFolders", url.Values{"$top": {"100"}}, &page); err != nil {
		return "", err
	}
	for {
		for _, f := range page.Value {
			a.folderCache[f.DisplayName] = f.ID
			canonical := normalizer.Canonicalize(domain.RawFolder{DisplayName: f.DisplayName, Provider: domain.ProviderOutlook})
			if _, taken := a.folderCache[canonical]; !taken {
				a.folderCache[canonical] = f.ID
			}
		}
		if page.NextLink == "" {
			break
		}
		var next folderListPage
		if err := a.client.getURL(ctx, page.NextLink, &next); err != nil {
			return "", err
		}
		page = next
	}

	if id, ok := a.folderCache[canonicalOrDisplay]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: folder %q not found", mailerr.ErrProtocol, canonicalOrDisplay)
}

// HighestWatermark returns the receivedDateTime of the folder's newest
// message (a zero timestamp for an empty folder), since Graph delta sync
// watermarks on receivedDateTime rather than a per-folder counter (§9
// design note).
func (a *Adapter) HighestWatermark(ctx context.Context, folder string) (provider.Watermark, error) {
	folderID, err := a.folderID(ctx, folder)
	if err != nil {
		return provider.Watermark{}, err
	}

	query := url.Values{
		"$top":     {"1"},
		"$orderby": {"receivedDateTime desc"},
		"$select":  {"receivedDateTime"},
	}
	var page struct {
		Value []struct {
			ReceivedDateTime string `json:"receivedDateTime"`
		} `json:"value"`
	}
	if err := a.client.get(ctx, fmt.Sprintf("/me/mailFolders/%s/messages", folderID), query, &page); err != nil {
		return provider.Watermark{}, &mailerr.FolderError{Folder: folder, Err: err}
	}
	if len(page.Value) == 0 {
		return provider.TimestampWatermark(time.Time{}), nil
	}
	t, err := time.Parse(time.RFC3339, page.Value[0].ReceivedDateTime)
	if err != nil {
		return provider.Watermark{}, &mailerr.FolderError{Folder: folder, Err: fmt.Errorf("%w: %v", mailerr.ErrProtocol, err)}
	}
	return provider.TimestampWatermark(t), nil
}

// FetchSince returns every message in folder received strictly after
// since.Timestamp, bounded to fetchCap per call.
func (a *Adapter) FetchSince(ctx context.Context, folder string, since provider.Watermark) ([]provider.FetchedMessage, error) {
	folderID, err := a.folderID(ctx, folder)
	if err != nil {
		return nil, err
	}

	filter := ""
	if !since.Timestamp.IsZero() {
		filter = fmt.Sprintf("receivedDateTime gt %s", since.Timestamp.UTC().Format(time.RFC3339))
	}

	query := url.Values{
		"$top":     {fmt.Sprintf("%d", pageSize)},
		"$orderby": {"receivedDateTime asc"},
	}
	if filter != "" {
		query.Set("$filter", filter)
	}

	var out []provider.FetchedMessage

	type messagePage struct {
		Value    []json.RawMessage `json:"value"`
		NextLink string            `json:"@odata.nextLink"`
	}

	var page messagePage
	fetchErr := a.client.get(ctx, fmt.Sprintf("/me/mailFolders/%s/messages", folderID), query, &page)
	if fetchErr != nil {
		return nil, &mailerr.FolderError{Folder: folder, Err: fetchErr}
	}

	for {
		for _, raw := range page.Value {
			msg, err := parser.ParseGraph(parser.GraphInput{
				Folder:       folder,
				SyntheticUID: a.allocateUID(),
				Raw:          raw,
			})
			if err != nil {
				continue
			}
			out = append(out, provider.FetchedMessage{
				Message:   msg,
				Watermark: provider.TimestampWatermark(msg.ReceivedAt),
			})
		}

		if len(out) >= fetchCap || page.NextLink == "" {
			break
		}

		var next messagePage
		if err := a.client.getURL(ctx, page.NextLink, &next); err != nil {
			return out, &mailerr.FolderError{Folder: folder, Err: err}
		}
		page = next
	}

	return out, nil
}

package domain

import (
	"encoding/json"
	"time"
)

// Provider is the canonical upstream mailbox vendor tag.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderYahoo   Provider = "yahoo"
	ProviderICloud  Provider = "icloud"
	ProviderAOL     Provider = "aol"
	ProviderUnknown Provider = "unknown"
)

// DetectProvider maps an email domain to a canonical Provider tag.
func DetectProvider(domain string) Provider {
	switch domain {
	case "gmail.com":
		return ProviderGmail
	case "outlook.com", "live.com":
		return ProviderOutlook
	case "hotmail.com":
		return ProviderOutlook
	case "yahoo.com":
		return ProviderYahoo
	case "icloud.com", "me.com":
		return ProviderICloud
	case "aol.com":
		return ProviderAOL
	default:
		return ProviderUnknown
	}
}

// MailAccount is a (User, remote-email) pair holding exactly one of an
// encrypted IMAP app password or an OAuth access/refresh token pair.
type MailAccount struct {
	ID     string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID string `json:"userId" gorm:"type:varchar(36);uniqueIndex:idx_user_email;not null"`
	Email  string `json:"email" gorm:"type:varchar(255);uniqueIndex:idx_user_email;not null"`

	Provider Provider `json:"provider" gorm:"type:varchar(20);index;not null"`

	// IMAP mode: non-empty. OAuth mode: empty.
	EncryptedPassword string `json:"-" gorm:"type:text"`

	// OAuth mode: both non-empty. IMAP mode: empty.
	AccessToken  string `json:"-" gorm:"type:text"`
	RefreshToken string `json:"-" gorm:"type:text"`

	// SyncedFolders is the set of canonical folder names successfully
	// synced at least once; incremental sync only revisits these.
	SyncedFolders StringSet `json:"syncedFolders" gorm:"type:text;serializer:json"`

	// FolderIDs caches provider folder identifiers keyed by canonical
	// name, so Graph sync need not re-scan display names every tick.
	FolderIDs map[string]string `json:"-" gorm:"type:text;serializer:json"`

	// FolderUIDValidity is the last-observed IMAP UIDVALIDITY per
	// canonical folder. A value that no longer matches the server's
	// current UIDVALIDITY means the folder's UIDs were reassigned
	// (rebuild, migration) and must be re-discovered from scratch
	// rather than delta-synced against now-meaningless old UIDs.
	FolderUIDValidity map[string]uint32 `json:"-" gorm:"type:text;serializer:json"`

	LastFetchedUID int        `json:"lastFetchedUid" gorm:"default:0"`
	LastSyncedAt   *time.Time `json:"lastSyncedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// IsOAuth reports whether the account authenticates via Microsoft Graph
// OAuth rather than IMAP app-password.
func (a *MailAccount) IsOAuth() bool {
	return a.RefreshToken != ""
}

// StringSet is a small set of strings persisted as a JSON array.
type StringSet map[string]struct{}

// Add inserts name into the set.
func (s StringSet) Add(name string) {
	s[name] = struct{}{}
}

// Has reports whether name is a member of the set.
func (s StringSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Slice returns the set's members in unspecified order.
func (s StringSet) Slice() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// NewStringSet builds a StringSet from a slice of names.
func NewStringSet(names ...string) StringSet {
	s := make(StringSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// MarshalJSON renders the set as a sorted-free JSON array rather than
// an object, since callers of the external API expect a folder list.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON accepts a JSON array of folder names.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewStringSet(names...)
	return nil
}

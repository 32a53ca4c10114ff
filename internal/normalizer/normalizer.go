// Package normalizer maps provider-specific folder descriptors onto
// the canonical taxonomy (§4.3), decides which canonical folders are
// worth syncing, and orders them by discovery priority.
package normalizer

import (
	"strings"

	"github.com/mailmirror/core/internal/domain"
)

// excludedSubstrings match canonical folder names (ShouldSync runs on
// the output of the canonical mapping below) that are never synced:
// provider-internal bookkeeping folders with no user-facing mail content.
var excludedSubstrings = []string{
	"notes",
	"outbox",
	"conversation history",
	"junk email", // never matches: Canonicalize maps any "junk" name to Spam, which is synced
	"rss feeds",
	"calendar",
	"contacts",
	"tasks",
}

// specialUseCanonical maps RFC 6154 SPECIAL-USE attributes to
// canonical folder names.
var specialUseCanonical = map[string]string{
	"\\Sent":    domain.FolderSent,
	"\\Drafts":  domain.FolderDrafts,
	"\\Trash":   domain.FolderTrash,
	"\\Junk":    domain.FolderSpam,
	"\\Archive": domain.FolderArchive,
	"\\Flagged": domain.FolderStarred,
}

// flagCanonical maps bare IMAP folder flags (no SPECIAL-USE extension
// advertised) to canonical names, same vocabulary as specialUseCanonical.
var flagCanonical = specialUseCanonical

// gmailPaths maps Gmail's IMAP folder paths, which don't consistently
// advertise SPECIAL-USE, to canonical names.
var gmailPaths = map[string]string{
	"[Gmail]/Sent Mail": domain.FolderSent,
	"[Gmail]/Drafts":    domain.FolderDrafts,
	"[Gmail]/Trash":     domain.FolderTrash,
	"[Gmail]/Spam":      domain.FolderSpam,
	"[Gmail]/All Mail":  domain.FolderArchive,
	"[Gmail]/Important": domain.FolderImportant,
	"[Gmail]/Starred":   domain.FolderStarred,
}

// substringHints is the last-resort heuristic: lower-cased substrings
// of the display name mapped to canonical names, tried in order so the
// first match wins.
var substringHints = []struct {
	substr    string
	canonical string
}{
	{"inbox", domain.FolderInbox},
	{"sent", domain.FolderSent},
	{"draft", domain.FolderDrafts},
	{"trash", domain.FolderTrash},
	{"deleted", domain.FolderTrash},
	{"spam", domain.FolderSpam},
	{"junk", domain.FolderSpam},
	{"archive", domain.FolderArchive},
	{"all mail", domain.FolderArchive},
	{"important", domain.FolderImportant},
	{"starred", domain.FolderStarred},
}

// Canonicalize resolves a raw provider folder to its canonical name,
// trying each rule in §4.3's order and falling back to the raw display
// name (passthrough) when nothing matches.
func Canonicalize(f domain.RawFolder) string {
	if isInbox(f) {
		return domain.FolderInbox
	}
	if c, ok := specialUseCanonical[f.SpecialUse]; ok {
		return c
	}
	if f.Provider == domain.ProviderGmail {
		if c, ok := gmailPaths[f.Path]; ok {
			return c
		}
	}
	for _, flag := range f.Flags {
		if c, ok := flagCanonical[flag]; ok {
			return c
		}
	}
	name := strings.ToLower(displayOf(f))
	for _, hint := range substringHints {
		if strings.Contains(name, hint.substr) {
			return hint.canonical
		}
	}
	return displayOf(f)
}

func isInbox(f domain.RawFolder) bool {
	return strings.ToLower(displayOf(f)) == "inbox"
}

func displayOf(f domain.RawFolder) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Path
}

// ShouldSync reports whether a canonical folder name is worth syncing.
// Callers must normalize before calling this: matching against the
// canonical name, not the raw provider path, is what makes the
// exclusion list provider-agnostic (§9 design note).
func ShouldSync(canonical string) bool {
	name := strings.ToLower(canonical)
	for _, excluded := range excludedSubstrings {
		if strings.Contains(name, excluded) {
			return false
		}
	}
	return true
}

// SortByPriority orders canonical folder names by discovery priority,
// highest first, stable on ties so equal-priority folders keep their
// input order.
func SortByPriority(canonical []string) []string {
	out := make([]string, len(canonical))
	copy(out, canonical)
	// insertion sort: folder counts are small (tens, not thousands) and
	// stability matters more than asymptotic complexity here.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && domain.PriorityOf(out[j-1]) < domain.PriorityOf(out[j]) {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}

package domain

// Canonical folder names. A raw passthrough is also a valid canonical
// name but has no constant here since it carries no special
// normalization logic beyond the normalizer's own mapping.
const (
	FolderInbox     = "INBOX"
	FolderSent      = "Sent"
	FolderDrafts    = "Drafts"
	FolderTrash     = "Trash"
	FolderSpam      = "Spam"
	FolderArchive   = "Archive"
	FolderImportant = "Important"
	FolderStarred   = "Starred"
)

// FolderPriority orders canonical folders for discovery: higher first.
// Anything not listed (passthrough folders) gets the "default" value.
var FolderPriority = map[string]int{
	FolderInbox:     100,
	FolderSent:      90,
	FolderDrafts:    80,
	FolderImportant: 75,
	FolderArchive:   70,
	FolderSpam:      50,
	FolderTrash:     40,
}

const defaultFolderPriority = 60

// PriorityOf returns the discovery priority of a canonical folder name.
func PriorityOf(canonical string) int {
	if p, ok := FolderPriority[canonical]; ok {
		return p
	}
	return defaultFolderPriority
}

// RawFolder is an adapter-specific folder descriptor, the input to the
// normalizer (§4.3). Not every field is populated by every adapter:
// IMAP supplies Flags/SpecialUse, Graph supplies DisplayName only.
type RawFolder struct {
	Path        string   // full provider path, e.g. "[Gmail]/Sent Mail"
	Delimiter   string   // IMAP hierarchy delimiter, empty for Graph
	Flags       []string // IMAP folder flags, e.g. "\\Sent", "\\Flagged"
	SpecialUse  string   // RFC 6154 hint, e.g. "\\Sent", empty if absent
	DisplayName string   // Graph display name (also used for IMAP path leaf)
	Provider    Provider
}

package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailmirror/core/internal/domain"
)

func TestCanonicalizeInboxCaseInsensitive(t *testing.T) {
	got := Canonicalize(domain.RawFolder{DisplayName: "INBOX"})
	assert.Equal(t, domain.FolderInbox, got)
}

func TestCanonicalizeSpecialUse(t *testing.T) {
	got := Canonicalize(domain.RawFolder{DisplayName: "Elements envoyés", SpecialUse: "\\Sent"})
	assert.Equal(t, domain.FolderSent, got)
}

func TestCanonicalizeGmailPath(t *testing.T) {
	got := Canonicalize(domain.RawFolder{
		Path:     "[Gmail]/All Mail",
		Provider: domain.ProviderGmail,
	})
	assert.Equal(t, domain.FolderArchive, got)
}

func TestCanonicalizeGmailSentMail(t *testing.T) {
	got := Canonicalize(domain.RawFolder{
		Path:     "[Gmail]/Sent Mail",
		Provider: domain.ProviderGmail,
	})
	assert.Equal(t, domain.FolderSent, got)
}

func TestCanonicalizeFlags(t *testing.T) {
	got := Canonicalize(domain.RawFolder{
		DisplayName: "Borttagna",
		Flags:       []string{"\\Trash"},
	})
	assert.Equal(t, domain.FolderTrash, got)
}

func TestCanonicalizeSubstringHeuristic(t *testing.T) {
	got := Canonicalize(domain.RawFolder{DisplayName: "My Archived Mail"})
	assert.Equal(t, domain.FolderArchive, got)
}

func TestCanonicalizePassthrough(t *testing.T) {
	got := Canonicalize(domain.RawFolder{DisplayName: "Project X"})
	assert.Equal(t, "Project X", got)
}

func TestShouldSyncExcludesProviderInternalFolders(t *testing.T) {
	assert.False(t, ShouldSync("Notes"))
	assert.False(t, ShouldSync("Outbox"))
	assert.False(t, ShouldSync("Conversation History"))
	assert.False(t, ShouldSync("RSS Feeds"))
}

func TestShouldSyncAllowsMailFolders(t *testing.T) {
	assert.True(t, ShouldSync(domain.FolderInbox))
	assert.True(t, ShouldSync(domain.FolderSent))
	assert.True(t, ShouldSync("Project X"))
}

func TestSortByPriorityOrdersHighestFirst(t *testing.T) {
	got := SortByPriority([]string{domain.FolderTrash, domain.FolderInbox, domain.FolderSent, "Project X"})
	assert.Equal(t, []string{domain.FolderInbox, domain.FolderSent, "Project X", domain.FolderTrash}, got)
}

func TestSortByPriorityStableOnTies(t *testing.T) {
	got := SortByPriority([]string{"Zeta", "Alpha", "Beta"})
	assert.Equal(t, []string{"Zeta", "Alpha", "Beta"}, got)
}

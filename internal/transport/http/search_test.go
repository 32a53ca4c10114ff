package httptransport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/store/memory"
)

func TestSearchFindsMatchingSubject(t *testing.T) {
	st := memory.New()
	seedAccountAndMessage(t, st, "acc1", "user-1")
	require.NoError(t, st.UpsertMessage(context.Background(), &domain.Message{
		ID:         "msg2",
		AccountID:  "acc1",
		UID:        2,
		Folder:     "INBOX",
		Subject:    "invoice attached",
		ReceivedAt: time.Now().UTC(),
		FetchedAt:  time.Now().UTC(),
	}))
	h := NewSearchHandler(st)

	c, w := authedContext(http.MethodGet, "/v1/search?q=invoice", "", "user-1")
	h.Search(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "invoice attached")
	require.NotContains(t, w.Body.String(), `"hello"`)
}

func TestSearchWithBlankQueryReturnsEmptyPage(t *testing.T) {
	st := memory.New()
	seedAccountAndMessage(t, st, "acc1", "user-1")
	h := NewSearchHandler(st)

	c, w := authedContext(http.MethodGet, "/v1/search?q=+", "", "user-1")
	h.Search(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"messages":[]`)
}

func TestSearchBySenderSubstring(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: "acc1", UserID: "user-1", Email: "mine@outlook.com", SyncedFolders: domain.NewStringSet(),
	}))
	require.NoError(t, st.UpsertMessage(context.Background(), &domain.Message{
		ID:         "msg1",
		AccountID:  "acc1",
		UID:        1,
		Folder:     "INBOX",
		From:       "billing@example.com",
		Subject:    "statement",
		ReceivedAt: time.Now().UTC(),
		FetchedAt:  time.Now().UTC(),
	}))
	h := NewSearchHandler(st)

	c, w := authedContext(http.MethodGet, "/v1/search?sender=billing", "", "user-1")
	h.Search(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "statement")
}

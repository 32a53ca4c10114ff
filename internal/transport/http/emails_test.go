package httptransport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
	"github.com/mailmirror/core/internal/store/memory"
)

func seedAccountAndMessage(t *testing.T, st *memory.Store, accountID, userID string) {
	t.Helper()
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: accountID, UserID: userID, Email: "mine@outlook.com", SyncedFolders: domain.NewStringSet(),
	}))
	require.NoError(t, st.UpsertMessage(context.Background(), &domain.Message{
		ID:         "msg1",
		AccountID:  accountID,
		UID:        1,
		Folder:     "INBOX",
		Subject:    "hello",
		ReceivedAt: time.Now().UTC(),
		FetchedAt:  time.Now().UTC(),
	}))
}

func TestListEmailsRequiresAccountID(t *testing.T) {
	st := memory.New()
	h := NewEmailHandler(st, st)

	c, w := authedContext(http.MethodGet, "/v1/emails", "", "user-1")
	h.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEmailsReturnsOwnedAccountMessages(t *testing.T) {
	st := memory.New()
	seedAccountAndMessage(t, st, "acc1", "user-1")
	h := NewEmailHandler(st, st)

	c, w := authedContext(http.MethodGet, "/v1/emails?accountId=acc1", "", "user-1")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hello")
}

func TestListEmailsRejectsUnownedAccount(t *testing.T) {
	st := memory.New()
	seedAccountAndMessage(t, st, "acc1", "user-2")
	h := NewEmailHandler(st, st)

	c, w := authedContext(http.MethodGet, "/v1/emails?accountId=acc1", "", "user-1")
	h.List(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateReadStatusMarksMessage(t *testing.T) {
	st := memory.New()
	seedAccountAndMessage(t, st, "acc1", "user-1")
	h := NewEmailHandler(st, st)

	c, w := authedContext(http.MethodPatch, "/v1/emails/msg1/read-status?accountId=acc1", `{"isRead":true}`, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "msg1"}}
	h.UpdateReadStatus(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	msg, err := st.GetMessage(context.Background(), "acc1", "msg1")
	require.NoError(t, err)
	require.True(t, msg.IsRead)
}

func TestDeleteEmailSoftDeletes(t *testing.T) {
	st := memory.New()
	seedAccountAndMessage(t, st, "acc1", "user-1")
	h := NewEmailHandler(st, st)

	c, w := authedContext(http.MethodDelete, "/v1/emails/msg1?accountId=acc1", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "msg1"}}
	h.Delete(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	_, err := st.GetMessage(context.Background(), "acc1", "msg1")
	require.ErrorIs(t, err, mailerr.ErrNotFound)
}

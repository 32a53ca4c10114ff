package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/middleware"
	"github.com/mailmirror/core/internal/store"
)

// EmailHandler serves /emails: listing, fetching, read-status, and
// soft delete, all scoped to accounts the authenticated user owns.
type EmailHandler struct {
	accounts store.AccountStore
	messages store.MessageStore
}

func NewEmailHandler(accounts store.AccountStore, messages store.MessageStore) *EmailHandler {
	return &EmailHandler{accounts: accounts, messages: messages}
}

// List implements GET /emails?accountId&folder&isRead&fromDate&toDate&page&limit.
func (h *EmailHandler) List(c *gin.Context) {
	accountID := c.Query("accountId")
	if accountID == "" {
		respondError(c, http.StatusBadRequest, "accountId is required")
		return
	}
	if !h.ownsAccount(c, accountID) {
		return
	}

	filter := domain.MessageFilter{
		AccountID: accountID,
		Folder:    c.Query("folder"),
	}
	if v := c.Query("isRead"); v != "" {
		isRead := v == "true"
		filter.IsRead = &isRead
	}
	if v := c.Query("fromDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.FromDate = &t
		}
	}
	if v := c.Query("toDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.ToDate = &t
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	page, err := h.messages.ListMessages(c.Request.Context(), filter)
	if err != nil {
		writeErr(c, err)
		return
	}
	respondOK(c, page)
}

// Get implements GET /emails/{id}.
func (h *EmailHandler) Get(c *gin.Context) {
	accountID := c.Query("accountId")
	if accountID == "" {
		respondError(c, http.StatusBadRequest, "accountId is required")
		return
	}
	if !h.ownsAccount(c, accountID) {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	respondOK(c, msg)
}

type readStatusRequest struct {
	IsRead bool `json:"isRead"`
}

// UpdateReadStatus implements PATCH /emails/{id}/read-status.
func (h *EmailHandler) UpdateReadStatus(c *gin.Context) {
	accountID := c.Query("accountId")
	if accountID == "" {
		respondError(c, http.StatusBadRequest, "accountId is required")
		return
	}
	if !h.ownsAccount(c, accountID) {
		return
	}

	var req readStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), accountID, c.Param("id"), req.IsRead); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete implements DELETE /emails/{id} (soft delete).
func (h *EmailHandler) Delete(c *gin.Context) {
	accountID := c.Query("accountId")
	if accountID == "" {
		respondError(c, http.StatusBadRequest, "accountId is required")
		return
	}
	if !h.ownsAccount(c, accountID) {
		return
	}

	if err := h.messages.SoftDelete(c.Request.Context(), accountID, c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownsAccount verifies accountID belongs to the authenticated user,
// writing the 404 response itself on any failure.
func (h *EmailHandler) ownsAccount(c *gin.Context, accountID string) bool {
	account, err := h.accounts.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		writeErr(c, err)
		return false
	}
	if account.UserID != middleware.AuthenticatedUserID(c) {
		respondError(c, http.StatusNotFound, "not found")
		return false
	}
	return true
}

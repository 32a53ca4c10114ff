package httptransport

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/middleware"
	"github.com/mailmirror/core/internal/store"
)

// SearchHandler serves GET /search: full-text (q=) or sender substring
// (sender=) search over every message the authenticated user owns,
// across all of their linked accounts (§6).
type SearchHandler struct {
	messages store.MessageStore
}

func NewSearchHandler(messages store.MessageStore) *SearchHandler {
	return &SearchHandler{messages: messages}
}

func (h *SearchHandler) Search(c *gin.Context) {
	_, hasQ := c.GetQuery("q")
	text := c.Query("q")
	if hasQ && strings.TrimSpace(text) == "" {
		respondOK(c, domain.MessagePage{Messages: []domain.Message{}})
		return
	}

	query := domain.SearchQuery{
		UserID: middleware.AuthenticatedUserID(c),
		Text:   text,
		Sender: c.Query("sender"),
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Limit = n
		}
	}

	page, err := h.messages.Search(c.Request.Context(), query)
	if err != nil {
		writeErr(c, err)
		return
	}
	respondOK(c, page)
}

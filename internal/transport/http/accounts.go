package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
	"github.com/mailmirror/core/internal/middleware"
	"github.com/mailmirror/core/internal/orchestrator"
	"github.com/mailmirror/core/internal/store"
)

// AccountHandler serves /accounts: onboarding plus listing/mutation.
type AccountHandler struct {
	orch  *orchestrator.Orchestrator
	store store.AccountStore
}

func NewAccountHandler(orch *orchestrator.Orchestrator, st store.AccountStore) *AccountHandler {
	return &AccountHandler{orch: orch, store: st}
}

type onboardRequest struct {
	Email        string `json:"email" binding:"required"`
	AppPassword  string `json:"appPassword"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Onboard implements §6's onboarding POST: an appPassword links an
// IMAP account, an accessToken/refreshToken pair (the OAuth callback
// result) links a Graph account.
func (h *AccountHandler) Onboard(c *gin.Context) {
	var req onboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := middleware.AuthenticatedUserID(c)

	var (
		account *domain.MailAccount
		err     error
	)
	switch {
	case req.AccessToken != "" && req.RefreshToken != "":
		account, err = h.orch.OnboardOAuth(c.Request.Context(), userID, req.Email, req.AccessToken, req.RefreshToken)
	case req.AppPassword != "":
		account, err = h.orch.OnboardIMAP(c.Request.Context(), userID, req.Email, req.AppPassword)
	default:
		respondError(c, http.StatusBadRequest, "appPassword or accessToken/refreshToken required")
		return
	}
	if err != nil {
		writeErr(c, err)
		return
	}
	respondCreated(c, account)
}

// List implements GET /accounts: every account belonging to the
// authenticated user.
func (h *AccountHandler) List(c *gin.Context) {
	userID := middleware.AuthenticatedUserID(c)
	accounts, err := h.store.ListAccountsByUser(c.Request.Context(), userID)
	if err != nil {
		writeErr(c, err)
		return
	}
	respondOK(c, gin.H{"accounts": accounts})
}

// Get implements GET /accounts/{id}.
func (h *AccountHandler) Get(c *gin.Context) {
	account, ok := h.loadOwnedAccount(c)
	if !ok {
		return
	}
	respondOK(c, account)
}

type updateAccountRequest struct {
	AppPassword string `json:"appPassword"`
}

// Update implements PATCH /accounts/{id}: currently only rotating the
// stored IMAP app password is supported, the one mutable credential
// field the onboarding payload can resubmit.
func (h *AccountHandler) Update(c *gin.Context) {
	account, ok := h.loadOwnedAccount(c)
	if !ok {
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AppPassword == "" {
		respondError(c, http.StatusBadRequest, "appPassword required")
		return
	}

	updated, err := h.orch.OnboardIMAP(c.Request.Context(), account.UserID, account.Email, req.AppPassword)
	if err != nil && err != mailerr.ErrAlreadyLinked {
		writeErr(c, err)
		return
	}
	if updated != nil {
		account = updated
	}
	respondOK(c, account)
}

// Delete implements DELETE /accounts/{id}.
func (h *AccountHandler) Delete(c *gin.Context) {
	account, ok := h.loadOwnedAccount(c)
	if !ok {
		return
	}
	if err := h.store.DeleteAccount(c.Request.Context(), account.ID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// loadOwnedAccount fetches the :id path param and verifies it belongs
// to the authenticated user, writing the 404 response itself on any
// failure (§7 NotFound: not owned by user is indistinguishable from
// not existing).
func (h *AccountHandler) loadOwnedAccount(c *gin.Context) (*domain.MailAccount, bool) {
	id := c.Param("id")
	account, err := h.store.GetAccount(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return nil, false
	}
	if account.UserID != middleware.AuthenticatedUserID(c) {
		respondError(c, http.StatusNotFound, "not found")
		return nil, false
	}
	return account, true
}

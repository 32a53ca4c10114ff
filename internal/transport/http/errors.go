package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailmirror/core/internal/mailerr"
)

// writeErr maps a domain/mailerr error to the HTTP status §7 assigns
// it, writing a JSON error body. Everything unrecognized is a 500.
func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mailerr.ErrNotFound):
		respondError(c, http.StatusNotFound, "not found")
	case errors.Is(err, mailerr.ErrAlreadyLinked):
		respondError(c, http.StatusConflict, "account already linked")
	case errors.Is(err, mailerr.ErrCredentialRejected):
		respondError(c, http.StatusBadRequest, "credential rejected")
	case errors.Is(err, mailerr.ErrUnknownProvider):
		respondError(c, http.StatusBadRequest, "unknown email provider")
	case errors.Is(err, mailerr.ErrConfig):
		respondError(c, http.StatusInternalServerError, "server misconfigured")
	default:
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

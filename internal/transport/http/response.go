// Package httptransport implements the external HTTP interface (§6):
// account onboarding, listing/mutation, and search, plus the
// /health and /metrics operational endpoints. Every sync route sits
// behind the core's side of the auth boundary (middleware.JWTAuth).
package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// errorResponse is the JSON shape of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

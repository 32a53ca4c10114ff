package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// DefaultBodyLimit bounds every external API request body not covered
// by a more specific limit (§6: onboarding payloads are small JSON).
const DefaultBodyLimit = 1 * 1024 * 1024 // 1MB

// BodySizeLimit rejects any request whose body exceeds maxBytes,
// checking the Content-Length header up front and wrapping the reader
// as a backstop against a client lying about it.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request body too large",
				"message": fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
				"limit":   maxBytes,
				"size":    c.Request.ContentLength,
			})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))
		c.Next()
	}
}

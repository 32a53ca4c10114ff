package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/auth/jwt"
)

// JWTAuth implements the core's side of the external auth boundary
// (§6): every sync route requires a valid bearer token, from which
// RequireAuth resolves getAuthenticatedUserId into gin context values.
type JWTAuth struct {
	manager *jwt.Manager
	log     *zap.Logger
}

func NewJWTAuth(manager *jwt.Manager, log *zap.Logger) *JWTAuth {
	return &JWTAuth{manager: manager, log: log}
}

// RequireAuth aborts with 401 unless the request carries a valid
// bearer token, otherwise sets "userID" and "email" in the context.
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		claims, err := ja.manager.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token", zap.Error(err), zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func (ja *JWTAuth) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}
	return ""
}

// AuthenticatedUserID implements getAuthenticatedUserId (§6): the user
// id RequireAuth resolved for this request. Callers must only reach
// this after RequireAuth has run.
func AuthenticatedUserID(c *gin.Context) string {
	userID, _ := c.Get("userID")
	id, _ := userID.(string)
	return id
}

// Package middleware provides the Gin middleware chain.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docuquery-go/pkg/token"
)

// ContextOwnerKey is the Gin context key carrying the verified owner
// id.
const ContextOwnerKey = "ownerID"

// AuthMiddleware verifies the bearer token and stores the owner id in
// the context. Websocket clients cannot set headers, so a `token` query
// parameter is accepted as a fallback.
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextOwnerKey, claims.OwnerID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, bearerPrefix)
}

// OwnerID reads the verified owner id set by AuthMiddleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ContextOwnerKey)
}

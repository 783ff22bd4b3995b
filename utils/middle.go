package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const ownerIDKey = "owner_id"

// AuthMiddleware verifies the bearer JWT and sets the owner id on the context.
// EventSource clients cannot set headers, so the token may also come as ?token=.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			raw = tokenParts[1]
		} else {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claims, err := VerifyToken(raw)
		if err != nil {
			logrus.WithError(err).Debug("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("username", claims.Username)
		c.Set(ownerIDKey, claims.OwnerID)
		c.Next()
	}
}

// OwnerID returns the authenticated owner, or 0 outside AuthMiddleware.
func OwnerID(c *gin.Context) uint64 {
	return c.GetUint64(ownerIDKey)
}

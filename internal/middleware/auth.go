package middleware

import (
	"net/http"
	"strings"

	"agromart-be/internal/auth"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// RequireAuth resolves the bearer token into an Actor, or rejects the
// request. Identity itself is issued elsewhere; this core only needs to
// know who is acting.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := auth.ParseToken(secret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorKey, auth.Actor{ID: claims.UserID, Role: auth.Role(claims.Role)})
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := v.(auth.Actor)
	return actor, ok
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"spin-rewards/internal/auth"
)

const (
	claimsKey  = "sessionClaims"
	subjectKey = "sessionSubject"
)

// JWT rejects requests without a valid bearer session and stores its claims on the context.
func JWT(manager *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		claims, err := manager.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or invalid"})
			return
		}
		c.Set(claimsKey, claims)
		c.Set(subjectKey, claims.SubjectID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, value, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// RequireRole admits requests whose session carries one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden for role " + claims.Role})
			return
		}
		c.Next()
	}
}

func ClaimsFromContext(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// SubjectID returns the authenticated user or vendor id, or 0 outside a session.
func SubjectID(c *gin.Context) int64 {
	return c.GetInt64(subjectKey)
}

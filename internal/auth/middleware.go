package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// Validator verifies bearer credentials.
type Validator interface {
	Validate(token string) (Principal, error)
}

// Bearer enforces bearer JWT tokens and stores the principal on the request.
func Bearer(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "unauthenticated", "code": "missing_token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		p, err := v.Validate(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "unauthenticated", "code": "invalid_token"})
			return
		}
		c.Set(principalContextKey, p)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequireRole rejects principals whose role is not listed. It must run after Bearer.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "unauthenticated", "code": "missing_token"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted", "kind": "unauthorized", "code": "role_not_permitted"})
	}
}

// CurrentPrincipal returns the principal stored by Bearer.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

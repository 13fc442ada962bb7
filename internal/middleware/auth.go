package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Marshallmay28/zetumall-backend/internal/services"
)

// Identity headers set by the upstream auth proxy after it verifies the
// caller's credential. This service trusts them as already-resolved;
// the proxy strips any client-supplied copies.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"

	identityKey = "identity"
)

// Authenticate resolves the caller's identity from the trusted headers.
// Requests without a user id are rejected before any handler runs.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			c.Abort()
			return
		}

		var roles []string
		if raw := c.GetHeader(HeaderUserRoles); raw != "" {
			for _, r := range strings.Split(raw, ",") {
				if r = strings.TrimSpace(r); r != "" {
					roles = append(roles, r)
				}
			}
		}

		c.Set(identityKey, services.Identity{
			ID:       userID,
			Roles:    roles,
			SourceIP: c.ClientIP(),
		})
		c.Next()
	}
}

// RequireRoles rejects callers holding none of the given roles. The
// services re-check authorization themselves; this is the outer gate.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if !id.HasRole(roles...) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity Authenticate stored on the
// request context.
func CurrentIdentity(c *gin.Context) services.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(services.Identity); ok {
			return id
		}
	}
	return services.Identity{}
}

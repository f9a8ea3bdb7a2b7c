package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/assetica/platform-core/internal/auth"
)

// IdentityKey is the gin context key under which the authentication
// middleware stores the verified identity.
const IdentityKey = "auth.identity"

// GetIdentity extracts the verified identity from the request context
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok && id != nil
}

package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

const principalKey = "principal"

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireRoles rejects the request unless it carries a valid bearer token
// for one of roles.
func (rs *RestfulServer) RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := engine.Authorize(c.Request.Context(), rs.Engine.Auth, bearerToken(c), roles...)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// OptionalAuth lets anonymous requests through but still rejects a bad token.
func (rs *RestfulServer) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if c.GetHeader("Authorization") != "" {
				writeError(c, engine.ErrAuth)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		principal, err := rs.Engine.Auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func principalFrom(c *gin.Context) *engine.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*engine.Principal); ok {
			return p
		}
	}
	return nil
}

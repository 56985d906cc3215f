package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/slotline/slotline/internal/observability/context"
)

const (
	// HeaderClient identifies the booking client; issued by the studio's
	// front end after its own sign-in flow.
	HeaderClient = "X-Client-ID"

	// sessionCookie scopes tracking click dedup to one browser session.
	sessionCookie = "sl_session"

	contextClientIDKey = "client_id"
)

// ClientContext propagates the client identity into the request context so
// logs and downstream calls carry it. It does not enforce presence.
func ClientContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := strings.TrimSpace(c.GetHeader(HeaderClient))
		if clientID != "" {
			c.Set(contextClientIDKey, clientID)
			ctx := obscontext.WithClientID(c.Request.Context(), clientID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// ClientRequired rejects requests without a client identity.
func (s *Server) ClientRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetString(contextClientIDKey)) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RateLimited applies a per-IP request budget to hot public endpoints.
func (s *Server) RateLimited(limiter *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.Request.Context(), c.ClientIP()) {
			c.AbortWithStatusJSON(429, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}

func (s *Server) clientID(c *gin.Context) string {
	return c.GetString(contextClientIDKey)
}

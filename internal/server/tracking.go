package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionCookieMaxAge = 30 * 24 * 60 * 60

// TrackClick counts a campaign link click and bounces the visitor to the
// landing page. Malformed codes are ignored silently so campaign typos never
// break the redirect.
func (s *Server) TrackClick(c *gin.Context) {
	sessionKey, err := c.Cookie(sessionCookie)
	if err != nil || sessionKey == "" {
		sessionKey = uuid.NewString()
		c.SetCookie(sessionCookie, sessionKey, sessionCookieMaxAge, "/", "", false, true)
	}

	if err := s.trackingSvc.RecordClick(c.Request.Context(), c.Param("code"), sessionKey); err != nil {
		// Attribution is never worth failing the redirect over.
		s.log.Warn("click tracking failed",
			zap.String("code", c.Param("code")),
			zap.Error(err),
		)
	}

	target := c.Query("to")
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
}

func (s *Server) GetTrackingStats(c *gin.Context) {
	stats, err := s.trackingSvc.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":        stats.Code,
		"clicks":      stats.Clicks,
		"conversions": stats.Conversions,
		"revenue":     stats.Revenue,
	})
}

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tournevent/fulfillment/internal/oauthstate"
	"go.uber.org/zap"
)

func (s *Server) handleAuthorize(c *gin.Context) {
	state, err := s.deps.States.Issue(c.Request.Context())
	if err != nil {
		s.respondError(c, "carrier.authorize", err)
		return
	}
	c.Redirect(http.StatusFound, s.deps.Carrier.AuthorizeURL(state))
}

// handleCallback completes the OAuth consent. Failures answer 400 with the
// state echoed back so the operator can retry from the settings page.
func (s *Server) handleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Query("code")
	state := c.Query("state")

	if code == "" {
		msg := "missing authorization code"
		if providerErr := c.Query("error"); providerErr != "" {
			msg = providerErr
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg, "state": state})
		return
	}

	if err := s.deps.States.Consume(ctx, state); err != nil {
		if !errors.Is(err, oauthstate.ErrUnknownState) {
			s.logger.Ctx(ctx).Error("OAuth state lookup failed",
				zap.String("endpoint", "carrier.callback"),
				zap.Error(err),
			)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired state", "state": state})
		return
	}

	if _, err := s.deps.Carrier.Exchange(ctx, code); err != nil {
		s.logger.Ctx(ctx).Warn("Carrier authorization exchange failed",
			zap.String("endpoint", "carrier.callback"),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization exchange failed", "state": state})
		return
	}

	c.Redirect(http.StatusFound, s.settingsURL())
}

func (s *Server) handleCarrierStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Tokens.Status(c.Request.Context()))
}

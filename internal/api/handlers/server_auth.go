package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/api/middleware"
	"oauthbridge.io/bridge/internal/domain"
	"oauthbridge.io/bridge/internal/login"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// RedirectToProvider handles GET /oauth/clients/:client_id/redirect.
// ?mobile=1 selects the mobile flow.
func (s *Server) RedirectToProvider(c *gin.Context) {
	mode := login.ModeWeb
	if c.Query("mobile") == "1" {
		mode = login.ModeMobile
	}

	target, err := s.login.BeginLogin(c.Request.Context(), c.Param("client_id"), mode)
	if err != nil {
		s.failLogin(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// HandleCallback handles GET /oauth/:provider/callback.
func (s *Server) HandleCallback(c *gin.Context) {
	res, err := s.login.Callback(c.Request.Context(), c.Param("provider"), c.Query("code"), c.Query("state"))
	if err != nil {
		s.failLogin(c, err)
		return
	}

	if res.Mode == login.ModeMobile {
		c.JSON(http.StatusOK, res.TokenResponse)
		return
	}

	token, expiresAt, err := middleware.IssueSession(s.session, res.User)
	if err != nil {
		s.failLogin(c, err)
		return
	}

	maxAge := int(s.session.ExpiresIn.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.session.CookieName, token, maxAge, "/", "", s.cookieSecure, s.cookieHTTPOnly)
	if loginID := domain.LoginIdentifier(res.User.Email); loginID != "" {
		c.SetCookie(ChatLoginCookie, loginID, 3600, "/", "", s.cookieSecure, false)
	}

	logger.Debug("Session issued",
		zap.String("user_id", res.User.ID),
		zap.Time("expires_at", expiresAt),
	)
	c.Redirect(http.StatusFound, s.postLoginRedirect)
}

// TokenLoginRequest is the body of POST /oauth/:provider/token.
type TokenLoginRequest struct {
	ProviderClientID string `json:"provider_client_id" form:"provider_client_id" binding:"required"`
	AccessToken      string `json:"access_token" form:"access_token" binding:"required"`
}

// TokenLoginResponse carries the session token for API clients.
type TokenLoginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// LoginWithAccessToken handles POST /oauth/:provider/token.
// Errors are returned as JSON; there is no browser to redirect.
func (s *Server) LoginWithAccessToken(c *gin.Context) {
	var req TokenLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInvalidRequest, "provider_client_id and access_token are required", http.StatusBadRequest))
		return
	}

	res, err := s.login.LoginWithAccessToken(c.Request.Context(), c.Param("provider"), req.ProviderClientID, req.AccessToken)
	if err != nil {
		_ = c.Error(err)
		return
	}

	token, expiresAt, err := middleware.IssueSession(s.session, res.User)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, TokenLoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		UserID:    res.User.ID,
	})
}

// GetMe handles GET /me.
func (s *Server) GetMe(c *gin.Context) {
	claims, ok := middleware.GetSession(c)
	if !ok {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "missing session"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    claims.UserID,
		"name":  claims.Name,
		"email": claims.Email,
		"roles": claims.Roles,
	})
}

// failLogin sends the browser back to the login page with the error code.
// The error is attached to the context for the error handler to log.
func (s *Server) failLogin(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Redirect(http.StatusFound, s.loginErrorURL(apperrors.CodeOf(err)))
}

// Package handlers implements the HTTP endpoints of the OAuth bridge.
//
// Route registration lives in internal/app; handlers only read the request
// and shape the response.
//
// Import Path: oauthbridge.io/bridge/internal/api/handlers
package handlers

import (
	"context"
	"net/url"

	"oauthbridge.io/bridge/internal/api/middleware"
	"oauthbridge.io/bridge/internal/login"
)

// LoginService runs both legs of an OAuth login, and the token login used
// by clients that already hold a provider access token.
type LoginService interface {
	BeginLogin(ctx context.Context, providerClientID string, mode login.Mode) (string, error)
	Callback(ctx context.Context, providerName, code, state string) (*login.Result, error)
	LoginWithAccessToken(ctx context.Context, providerName, providerClientID, accessToken string) (*login.Result, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerStats exposes worker pool utilization.
type WorkerStats interface {
	Metrics() map[string]interface{}
}

// ChatLoginCookie carries the chat username to the frontend after login.
const ChatLoginCookie = "chat_login_username"

// Server holds the handler dependencies.
type Server struct {
	login             LoginService
	session           middleware.SessionConfig
	cookieSecure      bool
	cookieHTTPOnly    bool
	loginURL          string
	postLoginRedirect string
	db                Pinger
	workers           WorkerStats
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Login             LoginService
	Session           middleware.SessionConfig
	CookieSecure      bool
	CookieHTTPOnly    bool
	LoginURL          string
	PostLoginRedirect string
	// DB is optional; readiness reports ok without it.
	DB Pinger
	// Workers is optional; readiness includes pool usage when set.
	Workers WorkerStats
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	if deps.LoginURL == "" {
		deps.LoginURL = "/login"
	}
	if deps.PostLoginRedirect == "" {
		deps.PostLoginRedirect = "/"
	}
	return &Server{
		login:             deps.Login,
		session:           deps.Session,
		cookieSecure:      deps.CookieSecure,
		cookieHTTPOnly:    deps.CookieHTTPOnly,
		loginURL:          deps.LoginURL,
		postLoginRedirect: deps.PostLoginRedirect,
		db:                deps.DB,
		workers:           deps.Workers,
	}
}

// loginErrorURL appends ?error=code to the login page URL.
func (s *Server) loginErrorURL(code string) string {
	u, err := url.Parse(s.loginURL)
	if err != nil {
		return s.loginURL
	}
	q := u.Query()
	q.Set("error", code)
	u.RawQuery = q.Encode()
	return u.String()
}

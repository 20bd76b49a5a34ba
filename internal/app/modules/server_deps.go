package modules

import (
	"oauthbridge.io/bridge/internal/api/handlers"
	"oauthbridge.io/bridge/internal/api/middleware"
	"oauthbridge.io/bridge/internal/config"
)

// SessionIssuer is the iss claim of session tokens.
const SessionIssuer = "oauth-bridge"

// NewSessionConfig projects the session settings used to sign and verify
// session tokens.
func NewSessionConfig(cfg *config.Config) middleware.SessionConfig {
	return middleware.SessionConfig{
		SigningKey: []byte(cfg.Security.SessionSecret),
		Issuer:     SessionIssuer,
		ExpiresIn:  cfg.Session.Lifetime,
		CookieName: cfg.Session.Cookie,
	}
}

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Session:           NewSessionConfig(cfg),
		CookieSecure:      cfg.Session.Secure,
		CookieHTTPOnly:    cfg.Session.HttpOnly,
		LoginURL:          cfg.Server.LoginURL,
		PostLoginRedirect: cfg.Server.PostLoginRedirect,
	}
	if infra != nil && infra.DB != nil && infra.DB.Pool != nil {
		deps.DB = infra.DB.Pool
	}
	if infra != nil && infra.Pools != nil {
		deps.Workers = infra.Pools
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}

// Package domain provides domain models for the OAuth bridge.
//
// Storage and transport layers return these types; nothing here depends on
// pgx, gin or x/oauth2.
//
// Import Path: oauthbridge.io/bridge/internal/domain
package domain

import "time"

// ProviderStatus is the installation state of an OAuth provider.
type ProviderStatus string

const (
	ProviderStatusNotInstalled ProviderStatus = "not_installed"
	ProviderStatusInstalled    ProviderStatus = "installed"
)

// Provider is a named external identity provider (e.g. passport, github).
type Provider struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	RedirectURI string         `json:"redirect_uri"`
	Status      ProviderStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Installed reports whether the provider may be used for logins.
func (p *Provider) Installed() bool {
	return p != nil && p.Status == ProviderStatusInstalled
}

// ProviderClient is one credential set registered with a Provider.
type ProviderClient struct {
	ID           string `json:"id"`
	ProviderID   string `json:"provider_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	// Host overrides the provider's default endpoints for self-hosted installs.
	Host string `json:"host,omitempty"`
	// RoleID is granted to users entitled to this client.
	RoleID    string    `json:"role_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientConfig is the credential bundle handed to the OAuth exchanger.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Host         string
}

// ClientConfig projects the client and its provider into a credential bundle.
func (c *ProviderClient) ClientConfig(p *Provider) ClientConfig {
	cfg := ClientConfig{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Host:         c.Host,
	}
	if p != nil {
		cfg.RedirectURI = p.RedirectURI
	}
	return cfg
}

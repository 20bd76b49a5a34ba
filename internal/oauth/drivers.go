// Package oauth exchanges authorization codes with external OAuth providers
// and normalizes the returned profile into a domain.ExternalIdentity.
//
// Provider names resolve to drivers through a Registry. Endpoints starting
// with "/" are joined to the provider client's host, which lets one driver
// serve many self-hosted installations.
//
// Import Path: oauthbridge.io/bridge/internal/oauth
package oauth

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"oauthbridge.io/bridge/internal/config"
)

// Profile lists candidate JSON paths for each identity field.
// The first non-empty value wins.
type Profile struct {
	Subject  []string
	Email    []string
	Name     []string
	Nickname []string
	Avatar   []string
}

// Driver describes how to talk to one kind of provider.
type Driver struct {
	Name        string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	Scopes      []string
	AuthStyle   oauth2.AuthStyle
	Profile     Profile
}

var defaultProfile = Profile{
	Subject:  []string{"sub", "id"},
	Email:    []string{"email"},
	Name:     []string{"name"},
	Nickname: []string{"nickname", "preferred_username", "login"},
	Avatar:   []string{"avatar", "picture", "avatar_url"},
}

// BuiltinDrivers returns the drivers every registry starts with.
func BuiltinDrivers() []Driver {
	return []Driver{
		{
			Name:        "passport",
			AuthURL:     "/oauth/authorize",
			TokenURL:    "/oauth/token",
			UserInfoURL: "/api/user",
			AuthStyle:   oauth2.AuthStyleInParams,
			Profile:     defaultProfile,
		},
		{
			Name:        "github",
			AuthURL:     "https://github.com/login/oauth/authorize",
			TokenURL:    "https://github.com/login/oauth/access_token",
			UserInfoURL: "https://api.github.com/user",
			Scopes:      []string{"read:user", "user:email"},
			AuthStyle:   oauth2.AuthStyleInParams,
			Profile: Profile{
				Subject:  []string{"id"},
				Email:    []string{"email"},
				Name:     []string{"name"},
				Nickname: []string{"login"},
				Avatar:   []string{"avatar_url"},
			},
		},
		{
			Name:        "keycloak",
			AuthURL:     "/protocol/openid-connect/auth",
			TokenURL:    "/protocol/openid-connect/token",
			UserInfoURL: "/protocol/openid-connect/userinfo",
			Scopes:      []string{"openid", "email", "profile"},
			AuthStyle:   oauth2.AuthStyleInHeader,
			Profile: Profile{
				Subject:  []string{"sub"},
				Email:    []string{"email"},
				Name:     []string{"name"},
				Nickname: []string{"preferred_username"},
				Avatar:   []string{"picture"},
			},
		},
		{
			Name:        "generic",
			AuthURL:     "/oauth/authorize",
			TokenURL:    "/oauth/token",
			UserInfoURL: "/userinfo",
			Profile:     defaultProfile,
		},
	}
}

// Registry stores drivers keyed by lowercase provider name.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates a registry holding the builtin drivers.
func NewRegistry() *Registry {
	r := &Registry{drivers: map[string]Driver{}}
	for _, d := range BuiltinDrivers() {
		_ = r.Register(d)
	}
	return r
}

// NewRegistryFromConfig adds plugin drivers and then the configured drivers
// to the builtins.
func NewRegistryFromConfig(cfgs []config.DriverConfig) (*Registry, error) {
	r := NewRegistry()
	for _, d := range PluginDrivers() {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	for _, c := range cfgs {
		d, err := driverFromConfig(c)
		if err != nil {
			return nil, err
		}
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a driver. Duplicate names are rejected.
func (r *Registry) Register(d Driver) error {
	name := normalizeName(d.Name)
	if name == "" {
		return fmt.Errorf("driver name is empty")
	}
	if d.AuthURL == "" || d.TokenURL == "" || d.UserInfoURL == "" {
		return fmt.Errorf("driver %s: auth, token and userinfo urls are required", name)
	}
	if len(d.Profile.Subject) == 0 {
		d.Profile = defaultProfile
	}
	d.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[name]; exists {
		return fmt.Errorf("driver already registered: %s", name)
	}
	r.drivers[name] = d
	return nil
}

// Resolve returns the driver for a provider name.
func (r *Registry) Resolve(providerName string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[normalizeName(providerName)]
	return d, ok
}

// Names returns the registered driver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for n := range r.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func driverFromConfig(c config.DriverConfig) (Driver, error) {
	d := Driver{
		Name:        c.Name,
		AuthURL:     c.AuthURL,
		TokenURL:    c.TokenURL,
		UserInfoURL: c.UserInfoURL,
		Scopes:      c.Scopes,
		Profile:     defaultProfile,
	}
	switch strings.ToLower(c.AuthStyle) {
	case "":
		d.AuthStyle = oauth2.AuthStyleAutoDetect
	case "header":
		d.AuthStyle = oauth2.AuthStyleInHeader
	case "params":
		d.AuthStyle = oauth2.AuthStyleInParams
	default:
		return Driver{}, fmt.Errorf("driver %s: unknown auth_style %q", c.Name, c.AuthStyle)
	}
	return d, nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

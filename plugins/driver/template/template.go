// Package template builds drivers for OpenID Connect style providers.
package template

import (
	"strings"

	"golang.org/x/oauth2"

	"oauthbridge.io/bridge/pkg/driverplugin"
)

// OIDCProfile reads the standard OpenID Connect claims.
var OIDCProfile = driverplugin.Profile{
	Subject:  []string{"sub"},
	Email:    []string{"email"},
	Name:     []string{"name"},
	Nickname: []string{"preferred_username", "nickname"},
	Avatar:   []string{"picture"},
}

// New returns a driver skeleton with relative OIDC endpoints under prefix.
// The endpoints are joined to each provider client's host.
func New(name, prefix string) driverplugin.Driver {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	return driverplugin.Driver{
		Name:        strings.ToLower(strings.TrimSpace(name)),
		AuthURL:     prefix + "/authorize",
		TokenURL:    prefix + "/token",
		UserInfoURL: prefix + "/userinfo",
		Scopes:      []string{"openid", "profile", "email"},
		AuthStyle:   oauth2.AuthStyleInHeader,
		Profile:     OIDCProfile,
	}
}

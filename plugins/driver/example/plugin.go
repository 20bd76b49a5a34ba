// Package example registers a Gitea driver as a sample third-party plugin.
package example

import (
	"oauthbridge.io/bridge/pkg/driverplugin"
	"oauthbridge.io/bridge/plugins/driver/template"
)

// Gitea returns the driver for self-hosted Gitea instances.
func Gitea() driverplugin.Driver {
	d := template.New("gitea", "/login/oauth")
	d.TokenURL = "/login/oauth/access_token"
	d.Profile.Nickname = append([]string{"preferred_username"}, "login")
	d.Profile.Avatar = []string{"picture", "avatar_url"}
	return d
}

func init() {
	driverplugin.MustRegisterDriver(Gitea())
}

package oauth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"oauthbridge.io/bridge/internal/config"
)

func TestRegisterPluginDriver(t *testing.T) {
	d := Driver{
		Name:        "Forgejo",
		AuthURL:     "/login/oauth/authorize",
		TokenURL:    "/login/oauth/access_token",
		UserInfoURL: "/login/oauth/userinfo",
	}
	require.NoError(t, RegisterPluginDriver(d))
	t.Cleanup(func() { unregisterPluginDriver("forgejo") })

	require.Error(t, RegisterPluginDriver(d), "duplicate plugin")
	require.Error(t, RegisterPluginDriver(Driver{Name: "github", AuthURL: "a", TokenURL: "t", UserInfoURL: "u"}), "builtin name")
	require.Error(t, RegisterPluginDriver(Driver{Name: "broken"}), "missing urls")

	r, err := NewRegistryFromConfig(nil)
	require.NoError(t, err)
	got, ok := r.Resolve("forgejo")
	require.True(t, ok)
	require.Equal(t, "/login/oauth/userinfo", got.UserInfoURL)
	require.Equal(t, defaultProfile, got.Profile)

	_, err = NewRegistryFromConfig([]config.DriverConfig{{
		Name: "forgejo", AuthURL: "/a", TokenURL: "/t", UserInfoURL: "/u",
	}})
	require.Error(t, err, "config cannot shadow a plugin driver")

	// Plain registries only carry builtins.
	_, ok = NewRegistry().Resolve("forgejo")
	require.False(t, ok)
}

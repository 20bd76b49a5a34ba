// Package driverplugin is the public contract for OAuth driver plugins.
//
// A plugin package calls MustRegisterDriver from init() and is loaded by a
// blank import of plugins/driver/autoreg in the composition root.
//
// Import Path: oauthbridge.io/bridge/pkg/driverplugin
package driverplugin

import (
	"fmt"
	"sort"

	"oauthbridge.io/bridge/internal/oauth"
)

// Driver describes the endpoints and profile mapping of one provider kind.
type Driver = oauth.Driver

// Profile lists candidate JSON paths for each identity field.
type Profile = oauth.Profile

// RegisterDriver registers a plugin driver.
func RegisterDriver(d Driver) error {
	return oauth.RegisterPluginDriver(d)
}

// MustRegisterDriver registers a plugin driver and panics on failure.
func MustRegisterDriver(d Driver) {
	if err := RegisterDriver(d); err != nil {
		panic(fmt.Sprintf("oauth driver plugin register failed: %v", err))
	}
}

// ListRegisteredDrivers returns the plugin driver names, sorted.
func ListRegisteredDrivers() []string {
	drivers := oauth.PluginDrivers()
	names := make([]string, 0, len(drivers))
	for _, d := range drivers {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

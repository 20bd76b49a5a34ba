package oauth

import (
	"fmt"
	"sync"
)

// pluginDrivers holds drivers registered by plugin packages at init time.
// Every registry created afterwards includes them.
var pluginDrivers = struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}{drivers: map[string]Driver{}}

// RegisterPluginDriver makes d available to every new Registry.
// Names that collide with a builtin or an earlier plugin are rejected.
func RegisterPluginDriver(d Driver) error {
	scratch := NewRegistry()
	if err := scratch.Register(d); err != nil {
		return err
	}
	name := normalizeName(d.Name)
	d, _ = scratch.Resolve(name)

	pluginDrivers.mu.Lock()
	defer pluginDrivers.mu.Unlock()
	if _, exists := pluginDrivers.drivers[name]; exists {
		return fmt.Errorf("driver already registered: %s", name)
	}
	pluginDrivers.drivers[name] = d
	return nil
}

// PluginDrivers returns the plugin-registered drivers.
func PluginDrivers() []Driver {
	pluginDrivers.mu.RLock()
	defer pluginDrivers.mu.RUnlock()
	out := make([]Driver, 0, len(pluginDrivers.drivers))
	for _, d := range pluginDrivers.drivers {
		out = append(out, d)
	}
	return out
}

func unregisterPluginDriver(name string) {
	pluginDrivers.mu.Lock()
	defer pluginDrivers.mu.Unlock()
	delete(pluginDrivers.drivers, normalizeName(name))
}

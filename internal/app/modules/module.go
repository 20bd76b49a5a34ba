// Package modules groups the composition root into domain-oriented units.
//
// Import Path: oauthbridge.io/bridge/internal/app/modules
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"oauthbridge.io/bridge/internal/api/handlers"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

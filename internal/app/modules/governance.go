package modules

import (
	"context"

	"github.com/riverqueue/river"

	"oauthbridge.io/bridge/internal/api/handlers"
	"oauthbridge.io/bridge/internal/governance/audit"
)

// GovernanceModule records logins and action failures in the audit log.
type GovernanceModule struct {
	audit *audit.Logger
}

// NewGovernanceModule subscribes the audit logger to login events.
func NewGovernanceModule(infra *Infrastructure) *GovernanceModule {
	logger := audit.NewLogger(infra.DB.Pool)
	logger.Subscribe(infra.Events)
	return &GovernanceModule{audit: logger}
}

func (m *GovernanceModule) Name() string { return "governance" }

func (m *GovernanceModule) ContributeServerDeps(_ *handlers.ServerDeps) {}

func (m *GovernanceModule) RegisterWorkers(_ *river.Workers) {}

func (m *GovernanceModule) Shutdown(context.Context) error { return nil }

package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/action"
	"oauthbridge.io/bridge/internal/api/handlers"
	"oauthbridge.io/bridge/internal/identity"
	"oauthbridge.io/bridge/internal/login"
	"oauthbridge.io/bridge/internal/oauth"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// LoginModule wires the exchanger, resolver, action engine and orchestrator.
type LoginModule struct {
	orchestrator *login.Orchestrator
}

// NewLoginModule builds the login pipeline. Invalid stored actions are
// logged and left to fail at login time; an invalid catalog is fatal.
func NewLoginModule(ctx context.Context, infra *Infrastructure, notifier login.Notifier) (*LoginModule, error) {
	cfg := infra.Config
	store := infra.Store

	catalog, err := action.NewCatalog(cfg.Entities)
	if err != nil {
		return nil, fmt.Errorf("build entity catalog: %w", err)
	}
	scope, err := action.ParseScope(cfg.Actions.Scope)
	if err != nil {
		return nil, err
	}
	engine := action.NewEngine(store.Actions, store.Sink, catalog, scope, infra.Events)

	problems, err := engine.Validate(ctx)
	if err != nil {
		logger.Warn("Could not validate login actions", zap.Error(err))
	}
	for _, p := range problems {
		logger.Error("Invalid login action", zap.Error(p))
	}

	registry, err := oauth.NewRegistryFromConfig(cfg.OAuth.Drivers)
	if err != nil {
		return nil, fmt.Errorf("build oauth drivers: %w", err)
	}

	var nonces login.NonceStore
	if infra.Redis != nil {
		nonces = login.NewRedisNonceStore(infra.Redis)
	}

	orch := login.NewOrchestrator(login.Dependencies{
		Providers: store.Providers,
		Clients:   store.Clients,
		Exchanger: oauth.NewOAuth2Exchanger(registry, oauth.WithTimeout(cfg.OAuth.HTTPTimeout)),
		Resolver: identity.NewResolver(identity.Store{
			Users:    store.Users,
			Accounts: store.Accounts,
			Clients:  store.Clients,
			Roles:    store.Roles,
		}),
		Actions:  engine,
		Notifier: notifier,
		Events:   infra.Events,
		States:   login.NewStateCodec(cfg.Security.StateSecret, cfg.OAuth.StateTTL, nonces),
	})

	logger.Info("Login pipeline ready",
		zap.Strings("entities", catalog.Names()),
		zap.Strings("drivers", registry.Names()),
		zap.String("action_scope", string(scope)),
		zap.Bool("single_use_state", nonces != nil),
	)
	return &LoginModule{orchestrator: orch}, nil
}

func (m *LoginModule) Name() string { return "login" }

func (m *LoginModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Login = m.orchestrator
}

func (m *LoginModule) RegisterWorkers(_ *river.Workers) {}

func (m *LoginModule) Shutdown(context.Context) error { return nil }

// Package login sequences an OAuth login: provider and client lookup, code
// exchange, identity resolution, login actions and the chat notification.
//
// The redirect and callback legs share no server-side session. Everything
// the callback needs travels in a signed state token.
//
// Import Path: oauthbridge.io/bridge/internal/login
package login

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/action"
	"oauthbridge.io/bridge/internal/domain"
	"oauthbridge.io/bridge/internal/oauth"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// Mode selects what the callback returns.
type Mode string

const (
	// ModeWeb resolves the user and starts a session.
	ModeWeb Mode = ""
	// ModeMobile returns the provider's token response without resolution.
	ModeMobile Mode = "mobile"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeWeb || m == ModeMobile
}

// ProviderRepository loads providers.
type ProviderRepository interface {
	GetByName(ctx context.Context, name string) (*domain.Provider, error)
	GetByID(ctx context.Context, id string) (*domain.Provider, error)
}

// ClientRepository loads provider clients.
type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ProviderClient, error)
}

// IdentityResolver maps an external identity to a local user.
type IdentityResolver interface {
	Resolve(ctx context.Context, provider *domain.Provider, client *domain.ProviderClient, ident *domain.ExternalIdentity) (*domain.User, error)
}

// ActionRunner runs the post-login actions.
type ActionRunner interface {
	RunActions(ctx context.Context, client *domain.ProviderClient, source any, user *domain.User) action.Report
}

// Notifier announces a login to the chat bridge without blocking.
type Notifier interface {
	NotifyLogin(ctx context.Context, loginIdentifier string)
}

// LoginRequest is the callback leg of a login.
type LoginRequest struct {
	ProviderName     string
	ProviderClientID string
	Code             string
	Mode             Mode
}

// Result is the outcome of a login.
type Result struct {
	Mode   Mode
	User   *domain.User
	Report action.Report
	// TokenResponse is set in mobile mode only.
	TokenResponse map[string]any
}

// Dependencies holds the orchestrator collaborators.
type Dependencies struct {
	Providers ProviderRepository
	Clients   ClientRepository
	Exchanger oauth.Exchanger
	Resolver  IdentityResolver
	Actions   ActionRunner
	// Notifier and Events are optional.
	Notifier Notifier
	Events   *domain.EventDispatcher
	States   *StateCodec
}

// Orchestrator drives both legs of the OAuth login.
type Orchestrator struct {
	deps Dependencies
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// BeginLogin returns the provider authorization URL for a provider client.
func (o *Orchestrator) BeginLogin(ctx context.Context, providerClientID string, mode Mode) (string, error) {
	if !mode.Valid() {
		return "", apperrors.BadRequest(apperrors.CodeStateInvalid, "unknown login mode")
	}
	client, err := o.client(ctx, providerClientID)
	if err != nil {
		return "", err
	}
	provider, err := o.deps.Providers.GetByID(ctx, client.ProviderID)
	if err != nil || !provider.Installed() {
		return "", providerLookupError(client.ProviderID, err)
	}

	state, err := o.deps.States.Issue(client.ID, mode)
	if err != nil {
		return "", err
	}
	return o.deps.Exchanger.AuthCodeURL(provider.Name, client.ClientConfig(provider), state)
}

// Callback verifies the state token and completes the login.
func (o *Orchestrator) Callback(ctx context.Context, providerName, code, state string) (*Result, error) {
	claims, err := o.deps.States.Verify(ctx, state)
	if err != nil {
		return nil, err
	}
	return o.Login(ctx, LoginRequest{
		ProviderName:     providerName,
		ProviderClientID: claims.ProviderClientID,
		Code:             code,
		Mode:             claims.Mode,
	})
}

// Login completes a login. Lookup and exchange failures abort before any
// state is written; action failures are reported in Result.Report only.
func (o *Orchestrator) Login(ctx context.Context, req LoginRequest) (*Result, error) {
	provider, client, err := o.lookup(ctx, req.ProviderName, req.ProviderClientID)
	if err != nil {
		return nil, err
	}

	ident, err := o.deps.Exchanger.ExchangeToken(ctx, provider.Name, client.ClientConfig(provider), req.Code)
	if err != nil {
		return nil, exchangeError(provider.Name, err)
	}

	if req.Mode == ModeMobile {
		logger.Info("Mobile login exchanged",
			zap.String("provider", provider.Name),
			zap.String("provider_client_id", client.ID),
		)
		return &Result{Mode: ModeMobile, TokenResponse: ident.TokenResponse}, nil
	}
	return o.complete(ctx, provider, client, ident)
}

// LoginWithAccessToken completes a web login for a client that already holds
// a provider access token, typically a mobile app after the mobile flow.
// The profile is loaded with the token; no code is exchanged.
func (o *Orchestrator) LoginWithAccessToken(ctx context.Context, providerName, providerClientID, accessToken string) (*Result, error) {
	provider, client, err := o.lookup(ctx, providerName, providerClientID)
	if err != nil {
		return nil, err
	}

	ident, err := o.deps.Exchanger.FetchIdentity(ctx, provider.Name, client.ClientConfig(provider), accessToken)
	if err != nil {
		return nil, exchangeError(provider.Name, err)
	}
	return o.complete(ctx, provider, client, ident)
}

// lookup loads an installed provider and one of its clients.
func (o *Orchestrator) lookup(ctx context.Context, providerName, providerClientID string) (*domain.Provider, *domain.ProviderClient, error) {
	provider, err := o.deps.Providers.GetByName(ctx, providerName)
	if err != nil || !provider.Installed() {
		return nil, nil, providerLookupError(providerName, err)
	}
	client, err := o.client(ctx, providerClientID)
	if err != nil {
		return nil, nil, err
	}
	if client.ProviderID != provider.ID {
		return nil, nil, apperrors.ErrProviderClientNotFoundf(providerClientID)
	}
	return provider, client, nil
}

// complete resolves the user, runs the login actions and announces the login.
func (o *Orchestrator) complete(ctx context.Context, provider *domain.Provider, client *domain.ProviderClient, ident *domain.ExternalIdentity) (*Result, error) {
	user, err := o.deps.Resolver.Resolve(ctx, provider, client, ident)
	if err != nil {
		return nil, err
	}

	report := o.deps.Actions.RunActions(ctx, client, ident, user)

	loginID := domain.LoginIdentifier(user.Email)
	if o.deps.Notifier != nil && loginID != "" {
		o.deps.Notifier.NotifyLogin(ctx, loginID)
	}

	o.emitLogin(ctx, provider, client, user, loginID)

	logger.Info("User logged in",
		zap.String("user_id", user.ID),
		zap.String("provider", provider.Name),
		zap.String("provider_client_id", client.ID),
		zap.Int("actions_applied", len(report.Applied)),
		zap.Int("actions_failed", len(report.Failed)),
	)
	return &Result{Mode: ModeWeb, User: user, Report: report}, nil
}

func (o *Orchestrator) client(ctx context.Context, id string) (*domain.ProviderClient, error) {
	if id == "" {
		return nil, apperrors.ErrProviderClientNotFoundf(id)
	}
	client, err := o.deps.Clients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrProviderClientNotFoundf(id)
		}
		return nil, fmt.Errorf("load provider client %s: %w", id, err)
	}
	return client, nil
}

func (o *Orchestrator) emitLogin(ctx context.Context, provider *domain.Provider, client *domain.ProviderClient, user *domain.User, loginID string) {
	if o.deps.Events == nil {
		return
	}
	event, err := domain.NewEvent(domain.EventUserLoggedIn, user.ID, user.ID, domain.LoginPayload{
		UserID:           user.ID,
		Email:            user.Email,
		ProviderName:     provider.Name,
		ProviderClientID: client.ID,
		LoginIdentifier:  loginID,
	})
	if err == nil {
		err = o.deps.Events.Dispatch(ctx, event)
	}
	if err != nil {
		logger.Warn("Failed to record login event",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}

func exchangeError(providerName string, err error) error {
	if apperrors.HasCode(err, apperrors.CodeAuthExchangeFailed) {
		return err
	}
	return apperrors.ErrAuthExchangeFailedf(providerName, err)
}

// providerLookupError maps a missing or not-installed provider to NotFound.
func providerLookupError(name string, err error) error {
	if err == nil || errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.ErrProviderNotFoundf(name)
	}
	return fmt.Errorf("load provider %s: %w", name, err)
}

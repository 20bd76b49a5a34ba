package action

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// Repository loads login actions.
type Repository interface {
	// ListForClients returns actions attached to any of the provider client
	// ids, each action once.
	ListForClients(ctx context.Context, providerClientIDs []string) ([]*domain.LoginAction, error)
	ListAll(ctx context.Context) ([]*domain.LoginAction, error)
}

// EntitySink persists resolved attributes into a target entity.
// Each call is atomic.
type EntitySink interface {
	// Upsert updates the rows matching keys or inserts one when none match.
	// Without a unique index on the keys (EntityDescriptor.UniqueKey), two
	// concurrent first logins of the same user may both insert.
	Upsert(ctx context.Context, entity *EntityDescriptor, keys []string, attrs map[string]Value) error
	Insert(ctx context.Context, entity *EntityDescriptor, attrs map[string]Value) error
}

// Scope selects which provider clients contribute actions to a login.
type Scope string

const (
	// ScopeEntitled uses the clients named by the identity's role claims for
	// the current client.
	ScopeEntitled Scope = config.ActionScopeEntitled
	// ScopeDirect uses the client the user logged in through.
	ScopeDirect Scope = config.ActionScopeDirect
	// ScopeBoth is the union of ScopeEntitled and ScopeDirect.
	ScopeBoth Scope = config.ActionScopeBoth
)

// ParseScope validates a configured scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeEntitled, ScopeDirect, ScopeBoth:
		return Scope(s), nil
	case "":
		return ScopeEntitled, nil
	}
	return "", fmt.Errorf("unknown action scope %q", s)
}

// WriteMode records how an action persisted.
type WriteMode string

const (
	WriteUpsert WriteMode = "upsert"
	WriteInsert WriteMode = "insert"
)

// Outcome describes an applied action.
type Outcome struct {
	ActionID   string
	ActionName string
	Entity     string
	Mode       WriteMode
}

// Failure describes a skipped action.
type Failure struct {
	ActionID   string
	ActionName string
	Code       string
	Err        error
}

// Report summarizes one RunActions call.
type Report struct {
	Applied []Outcome
	Failed  []Failure
}

// OK reports whether no action failed.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// Engine runs login actions.
type Engine struct {
	actions Repository
	sink    EntitySink
	catalog *Catalog
	scope   Scope
	events  *domain.EventDispatcher
}

// NewEngine creates an Engine. events may be nil.
func NewEngine(actions Repository, sink EntitySink, catalog *Catalog, scope Scope, events *domain.EventDispatcher) *Engine {
	if scope == "" {
		scope = ScopeEntitled
	}
	return &Engine{
		actions: actions,
		sink:    sink,
		catalog: catalog,
		scope:   scope,
		events:  events,
	}
}

// RunActions runs every runnable action selected for the login. Failures are
// isolated per action and reported, never returned.
func (e *Engine) RunActions(ctx context.Context, client *domain.ProviderClient, source any, user *domain.User) Report {
	var report Report

	clientIDs := e.clientIDs(client, source)
	if len(clientIDs) == 0 {
		return report
	}

	actions, err := e.actions.ListForClients(ctx, clientIDs)
	if err != nil {
		e.fail(ctx, &report, user, nil, apperrors.Wrap(err, apperrors.CodeInternal, "list login actions", http.StatusInternalServerError))
		return report
	}

	evalCtx, err := NewContext(source, user)
	if err != nil {
		e.fail(ctx, &report, user, nil, apperrors.Wrap(err, apperrors.CodeInternal, "build action context", http.StatusInternalServerError))
		return report
	}

	seen := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		if _, dup := seen[a.ID]; dup || !a.Runnable() {
			continue
		}
		seen[a.ID] = struct{}{}

		outcome, err := e.apply(ctx, a, evalCtx)
		if err != nil {
			e.fail(ctx, &report, user, a, err)
			continue
		}
		report.Applied = append(report.Applied, outcome)
		logger.Debug("Login action applied",
			zap.String("action_id", a.ID),
			zap.String("entity", outcome.Entity),
			zap.String("mode", string(outcome.Mode)),
		)
	}
	return report
}

func (e *Engine) clientIDs(client *domain.ProviderClient, source any) []string {
	if client == nil {
		return nil
	}
	var ids []string
	if e.scope == ScopeDirect || e.scope == ScopeBoth {
		ids = append(ids, client.ID)
	}
	if e.scope == ScopeEntitled || e.scope == ScopeBoth {
		if ident, ok := source.(*domain.ExternalIdentity); ok {
			ids = append(ids, ident.EntitledClientIDs(client.ClientID)...)
		}
	}

	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// apply resolves every mapping before touching storage, so a failing field
// leaves the target untouched.
func (e *Engine) apply(ctx context.Context, a *domain.LoginAction, evalCtx *Context) (Outcome, error) {
	entity, err := e.catalog.Lookup(a.ModelClass)
	if err != nil {
		return Outcome{}, err
	}

	attrs := make(map[string]Value, len(a.Data))
	for _, m := range a.Data {
		if !entity.HasColumn(m.Target) {
			return Outcome{}, unknownAttribute(entity, m.Target)
		}
		v, err := evalCtx.Resolve(m.Source)
		if err != nil {
			return Outcome{}, err
		}
		attrs[m.Target] = v
	}

	outcome := Outcome{ActionID: a.ID, ActionName: a.Name, Entity: entity.Name}
	if _, keyed := attrs[entity.Key]; keyed {
		outcome.Mode = WriteUpsert
		err = e.sink.Upsert(ctx, entity, []string{entity.Key}, attrs)
	} else {
		outcome.Mode = WriteInsert
		err = e.sink.Insert(ctx, entity, attrs)
	}
	if err != nil {
		return Outcome{}, apperrors.Wrap(err, apperrors.CodeActionPersistFailed,
			"persist login action", http.StatusInternalServerError,
		).WithParams(map[string]interface{}{"entity": entity.Name})
	}
	return outcome, nil
}

func (e *Engine) fail(ctx context.Context, report *Report, user *domain.User, a *domain.LoginAction, err error) {
	f := Failure{Code: apperrors.CodeOf(err), Err: err}
	if a != nil {
		f.ActionID = a.ID
		f.ActionName = a.Name
	}
	report.Failed = append(report.Failed, f)

	var userID string
	if user != nil {
		userID = user.ID
	}
	logger.Warn("Login action failed",
		zap.String("action_id", f.ActionID),
		zap.String("action_name", f.ActionName),
		zap.String("user_id", userID),
		zap.String("code", f.Code),
		zap.Error(err),
	)

	event, evErr := domain.NewEvent(domain.EventLoginActionFailed, userID, userID, domain.ActionFailurePayload{
		UserID:     userID,
		ActionID:   f.ActionID,
		ActionName: f.ActionName,
		Code:       f.Code,
		Error:      err.Error(),
	})
	if evErr != nil {
		logger.Warn("Build action failure event", zap.Error(evErr))
		return
	}
	if err := e.events.Dispatch(ctx, event); err != nil {
		logger.Warn("Failed to record login action failure",
			zap.String("action_id", f.ActionID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// Validate loads every stored action and checks it against the catalog.
func (e *Engine) Validate(ctx context.Context) ([]error, error) {
	actions, err := e.actions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list login actions: %w", err)
	}
	return ValidateActions(e.catalog, actions), nil
}

// ValidateActions checks entity names, target attributes and path syntax.
// It returns one error per problem found.
func ValidateActions(catalog *Catalog, actions []*domain.LoginAction) []error {
	var errs []error
	for _, a := range actions {
		params := map[string]interface{}{"action_id": a.ID, "action_name": a.Name}

		if a.Status == domain.ActionStatusEnabled && !a.Runnable() {
			errs = append(errs, apperrors.New(apperrors.CodeActionIncomplete,
				"enabled action is missing name, source, model_class or data", http.StatusUnprocessableEntity,
			).WithParams(params))
		}
		if a.ModelClass == "" {
			continue
		}

		entity, err := catalog.Lookup(a.ModelClass)
		if err != nil {
			errs = append(errs, fmt.Errorf("action %q: %w", a.Name, err))
			continue
		}
		for _, m := range a.Data {
			if !entity.HasColumn(m.Target) {
				errs = append(errs, fmt.Errorf("action %q: %w", a.Name, unknownAttribute(entity, m.Target)))
			}
			if _, err := SplitPath(m.Source); err != nil {
				errs = append(errs, fmt.Errorf("action %q: %w", a.Name, codedPathError(m.Source, err)))
			}
		}
	}
	return errs
}

func unknownAttribute(entity *EntityDescriptor, target string) error {
	return apperrors.New(apperrors.CodeUnknownAttribute,
		"target attribute is not a declared column", http.StatusUnprocessableEntity,
	).WithParams(map[string]interface{}{"entity": entity.Name, "attribute": target})
}

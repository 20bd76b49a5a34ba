package action_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"oauthbridge.io/bridge/internal/action"
	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
	"oauthbridge.io/bridge/internal/testutil"
)

func init() {
	logger.UseNop()
}

func newCatalog(t *testing.T) *action.Catalog {
	t.Helper()
	catalog, err := action.NewCatalog([]config.EntityConfig{
		{Name: "Score", Aliases: []string{`App\Models\Score`}, Table: "scores", Columns: []string{"user_id", "points"}},
		{Name: "Visit", Table: "visits", Columns: []string{"user_id", "visitor", "provider"}},
	})
	require.NoError(t, err)
	return catalog
}

type fixture struct {
	store  *testutil.MemStore
	client *domain.ProviderClient
	user   *domain.User
	events *domain.EventDispatcher
	failed []domain.ActionFailurePayload
	mu     sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.NewMemStore(),
		client: &domain.ProviderClient{ID: "7", ProviderID: "p1", ClientID: "abc"},
		user:   &domain.User{ID: "5", Name: "Jane", Email: "jane@example.com", CreatedAt: time.Now(), UpdatedAt: time.Now()},
		events: domain.NewEventDispatcher(),
	}
	f.events.Register(domain.EventLoginActionFailed, func(ctx context.Context, e *domain.DomainEvent) error {
		var p domain.ActionFailurePayload
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		f.mu.Lock()
		f.failed = append(f.failed, p)
		f.mu.Unlock()
		return nil
	})
	return f
}

func (f *fixture) engine(t *testing.T, scope action.Scope) *action.Engine {
	return action.NewEngine(f.store.Actions, f.store.Sink, newCatalog(t), scope, f.events)
}

func (f *fixture) addAction(t *testing.T, a domain.LoginAction) {
	t.Helper()
	if a.Status == "" {
		a.Status = domain.ActionStatusEnabled
	}
	if a.Source == "" {
		a.Source = "oauth_user"
	}
	if len(a.ProviderClientIDs) == 0 {
		a.ProviderClientIDs = []string{"7"}
	}
	require.NoError(t, f.store.Actions.Create(context.Background(), &a))
}

func identity(score any) *domain.ExternalIdentity {
	return &domain.ExternalIdentity{
		Subject: "ext-1",
		Raw: map[string]any{
			"score": score,
			"oauth_roles": []any{
				map[string]any{"oauth_client_id": "abc", "passport_id": 7},
			},
		},
	}
}

func scoreAction() domain.LoginAction {
	return domain.LoginAction{
		ID:         "a-score",
		Name:       "sync score",
		ModelClass: "App\\Models\\Score",
		Data: []domain.FieldMapping{
			{Source: "current_user.id", Target: "user_id"},
			{Source: "score", Target: "points"},
		},
	}
}

func TestRunActions_ScoreUpsert(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, scoreAction())
	engine := f.engine(t, action.ScopeEntitled)
	ctx := context.Background()

	report := engine.RunActions(ctx, f.client, identity(10), f.user)
	require.True(t, report.OK(), "%+v", report.Failed)
	require.Len(t, report.Applied, 1)
	require.Equal(t, action.WriteUpsert, report.Applied[0].Mode)

	report = engine.RunActions(ctx, f.client, identity(15), f.user)
	require.True(t, report.OK())

	rows := f.store.Rows("scores")
	require.Len(t, rows, 1)
	require.Equal(t, "5", rows[0]["user_id"].Str())
	points, ok := rows[0]["points"].Int64()
	require.True(t, ok)
	require.Equal(t, int64(15), points)
}

func TestRunActions_InsertWithoutKey(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, domain.LoginAction{
		ID:         "a-visit",
		Name:       "record visit",
		ModelClass: "Visit",
		Data:       []domain.FieldMapping{{Source: "current_user.email", Target: "visitor"}},
	})
	engine := f.engine(t, action.ScopeEntitled)

	for i := 0; i < 2; i++ {
		report := engine.RunActions(context.Background(), f.client, identity(1), f.user)
		require.True(t, report.OK())
		require.Equal(t, action.WriteInsert, report.Applied[0].Mode)
	}
	require.Len(t, f.store.Rows("visits"), 2)
}

func TestRunActions_UnknownModelClassIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, domain.LoginAction{
		ID:         "a-bad",
		Name:       "broken",
		ModelClass: "App\\Models\\DoesNotExist",
		Data:       []domain.FieldMapping{{Source: "score", Target: "points"}},
	})
	f.addAction(t, scoreAction())

	report := f.engine(t, action.ScopeEntitled).RunActions(context.Background(), f.client, identity(3), f.user)

	require.Len(t, report.Failed, 1)
	require.Equal(t, "a-bad", report.Failed[0].ActionID)
	require.Equal(t, apperrors.CodeUnknownEntityType, report.Failed[0].Code)
	require.Len(t, report.Applied, 1)
	require.Equal(t, "a-score", report.Applied[0].ActionID)
	require.Len(t, f.store.Rows("scores"), 1)

	require.Len(t, f.failed, 1)
	require.Equal(t, "a-bad", f.failed[0].ActionID)
	require.Equal(t, "5", f.failed[0].UserID)
}

func TestRunActions_PathFailureAbortsOnlyThatAction(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, domain.LoginAction{
		ID:         "a-missing",
		Name:       "missing field",
		ModelClass: "Score",
		Data: []domain.FieldMapping{
			{Source: "current_user.id", Target: "user_id"},
			{Source: "profile.level", Target: "points"},
		},
	})
	f.addAction(t, domain.LoginAction{
		ID:         "a-visit",
		Name:       "record visit",
		ModelClass: "Visit",
		Data:       []domain.FieldMapping{{Source: "current_user.name", Target: "visitor"}},
	})

	report := f.engine(t, action.ScopeEntitled).RunActions(context.Background(), f.client, identity(3), f.user)

	require.Len(t, report.Failed, 1)
	require.Equal(t, apperrors.CodePathResolution, report.Failed[0].Code)
	require.True(t, errors.Is(report.Failed[0].Err, action.ErrPathResolution))
	require.Empty(t, f.store.Rows("scores"))
	require.Len(t, f.store.Rows("visits"), 1)
}

func TestRunActions_UndeclaredTargetAttribute(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, domain.LoginAction{
		ID:         "a-attr",
		Name:       "bad attribute",
		ModelClass: "Score",
		Data:       []domain.FieldMapping{{Source: "score", Target: "password"}},
	})

	report := f.engine(t, action.ScopeEntitled).RunActions(context.Background(), f.client, identity(3), f.user)
	require.Len(t, report.Failed, 1)
	require.Equal(t, apperrors.CodeUnknownAttribute, report.Failed[0].Code)
}

func TestRunActions_PersistFailure(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, scoreAction())
	f.store.FailOn(testutil.OpSinkUpsert, errors.New("disk full"))

	report := f.engine(t, action.ScopeEntitled).RunActions(context.Background(), f.client, identity(3), f.user)
	require.Len(t, report.Failed, 1)
	require.Equal(t, apperrors.CodeActionPersistFailed, report.Failed[0].Code)
}

func TestRunActions_ListFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, scoreAction())
	f.store.FailOn(testutil.OpActionsList, errors.New("connection reset"))

	report := f.engine(t, action.ScopeEntitled).RunActions(context.Background(), f.client, identity(3), f.user)
	require.Len(t, report.Failed, 1)
	require.Empty(t, report.Failed[0].ActionID)
	require.Empty(t, report.Applied)
}

func TestRunActions_SkipsDisabledAndIncomplete(t *testing.T) {
	f := newFixture(t)
	disabled := scoreAction()
	disabled.ID = "a-disabled"
	disabled.Status = domain.ActionStatusDisabled
	f.addAction(t, disabled)

	incomplete := scoreAction()
	incomplete.ID = "a-incomplete"
	incomplete.Data = nil
	f.addAction(t, incomplete)

	report := f.engine(t, action.ScopeEntitled).RunActions(context.Background(), f.client, identity(3), f.user)
	require.True(t, report.OK())
	require.Empty(t, report.Applied)
	require.Empty(t, f.store.Rows("scores"))
}

func TestRunActions_Scope(t *testing.T) {
	ident := &domain.ExternalIdentity{
		Subject: "ext-1",
		Raw: map[string]any{
			"score": 1,
			"oauth_roles": []any{
				map[string]any{"oauth_client_id": "abc", "passport_id": "8"},
			},
		},
	}

	direct := scoreAction()
	direct.ID = "a-direct"
	direct.ProviderClientIDs = []string{"7"}

	entitled := domain.LoginAction{
		ID:                "a-entitled",
		Name:              "entitled visit",
		ModelClass:        "Visit",
		ProviderClientIDs: []string{"8"},
		Data:              []domain.FieldMapping{{Source: "current_user.id", Target: "visitor"}},
	}

	tests := []struct {
		scope action.Scope
		want  []string
	}{
		{action.ScopeEntitled, []string{"a-entitled"}},
		{action.ScopeDirect, []string{"a-direct"}},
		{action.ScopeBoth, []string{"a-direct", "a-entitled"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			f := newFixture(t)
			f.addAction(t, direct)
			f.addAction(t, entitled)

			report := f.engine(t, tt.scope).RunActions(context.Background(), f.client, ident, f.user)
			require.True(t, report.OK())

			var got []string
			for _, o := range report.Applied {
				got = append(got, o.ActionID)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunActions_NonIdentitySource(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, scoreAction())

	report := f.engine(t, action.ScopeDirect).RunActions(context.Background(), f.client,
		map[string]any{"score": 99}, f.user)
	require.True(t, report.OK())

	rows := f.store.Rows("scores")
	require.Len(t, rows, 1)
	points, _ := rows[0]["points"].Int64()
	require.Equal(t, int64(99), points)
}

func TestValidateActions(t *testing.T) {
	catalog := newCatalog(t)
	actions := []*domain.LoginAction{
		{ID: "ok", Name: "ok", Source: "s", ModelClass: "Score", Status: domain.ActionStatusEnabled,
			Data: []domain.FieldMapping{{Source: "score", Target: "points"}}},
		{ID: "bad-entity", Name: "bad-entity", Source: "s", ModelClass: "Nope", Status: domain.ActionStatusEnabled,
			Data: []domain.FieldMapping{{Source: "score", Target: "points"}}},
		{ID: "bad-attr", Name: "bad-attr", Source: "s", ModelClass: "Score", Status: domain.ActionStatusEnabled,
			Data: []domain.FieldMapping{{Source: "score..x", Target: "nope"}}},
		{ID: "incomplete", Name: "incomplete", ModelClass: "Score", Status: domain.ActionStatusEnabled},
	}

	errs := action.ValidateActions(catalog, actions)
	require.Len(t, errs, 4)
	require.True(t, apperrors.HasCode(errs[0], apperrors.CodeUnknownEntityType))
	require.True(t, apperrors.HasCode(errs[1], apperrors.CodeUnknownAttribute))
	require.True(t, apperrors.HasCode(errs[2], apperrors.CodePathResolution))
	require.True(t, apperrors.HasCode(errs[3], apperrors.CodeActionIncomplete))
}

func TestEngine_Validate(t *testing.T) {
	f := newFixture(t)
	f.addAction(t, scoreAction())

	errs, err := f.engine(t, action.ScopeEntitled).Validate(context.Background())
	require.NoError(t, err)
	require.Empty(t, errs)
}

func TestRunActions_FailedAuditWriteIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Replace(zap.New(core))
	t.Cleanup(restore)

	f := newFixture(t)
	f.events.Register(domain.EventLoginActionFailed, func(context.Context, *domain.DomainEvent) error {
		return errors.New("audit table unavailable")
	})
	f.addAction(t, domain.LoginAction{
		ID:         "a-bad",
		Name:       "broken",
		ModelClass: "Invoice",
		Data:       []domain.FieldMapping{{Source: "score", Target: "points"}},
	})

	report := f.engine(t, action.ScopeEntitled).RunActions(context.Background(), f.client, identity(3), f.user)
	require.Len(t, report.Failed, 1)

	entries := logs.FilterMessage("Failed to record login action failure").All()
	require.Len(t, entries, 1)
	require.Equal(t, "a-bad", entries[0].ContextMap()["action_id"])
	require.Contains(t, entries[0].ContextMap()["error"], "audit table unavailable")
}

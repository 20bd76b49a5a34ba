package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"oauthbridge.io/bridge/internal/domain"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

func init() {
	logger.UseNop()
}

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestLogAction(t *testing.T) {
	db := &fakeExecer{}
	l := NewLogger(db)

	err := l.LogAction(context.Background(), "user.login", "user", "u1", "u1", map[string]interface{}{"provider": "passport"})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	require.True(t, strings.HasPrefix(args[0].(string), "audit-"))
	require.Equal(t, "user.login", args[1])
	require.Equal(t, "user", args[2])
	require.Equal(t, "u1", args[3])
	require.JSONEq(t, `{"provider":"passport"}`, args[5].(string))
}

func TestLogAction_NilDetails(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, NewLogger(db).LogAction(context.Background(), "x", "y", "z", "", nil))
	require.Nil(t, db.calls[0].args[5])
}

func TestLogAction_Error(t *testing.T) {
	db := &fakeExecer{err: errors.New("read-only transaction")}
	err := NewLogger(db).LogAction(context.Background(), "x", "y", "z", "", nil)
	require.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	db := &fakeExecer{}
	d := domain.NewEventDispatcher()
	NewLogger(db).Subscribe(d)

	login, err := domain.NewEvent(domain.EventUserLoggedIn, "u1", "u1", domain.LoginPayload{
		UserID: "u1", ProviderName: "passport", ProviderClientID: "7", Email: "jane@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), login))

	failure, err := domain.NewEvent(domain.EventLoginActionFailed, "u1", "u1", domain.ActionFailurePayload{
		UserID: "u1", ActionID: "a1", ActionName: "sync", Code: "UNKNOWN_ENTITY_TYPE", Error: "boom",
	})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), failure))

	require.Len(t, db.calls, 2)
	require.Equal(t, ActionUserLogin, db.calls[0].args[1])
	require.Equal(t, ActionLoginActionFailure, db.calls[1].args[1])
	require.Equal(t, "a1", db.calls[1].args[3])

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(db.calls[1].args[5].(string)), &details))
	require.Equal(t, "UNKNOWN_ENTITY_TYPE", details["code"])
}

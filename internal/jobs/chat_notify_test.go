package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"

	"oauthbridge.io/bridge/internal/notification"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

func init() {
	logger.UseNop()
}

type stubNotifier struct {
	logins []string
	err    error
}

func (s *stubNotifier) Notify(_ context.Context, login string) (notification.Result, error) {
	s.logins = append(s.logins, login)
	return notification.Result{Success: s.err == nil}, s.err
}

type stubInserter struct {
	args []river.JobArgs
	res  *rivertype.JobInsertResult
	err  error
}

func (s *stubInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	s.args = append(s.args, args)
	return s.res, s.err
}

func chatJob(login string) *river.Job[ChatNotifyArgs] {
	return &river.Job[ChatNotifyArgs]{JobRow: &rivertype.JobRow{ID: 42}, Args: ChatNotifyArgs{Login: login}}
}

func TestChatNotifyArgs(t *testing.T) {
	t.Parallel()

	require.Equal(t, "chat_notify", ChatNotifyArgs{}.Kind())
	opts := ChatNotifyArgs{}.InsertOpts()
	require.Equal(t, river.QueueDefault, opts.Queue)
	require.Equal(t, 5, opts.MaxAttempts)
	require.True(t, opts.UniqueOpts.ByArgs)
	require.Equal(t, time.Minute, opts.UniqueOpts.ByPeriod)
}

func TestChatNotifyWorker_Work(t *testing.T) {
	tests := []struct {
		name       string
		login      string
		notifyErr  error
		wantErr    bool
		wantCancel bool
		wantCalls  int
	}{
		{name: "delivered", login: "jane_example.com", wantCalls: 1},
		{name: "empty login cancels", login: "", wantErr: true, wantCancel: true},
		{name: "rejection cancels", login: "x", notifyErr: notification.ErrRejected, wantErr: true, wantCancel: true, wantCalls: 1},
		{name: "transport error retries", login: "x", notifyErr: errors.New("connection refused"), wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &stubNotifier{err: tt.notifyErr}
			err := NewChatNotifyWorker(n).Work(context.Background(), chatJob(tt.login))
			require.Len(t, n.logins, tt.wantCalls)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cancel *rivertype.JobCancelError
			require.Equal(t, tt.wantCancel, errors.As(err, &cancel))
		})
	}
}

func TestChatNotifyWorker_Uninitialized(t *testing.T) {
	var w *ChatNotifyWorker
	require.Error(t, w.Work(context.Background(), chatJob("x")))
}

func TestChatNotifyQueue(t *testing.T) {
	ins := &stubInserter{res: &rivertype.JobInsertResult{UniqueSkippedAsDuplicate: true}}
	q := NewChatNotifyQueue(ins)

	require.NoError(t, q.EnqueueChatNotify(context.Background(), "jane_example.com"))
	require.Equal(t, []river.JobArgs{ChatNotifyArgs{Login: "jane_example.com"}}, ins.args)

	ins.err = errors.New("pool closed")
	require.Error(t, q.EnqueueChatNotify(context.Background(), "bob"))
}

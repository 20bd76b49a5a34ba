// Package jobs defines River Queue job types for async processing.
//
// Jobs carry only the data a worker needs to finish on its own; the
// login request that enqueued them has already returned.
//
// Import Path: oauthbridge.io/bridge/internal/jobs
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/notification"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// ChatNotifyArgs announces a logged-in user to the chat bridge.
type ChatNotifyArgs struct {
	Login string `json:"login"`
}

// Kind returns the job kind identifier.
func (ChatNotifyArgs) Kind() string { return "chat_notify" }

// InsertOpts collapses repeated logins of the same user within a minute.
func (ChatNotifyArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Minute,
		},
	}
}

// ChatNotifyWorker delivers queued chat notifications.
type ChatNotifyWorker struct {
	river.WorkerDefaults[ChatNotifyArgs]
	notifier notification.Notifier
}

// NewChatNotifyWorker creates a worker backed by notifier.
func NewChatNotifyWorker(notifier notification.Notifier) *ChatNotifyWorker {
	return &ChatNotifyWorker{notifier: notifier}
}

// Timeout bounds a single attempt.
func (w *ChatNotifyWorker) Timeout(*river.Job[ChatNotifyArgs]) time.Duration {
	return 30 * time.Second
}

// Work calls the chat bridge. A rejection by the bridge is final; transport
// errors are retried by River.
func (w *ChatNotifyWorker) Work(ctx context.Context, job *river.Job[ChatNotifyArgs]) error {
	if w == nil || w.notifier == nil {
		return fmt.Errorf("chat notify worker is not initialized")
	}
	if job.Args.Login == "" {
		return river.JobCancel(fmt.Errorf("chat notify job %d: empty login", job.ID))
	}

	err := notification.Deliver(ctx, w.notifier, job.Args.Login)
	if err == nil {
		return nil
	}
	if errors.Is(err, notification.ErrRejected) {
		logger.Warn("Chat bridge rejected queued notification",
			zap.Int64("job_id", job.ID),
			zap.String("login", job.Args.Login),
			zap.Error(err),
		)
		return river.JobCancel(err)
	}
	return err
}

// Inserter is the subset of *river.Client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// ChatNotifyQueue enqueues chat_notify jobs.
type ChatNotifyQueue struct {
	client Inserter
}

// NewChatNotifyQueue wraps a River client.
func NewChatNotifyQueue(client Inserter) *ChatNotifyQueue {
	return &ChatNotifyQueue{client: client}
}

// EnqueueChatNotify inserts a chat_notify job.
func (q *ChatNotifyQueue) EnqueueChatNotify(ctx context.Context, login string) error {
	res, err := q.client.Insert(ctx, ChatNotifyArgs{Login: login}, nil)
	if err != nil {
		return fmt.Errorf("insert chat_notify job: %w", err)
	}
	if res != nil && res.UniqueSkippedAsDuplicate {
		logger.Debug("Chat notify job deduplicated", zap.String("login", login))
	}
	return nil
}

var _ Inserter = (*river.Client[pgx.Tx])(nil)

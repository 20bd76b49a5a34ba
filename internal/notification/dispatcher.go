package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/pkg/logger"
	"oauthbridge.io/bridge/internal/pkg/worker"
)

// Enqueuer hands a login identifier to a durable queue.
type Enqueuer interface {
	EnqueueChatNotify(ctx context.Context, loginIdentifier string) error
}

// Dispatcher delivers login notifications without blocking the caller.
// A nil *Dispatcher, or one without a notifier, drops every notification.
type Dispatcher struct {
	mode     string
	notifier Notifier
	pools    *worker.Pools
	queue    Enqueuer
}

// NewInlineDispatcher runs the notifier on the notify worker pool.
func NewInlineDispatcher(notifier Notifier, pools *worker.Pools) *Dispatcher {
	return &Dispatcher{mode: config.NotificationModeInline, notifier: notifier, pools: pools}
}

// NewQueueDispatcher enqueues a job per notification.
func NewQueueDispatcher(queue Enqueuer) *Dispatcher {
	return &Dispatcher{mode: config.NotificationModeQueue, queue: queue}
}

// Mode returns the delivery mode, or "" when the dispatcher is disabled.
func (d *Dispatcher) Mode() string {
	if !d.enabled() {
		return ""
	}
	return d.mode
}

func (d *Dispatcher) enabled() bool {
	if d == nil {
		return false
	}
	switch d.mode {
	case config.NotificationModeQueue:
		return d.queue != nil
	default:
		return d.notifier != nil && d.pools != nil
	}
}

// NotifyLogin schedules a chat notification for the login identifier.
// Errors are logged, never returned.
func (d *Dispatcher) NotifyLogin(ctx context.Context, loginIdentifier string) {
	if !d.enabled() || loginIdentifier == "" {
		return
	}

	if d.mode == config.NotificationModeQueue {
		if err := d.queue.EnqueueChatNotify(context.WithoutCancel(ctx), loginIdentifier); err != nil {
			logger.Warn("Failed to enqueue chat notification",
				zap.String("login", loginIdentifier),
				zap.Error(err),
			)
		}
		return
	}

	err := d.pools.SubmitDetached(worker.PoolNotify, func(ctx context.Context) {
		if err := Deliver(ctx, d.notifier, loginIdentifier); err != nil {
			logger.Warn("Chat notification failed",
				zap.String("login", loginIdentifier),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		logger.Warn("Failed to schedule chat notification",
			zap.String("login", loginIdentifier),
			zap.Error(err),
		)
	}
}

// Deliver runs a single notification and logs the outcome.
func Deliver(ctx context.Context, notifier Notifier, loginIdentifier string) error {
	res, err := notifier.Notify(ctx, loginIdentifier)
	if err != nil {
		return fmt.Errorf("notify %q: %w", loginIdentifier, err)
	}
	logger.Info("Chat notification delivered",
		zap.String("login", loginIdentifier),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
	)
	return nil
}

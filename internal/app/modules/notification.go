package modules

import (
	"context"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/api/handlers"
	"oauthbridge.io/bridge/internal/config"
	"oauthbridge.io/bridge/internal/jobs"
	"oauthbridge.io/bridge/internal/notification"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// NotificationModule wires the chat bridge notifier.
type NotificationModule struct {
	infra    *Infrastructure
	cfg      config.NotificationConfig
	notifier notification.Notifier
}

// NewNotificationModule creates the module. Without a chat base URL every
// notification is dropped.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	cfg := infra.Config.Notification
	m := &NotificationModule{infra: infra, cfg: cfg}
	if cfg.Enabled() {
		m.notifier = notification.NewChatNotifier(cfg.ChatBaseURL, cfg.ChatToken, cfg.ChatProject, cfg.Timeout)
	}
	return m
}

func (m *NotificationModule) Name() string { return "notification" }

// Queued reports whether notifications go through River.
func (m *NotificationModule) Queued() bool {
	return m.notifier != nil && m.cfg.Mode == config.NotificationModeQueue
}

func (m *NotificationModule) ContributeServerDeps(_ *handlers.ServerDeps) {}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || !m.Queued() {
		return
	}
	river.AddWorker(workers, jobs.NewChatNotifyWorker(m.notifier))
}

// Dispatcher returns the login notifier. Call after River is initialized.
func (m *NotificationModule) Dispatcher() *notification.Dispatcher {
	if m.notifier == nil {
		logger.Info("Chat notifications disabled")
		return nil
	}
	if m.Queued() && m.infra.DB != nil && m.infra.DB.RiverClient != nil {
		logger.Info("Chat notifications queued via River")
		return notification.NewQueueDispatcher(jobs.NewChatNotifyQueue(m.infra.DB.RiverClient))
	}
	logger.Info("Chat notifications delivered inline", zap.String("pool", "notify"))
	return notification.NewInlineDispatcher(m.notifier, m.infra.Pools)
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }

// Package audit implements the audit logging service.
//
// Audit logs are append-only records of logins and failed login actions.
// Hard-delete is NOT allowed.
//
// Import Path: oauthbridge.io/bridge/internal/governance/audit
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/internal/domain"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// Audit actions.
const (
	ActionUserLogin          = "user.login"
	ActionLoginActionFailure = "login_action.failed"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Logger writes audit records to the database.
type Logger struct {
	db Execer
}

// NewLogger creates a new audit Logger.
func NewLogger(db Execer) *Logger {
	return &Logger{db: db}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, action, resourceType, resourceID, actor string, details map[string]interface{}) error {
	var detailsJSON []byte
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		detailsJSON = b
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO audit_logs (id, action, resource_type, resource_id, actor, details)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		generateAuditID(), action, resourceType, resourceID, actor, nullableJSON(detailsJSON))
	if err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", action),
			zap.String("resource_type", resourceType),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// LogLogin records a completed login.
func (l *Logger) LogLogin(ctx context.Context, p domain.LoginPayload) error {
	return l.LogAction(ctx, ActionUserLogin, "user", p.UserID, p.UserID, map[string]interface{}{
		"provider":           p.ProviderName,
		"provider_client_id": p.ProviderClientID,
		"email":              p.Email,
	})
}

// LogActionFailure records a login action the engine skipped.
func (l *Logger) LogActionFailure(ctx context.Context, p domain.ActionFailurePayload) error {
	return l.LogAction(ctx, ActionLoginActionFailure, "login_action", p.ActionID, p.UserID, map[string]interface{}{
		"action_name": p.ActionName,
		"code":        p.Code,
		"error":       p.Error,
	})
}

// Subscribe registers the audit handlers on the event dispatcher.
func (l *Logger) Subscribe(d *domain.EventDispatcher) {
	d.Register(domain.EventUserLoggedIn, func(ctx context.Context, e *domain.DomainEvent) error {
		var p domain.LoginPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode login payload: %w", err)
		}
		return l.LogLogin(ctx, p)
	})
	d.Register(domain.EventLoginActionFailed, func(ctx context.Context, e *domain.DomainEvent) error {
		var p domain.ActionFailurePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode action failure payload: %w", err)
		}
		return l.LogActionFailure(ctx, p)
	})
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}

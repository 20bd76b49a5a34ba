package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"oauthbridge.io/bridge/internal/domain"
)

// LoginActionRepository stores login actions and their client attachments.
type LoginActionRepository struct {
	db DBTX
}

const actionSelect = `
	SELECT a.id, a.name, a.source, a.model_class, a.data, a.status, a.created_at,
	       COALESCE((SELECT array_agg(lac.provider_client_id ORDER BY lac.provider_client_id)
	                 FROM login_action_clients lac WHERE lac.action_id = a.id), '{}')
	FROM login_actions a`

func scanAction(row interface{ Scan(...any) error }) (*domain.LoginAction, error) {
	a := &domain.LoginAction{}
	var data []byte
	var status string
	if err := row.Scan(&a.ID, &a.Name, &a.Source, &a.ModelClass, &data, &status, &a.CreatedAt, &a.ProviderClientIDs); err != nil {
		return nil, err
	}
	a.Status = domain.ActionStatus(status)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.Data); err != nil {
			return nil, fmt.Errorf("decode data of action %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func (r *LoginActionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.LoginAction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list login actions")
	}
	defer rows.Close()

	var out []*domain.LoginAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, mapError(err, "scan login action")
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err(), "list login actions")
}

// ListForClients returns actions attached to any of ids, oldest first.
func (r *LoginActionRepository) ListForClients(ctx context.Context, ids []string) ([]*domain.LoginAction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, actionSelect+`
		WHERE EXISTS (SELECT 1 FROM login_action_clients lac
		              WHERE lac.action_id = a.id AND lac.provider_client_id = ANY($1))
		ORDER BY a.created_at, a.id`, ids)
}

// ListAll returns every login action, oldest first.
func (r *LoginActionRepository) ListAll(ctx context.Context) ([]*domain.LoginAction, error) {
	return r.list(ctx, actionSelect+` ORDER BY a.created_at, a.id`)
}

// Upsert writes the action and replaces its client attachments atomically.
func (r *LoginActionRepository) Upsert(ctx context.Context, a *domain.LoginAction) error {
	data, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("encode data of action %s: %w", a.ID, err)
	}
	if a.Data == nil {
		data = []byte("[]")
	}
	status := a.Status
	if status == "" {
		status = domain.ActionStatusDisabled
	}

	return inTx(ctx, r.db, func(tx DBTX) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO login_actions (id, name, source, model_class, data, status)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    source = EXCLUDED.source,
			    model_class = EXCLUDED.model_class,
			    data = EXCLUDED.data,
			    status = EXCLUDED.status`,
			a.ID, a.Name, a.Source, a.ModelClass, string(data), string(status)); err != nil {
			return mapError(err, "upsert login action "+a.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM login_action_clients WHERE action_id = $1`, a.ID); err != nil {
			return mapError(err, "clear login action clients")
		}
		ids := a.ProviderClientIDs
		if ids == nil {
			ids = []string{}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO login_action_clients (action_id, provider_client_id)
			SELECT $1, c FROM unnest($2::text[]) AS c
			ON CONFLICT DO NOTHING`, a.ID, ids); err != nil {
			return mapError(err, "attach login action clients")
		}
		return nil
	})
}

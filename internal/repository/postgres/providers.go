package postgres

import (
	"context"

	"oauthbridge.io/bridge/internal/domain"
)

// ProviderRepository stores providers and their clients' parent rows.
type ProviderRepository struct {
	db DBTX
}

const providerColumns = `id, name, redirect_uri, status, created_at`

func scanProvider(row interface{ Scan(...any) error }) (*domain.Provider, error) {
	p := &domain.Provider{}
	var status string
	if err := row.Scan(&p.ID, &p.Name, &p.RedirectURI, &status, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = domain.ProviderStatus(status)
	return p, nil
}

// GetByName returns the provider whose name matches case-insensitively.
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*domain.Provider, error) {
	p, err := scanProvider(r.db.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE lower(name) = lower($1)`, name))
	if err != nil {
		return nil, mapError(err, "get provider "+name)
	}
	return p, nil
}

// GetByID returns the provider with the given id.
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	p, err := scanProvider(r.db.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get provider "+id)
	}
	return p, nil
}

// Upsert inserts the provider or updates it by id.
func (r *ProviderRepository) Upsert(ctx context.Context, p *domain.Provider) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO providers (id, name, redirect_uri, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, redirect_uri = EXCLUDED.redirect_uri, status = EXCLUDED.status`,
		p.ID, p.Name, p.RedirectURI, string(p.Status))
	return mapError(err, "upsert provider "+p.Name)
}

// ClientRepository stores provider clients.
type ClientRepository struct {
	db DBTX
}

const clientColumns = `id, provider_id, client_id, client_secret, host, COALESCE(role_id, ''), created_at`

func scanClient(row interface{ Scan(...any) error }) (*domain.ProviderClient, error) {
	c := &domain.ProviderClient{}
	if err := row.Scan(&c.ID, &c.ProviderID, &c.ClientID, &c.ClientSecret, &c.Host, &c.RoleID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID returns the client with the given id.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*domain.ProviderClient, error) {
	c, err := scanClient(r.db.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM provider_clients WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get provider client "+id)
	}
	return c, nil
}

// ListByIDs returns the clients among ids that exist.
func (r *ClientRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.ProviderClient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+clientColumns+` FROM provider_clients WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, mapError(err, "list provider clients")
	}
	defer rows.Close()

	var out []*domain.ProviderClient
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, mapError(err, "scan provider client")
		}
		out = append(out, c)
	}
	return out, mapError(rows.Err(), "list provider clients")
}

// Upsert inserts the client or updates it by id. An empty RoleID clears the role.
func (r *ClientRepository) Upsert(ctx context.Context, c *domain.ProviderClient) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO provider_clients (id, provider_id, client_id, client_secret, host, role_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (id) DO UPDATE
		SET provider_id = EXCLUDED.provider_id,
		    client_id = EXCLUDED.client_id,
		    client_secret = EXCLUDED.client_secret,
		    host = EXCLUDED.host,
		    role_id = EXCLUDED.role_id`,
		c.ID, c.ProviderID, c.ClientID, c.ClientSecret, c.Host, c.RoleID)
	return mapError(err, "upsert provider client "+c.ID)
}

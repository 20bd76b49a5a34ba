package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"oauthbridge.io/bridge/internal/domain"
)

// UserRepository stores users.
type UserRepository struct {
	db DBTX
}

const userSelect = `
	SELECT u.id, u.name, u.email, u.password_hash, u.created_at, u.updated_at,
	       COALESCE((SELECT array_agg(ur.role_id ORDER BY ur.role_id)
	                 FROM user_roles ur WHERE ur.user_id = u.id), '{}')
	FROM users u`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	u := &domain.User{}
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &u.Roles); err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a user. A duplicate non-empty email is ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return mapError(err, "create user")
}

// GetByID returns the user with its roles.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get user "+id)
	}
	return u, nil
}

// GetByEmail returns the user with the given non-empty email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, userSelect+` WHERE u.email = $1 AND u.email <> ''`, email))
	if err != nil {
		return nil, mapError(err, "get user by email")
	}
	return u, nil
}

// Delete removes the user; links and role assignments cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete user "+id)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows, "delete user "+id)
	}
	return nil
}

// SocialAccountRepository stores provider links.
type SocialAccountRepository struct {
	db DBTX
}

// Create inserts a link. A duplicate (provider_id, oauth_uid) is ErrConflict.
func (r *SocialAccountRepository) Create(ctx context.Context, a *domain.SocialAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO social_accounts (id, user_id, provider_id, oauth_uid, token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, a.ProviderID, a.OAuthUID, a.Token, a.CreatedAt)
	return mapError(err, "create social account")
}

// GetByProviderUID returns the link for (providerID, oauthUID).
func (r *SocialAccountRepository) GetByProviderUID(ctx context.Context, providerID, oauthUID string) (*domain.SocialAccount, error) {
	a := &domain.SocialAccount{}
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, provider_id, oauth_uid, token, created_at
		FROM social_accounts WHERE provider_id = $1 AND oauth_uid = $2`,
		providerID, oauthUID,
	).Scan(&a.ID, &a.UserID, &a.ProviderID, &a.OAuthUID, &a.Token, &a.CreatedAt)
	if err != nil {
		return nil, mapError(err, "get social account")
	}
	return a, nil
}

// RoleRepository stores roles and assignments.
type RoleRepository struct {
	db DBTX
}

// Upsert inserts the role or renames it.
func (r *RoleRepository) Upsert(ctx context.Context, role *domain.Role) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO roles (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		role.ID, role.Name)
	return mapError(err, "upsert role "+role.ID)
}

// ReplaceUserRoles replaces the user's role set in one transaction. The user
// row is locked so concurrent replacements serialize.
func (r *RoleRepository) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	return inTx(ctx, r.db, func(tx DBTX) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked); err != nil {
			return mapError(err, "lock user "+userID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return mapError(err, "clear user roles")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, r FROM unnest($2::text[]) AS r
			ON CONFLICT DO NOTHING`, userID, roleIDs); err != nil {
			return mapError(err, "insert user roles")
		}
		return nil
	})
}

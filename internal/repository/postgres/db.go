// Package postgres implements the repositories and the entity sink on pgx.
//
// Unique violations surface as apperrors.ErrConflict and missing rows as
// apperrors.ErrNotFound, so callers never import pgx.
//
// Import Path: oauthbridge.io/bridge/internal/repository/postgres
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles every repository over one connection pool.
type Store struct {
	db DBTX

	Providers *ProviderRepository
	Clients   *ClientRepository
	Users     *UserRepository
	Accounts  *SocialAccountRepository
	Roles     *RoleRepository
	Actions   *LoginActionRepository
	Sink      *EntitySink
}

// NewStore creates the repositories.
func NewStore(db DBTX) *Store {
	return &Store{
		db:        db,
		Providers: &ProviderRepository{db: db},
		Clients:   &ClientRepository{db: db},
		Users:     &UserRepository{db: db},
		Accounts:  &SocialAccountRepository{db: db},
		Roles:     &RoleRepository{db: db},
		Actions:   &LoginActionRepository{db: db},
		Sink:      &EntitySink{db: db},
	}
}

// WithTx runs fn with a Store bound to a single transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

// inTx runs fn inside a transaction on db. On a pgx.Tx this is a savepoint.
func inTx(ctx context.Context, db DBTX, fn func(tx DBTX) error) error {
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// mapError translates pgx errors into the shared sentinels.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, apperrors.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, apperrors.ErrBadRequest, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

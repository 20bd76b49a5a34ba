// Package identity links external OAuth identities to internal users.
//
// Resolution is a three step find-or-create: existing social link, then an
// account with the same email, then a brand new user. Every path ends with a
// full replacement of the user's role set derived from the identity's
// oauth_roles claims.
//
// Import Path: oauthbridge.io/bridge/internal/identity
package identity

import (
	"context"

	"oauthbridge.io/bridge/internal/domain"
)

// UserRepository stores users. Lookups return errors wrapping
// apperrors.ErrNotFound; Create returns apperrors.ErrConflict on a duplicate
// email.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
}

// SocialAccountRepository stores provider links. Create returns
// apperrors.ErrConflict when (provider_id, oauth_uid) already exists.
type SocialAccountRepository interface {
	GetByProviderUID(ctx context.Context, providerID, oauthUID string) (*domain.SocialAccount, error)
	Create(ctx context.Context, acct *domain.SocialAccount) error
}

// ClientRepository reads provider clients.
type ClientRepository interface {
	// ListByIDs returns the clients that exist among ids, in any order.
	ListByIDs(ctx context.Context, ids []string) ([]*domain.ProviderClient, error)
}

// RoleRepository manages role assignments.
type RoleRepository interface {
	// ReplaceUserRoles atomically replaces the user's role set.
	ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) error
}

// Store groups the repositories the resolver needs.
type Store struct {
	Users    UserRepository
	Accounts SocialAccountRepository
	Clients  ClientRepository
	Roles    RoleRepository
}

package identity

import (
	"context"
	"net/http"

	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

// RoleSyncer derives a user's roles from the identity's claims.
type RoleSyncer struct {
	clients ClientRepository
	roles   RoleRepository
}

// NewRoleSyncer creates a RoleSyncer.
func NewRoleSyncer(clients ClientRepository, roles RoleRepository) *RoleSyncer {
	return &RoleSyncer{clients: clients, roles: roles}
}

// EntitledRoles maps the claims issued for client to role ids: claims for
// client.ClientID name provider clients by passport id, and each named
// client's role_id is granted. Order follows the claims, duplicates dropped.
func (s *RoleSyncer) EntitledRoles(ctx context.Context, client *domain.ProviderClient, ident *domain.ExternalIdentity) ([]string, error) {
	passportIDs := ident.EntitledClientIDs(client.ClientID)
	if len(passportIDs) == 0 {
		return []string{}, nil
	}

	entitled, err := s.clients.ListByIDs(ctx, passportIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.ProviderClient, len(entitled))
	for _, c := range entitled {
		byID[c.ID] = c
	}

	roles := make([]string, 0, len(passportIDs))
	seen := make(map[string]struct{})
	for _, id := range passportIDs {
		c, ok := byID[id]
		if !ok || c.RoleID == "" {
			continue
		}
		if _, dup := seen[c.RoleID]; dup {
			continue
		}
		seen[c.RoleID] = struct{}{}
		roles = append(roles, c.RoleID)
	}
	return roles, nil
}

// Sync replaces the user's roles with the entitled set. Claims that match
// nothing clear the user's roles.
func (s *RoleSyncer) Sync(ctx context.Context, user *domain.User, client *domain.ProviderClient, ident *domain.ExternalIdentity) error {
	roles, err := s.EntitledRoles(ctx, client, ident)
	if err != nil {
		return roleSyncError(user, err)
	}
	if err := s.roles.ReplaceUserRoles(ctx, user.ID, roles); err != nil {
		return roleSyncError(user, err)
	}
	user.Roles = roles
	return nil
}

func roleSyncError(user *domain.User, err error) error {
	return apperrors.Wrap(err, apperrors.CodeRoleSyncFailed, "role synchronization failed",
		http.StatusInternalServerError,
	).WithParams(map[string]interface{}{"user_id": user.ID})
}

package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// DefaultPasswordHashCost matches the cost used for local passwords.
const DefaultPasswordHashCost = 12

const (
	randomPasswordLength   = 24
	randomPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Resolver finds or creates the user behind an external identity.
type Resolver struct {
	users    UserRepository
	accounts SocialAccountRepository
	roles    *RoleSyncer
	hashCost int
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPasswordHashCost overrides the bcrypt cost for generated passwords.
func WithPasswordHashCost(cost int) Option {
	return func(r *Resolver) { r.hashCost = cost }
}

// NewResolver creates a Resolver.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		users:    store.Users,
		accounts: store.Accounts,
		roles:    NewRoleSyncer(store.Clients, store.Roles),
		hashCost: DefaultPasswordHashCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the user linked to ident at provider, linking or creating
// one when needed, and synchronizes the user's roles.
func (r *Resolver) Resolve(ctx context.Context, provider *domain.Provider, client *domain.ProviderClient, ident *domain.ExternalIdentity) (*domain.User, error) {
	if ident == nil || ident.Subject == "" {
		return nil, apperrors.BadRequest(apperrors.CodeResolveFailed, "external identity has no subject")
	}

	// 1. Existing link.
	acct, err := r.accounts.GetByProviderUID(ctx, provider.ID, ident.Subject)
	switch {
	case err == nil:
		return r.linkedUser(ctx, acct, client, ident)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, resolveError("lookup social account", err)
	}

	// 2. Existing account with the same email.
	if ident.Email != "" {
		user, err := r.users.GetByEmail(ctx, ident.Email)
		switch {
		case err == nil:
			if err := r.roles.Sync(ctx, user, client, ident); err != nil {
				return nil, err
			}
			return r.link(ctx, provider, client, ident, user, false)
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, resolveError("lookup user by email", err)
		}
	}

	// 3. New user.
	user, created, err := r.createUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	if !created || client.RoleID != "" {
		if err := r.roles.Sync(ctx, user, client, ident); err != nil {
			return nil, err
		}
	}
	return r.link(ctx, provider, client, ident, user, created)
}

func (r *Resolver) linkedUser(ctx context.Context, acct *domain.SocialAccount, client *domain.ProviderClient, ident *domain.ExternalIdentity) (*domain.User, error) {
	user, err := r.users.GetByID(ctx, acct.UserID)
	if err != nil {
		return nil, resolveError("load linked user", err)
	}
	if err := r.roles.Sync(ctx, user, client, ident); err != nil {
		return nil, err
	}
	return user, nil
}

// createUser inserts a user with an unusable random password. When a
// concurrent login created the same email first, that user is returned with
// created=false.
func (r *Resolver) createUser(ctx context.Context, ident *domain.ExternalIdentity) (*domain.User, bool, error) {
	hash, err := r.randomPasswordHash()
	if err != nil {
		return nil, false, resolveError("hash generated password", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, false, resolveError("generate user id", err)
	}

	name := ident.Name
	if name == "" {
		name = ident.Nickname
	}
	now := r.now().UTC()
	user := &domain.User{
		ID:           id.String(),
		Name:         name,
		Email:        ident.Email,
		PasswordHash: hash,
		Roles:        []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = r.users.Create(ctx, user)
	if err == nil {
		return user, true, nil
	}
	if errors.Is(err, apperrors.ErrConflict) && ident.Email != "" {
		existing, getErr := r.users.GetByEmail(ctx, ident.Email)
		if getErr == nil {
			return existing, false, nil
		}
	}
	return nil, false, resolveError("create user", err)
}

// link records the social account. Losing a race to a concurrent login is
// resolved by adopting the winner's link.
func (r *Resolver) link(ctx context.Context, provider *domain.Provider, client *domain.ProviderClient, ident *domain.ExternalIdentity, user *domain.User, created bool) (*domain.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, resolveError("generate social account id", err)
	}
	acct := &domain.SocialAccount{
		ID:         id.String(),
		UserID:     user.ID,
		ProviderID: provider.ID,
		OAuthUID:   ident.Subject,
		Token:      ident.AccessToken,
		CreatedAt:  r.now().UTC(),
	}

	err = r.accounts.Create(ctx, acct)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, resolveError("create social account", err)
	}

	winner, rerr := r.accounts.GetByProviderUID(ctx, provider.ID, ident.Subject)
	if rerr != nil {
		return nil, apperrors.Wrap(errors.Join(err, rerr), apperrors.CodeLinkConflict,
			"social account link conflict", http.StatusConflict,
		).WithParams(map[string]interface{}{"provider": provider.Name})
	}

	logger.Info("Social account link taken by concurrent login",
		zap.String("provider", provider.Name),
		zap.String("winner_user_id", winner.UserID),
		zap.String("loser_user_id", user.ID),
	)

	if created && winner.UserID != user.ID {
		if derr := r.users.Delete(ctx, user.ID); derr != nil {
			logger.Warn("Delete orphaned user failed",
				zap.String("user_id", user.ID),
				zap.Error(derr),
			)
		}
	}
	if winner.UserID == user.ID {
		return user, nil
	}
	return r.linkedUser(ctx, winner, client, ident)
}

func (r *Resolver) randomPasswordHash() (string, error) {
	buf := make([]byte, randomPasswordLength)
	max := big.NewInt(int64(len(randomPasswordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = randomPasswordAlphabet[n.Int64()]
	}
	hash, err := bcrypt.GenerateFromPassword(buf, r.hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func resolveError(op string, err error) error {
	return apperrors.Wrap(fmt.Errorf("%s: %w", op, err), apperrors.CodeResolveFailed,
		"identity resolution failed", http.StatusInternalServerError)
}

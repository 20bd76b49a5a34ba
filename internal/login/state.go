package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

// DefaultStateTTL bounds the redirect-to-callback round trip.
const DefaultStateTTL = 10 * time.Minute

const stateIssuer = "oauth-bridge"

// ErrStateReplayed is returned when a state token is presented twice.
var ErrStateReplayed = errors.New("state token already used")

// StateClaims is the payload carried through the OAuth state parameter.
type StateClaims struct {
	ProviderClientID string `json:"provider_client_id"`
	Mode             Mode   `json:"mode,omitempty"`
	jwt.RegisteredClaims
}

// StateCodec signs and verifies state tokens.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	nonces NonceStore
	now    func() time.Time
}

// NewStateCodec creates a codec. nonces may be nil, in which case a token
// stays valid until it expires.
func NewStateCodec(secret string, ttl time.Duration, nonces NonceStore) *StateCodec {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateCodec{
		secret: []byte(secret),
		ttl:    ttl,
		nonces: nonces,
		now:    time.Now,
	}
}

// Issue signs a state token for the provider client and mode.
func (c *StateCodec) Issue(providerClientID string, mode Mode) (string, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate state id: %w", err)
	}
	now := c.now()
	claims := StateClaims{
		ProviderClientID: providerClientID,
		Mode:             mode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and, when a nonce store is set, single use.
func (c *StateCodec) Verify(ctx context.Context, token string) (*StateClaims, error) {
	if token == "" {
		return nil, apperrors.ErrStateInvalidf(errors.New("state is empty"))
	}
	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, apperrors.ErrStateInvalidf(err)
	}
	if claims.ProviderClientID == "" {
		return nil, apperrors.ErrStateInvalidf(errors.New("state has no provider client"))
	}
	if !claims.Mode.Valid() {
		return nil, apperrors.ErrStateInvalidf(fmt.Errorf("unknown login mode %q", claims.Mode))
	}

	if c.nonces != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl <= 0 {
			ttl = time.Second
		}
		fresh, err := c.nonces.Consume(ctx, claims.ID, ttl)
		if err != nil {
			return nil, fmt.Errorf("consume state nonce: %w", err)
		}
		if !fresh {
			return nil, apperrors.ErrStateInvalidf(ErrStateReplayed)
		}
	}
	return claims, nil
}

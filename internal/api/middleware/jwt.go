package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

// SessionClaims are the claims of the session token issued after login.
type SessionClaims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// SessionConfig holds session signing configuration.
type SessionConfig struct {
	SigningKey []byte
	Issuer     string
	ExpiresIn  time.Duration
	// CookieName is read before the Authorization header.
	CookieName string
}

// IssueSession creates a signed session token for user.
func IssueSession(cfg SessionConfig, user *domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(cfg.ExpiresIn)

	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := SessionClaims{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ParseSession validates a session token.
func (cfg SessionConfig) ParseSession(tokenString string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("session has no user")
	}
	return claims, nil
}

// SessionAuth returns a Gin middleware that requires a valid session from
// the session cookie or a Bearer token.
func SessionAuth(cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := sessionToken(c, cfg.CookieName)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    apperrors.CodeUnauthorized,
				"message": "missing session",
			})
			return
		}

		claims, err := cfg.ParseSession(tokenString)
		if err != nil {
			msg := "invalid session"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "session expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    apperrors.CodeUnauthorized,
				"message": msg,
			})
			return
		}

		c.Set(string(ctxKeyUserID), claims.UserID)
		c.Set(string(ctxKeySession), claims)
		c.Request = c.Request.WithContext(
			SetUserContext(c.Request.Context(), claims.UserID, claims.Name, claims.Roles),
		)

		c.Next()
	}
}

// GetSession returns the claims stored by SessionAuth.
func GetSession(c *gin.Context) (*SessionClaims, bool) {
	v, ok := c.Get(string(ctxKeySession))
	if !ok {
		return nil, false
	}
	claims, ok := v.(*SessionClaims)
	return claims, ok
}

func sessionToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			return v
		}
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

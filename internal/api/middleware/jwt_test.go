package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oauthbridge.io/bridge/internal/domain"
)

func testSessionConfig() SessionConfig {
	return SessionConfig{
		SigningKey: []byte("test-signing-key-1234567890123456"),
		Issuer:     "oauth-bridge",
		ExpiresIn:  time.Hour,
		CookieName: "bridge_session",
	}
}

func TestIssueSession_RoundTrip(t *testing.T) {
	cfg := testSessionConfig()
	token, exp, err := IssueSession(cfg, &domain.User{ID: "u-1", Name: "Jane", Email: "jane@example.com", Roles: []string{"admin-role"}})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := cfg.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "Jane", claims.Name)
	assert.Equal(t, []string{"admin-role"}, claims.Roles)
}

func TestIssueSession_NilRoles(t *testing.T) {
	cfg := testSessionConfig()
	token, _, err := IssueSession(cfg, &domain.User{ID: "u-1"})
	require.NoError(t, err)
	claims, err := cfg.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, []string{}, claims.Roles)
}

func TestParseSession_Rejects(t *testing.T) {
	cfg := testSessionConfig()

	other := cfg
	other.Issuer = "someone-else"
	wrongIssuer, _, err := IssueSession(other, &domain.User{ID: "u-1"})
	require.NoError(t, err)

	expiredCfg := cfg
	expiredCfg.ExpiresIn = -time.Minute
	expired, _, err := IssueSession(expiredCfg, &domain.User{ID: "u-1"})
	require.NoError(t, err)

	noUser, _, err := IssueSession(cfg, &domain.User{})
	require.NoError(t, err)

	_, err = cfg.ParseSession(wrongIssuer)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	_, err = cfg.ParseSession(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	_, err = cfg.ParseSession(noUser)
	assert.Error(t, err)
	_, err = cfg.ParseSession("garbage")
	assert.Error(t, err)
}

func newSessionRouter(cfg SessionConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", SessionAuth(cfg), func(c *gin.Context) {
		claims, ok := GetSession(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id": GetUserID(c.Request.Context()),
			"name":    claims.Name,
			"roles":   GetRoles(c.Request.Context()),
		})
	})
	return r
}

func TestSessionAuth(t *testing.T) {
	cfg := testSessionConfig()
	token, _, err := IssueSession(cfg, &domain.User{ID: "u-1", Name: "Jane", Roles: []string{"r1"}})
	require.NoError(t, err)
	router := newSessionRouter(cfg)

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
	}{
		{name: "cookie", prepare: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "bridge_session", Value: token})
		}, wantStatus: http.StatusOK},
		{name: "bearer", prepare: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}, wantStatus: http.StatusOK},
		{name: "missing", prepare: func(r *http.Request) {}, wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", prepare: func(r *http.Request) {
			r.Header.Set("Authorization", "Basic "+token)
		}, wantStatus: http.StatusUnauthorized},
		{name: "bad token", prepare: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer nope")
		}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "u-1", body["user_id"])
			assert.Equal(t, "Jane", body["name"])
			assert.Equal(t, []any{"r1"}, body["roles"])
		})
	}
}

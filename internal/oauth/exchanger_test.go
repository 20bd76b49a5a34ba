package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

func init() {
	logger.UseNop()
}

type providerStub struct {
	tokenForm  url.Values
	authHeader string
	userBody   string
	userStatus int
}

func newProviderServer(t *testing.T, stub *providerStub) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		stub.tokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"custom":{"x":1}}`))
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		stub.authHeader = r.Header.Get("Authorization")
		if stub.userStatus != 0 {
			w.WriteHeader(stub.userStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(stub.userBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func clientConfig(host string) domain.ClientConfig {
	return domain.ClientConfig{
		ClientID:     "client-7",
		ClientSecret: "s3cret",
		RedirectURI:  "https://bridge.example.com/api/v1/oauth/passport/callback",
		Host:         host,
	}
}

func TestExchangeToken_Passport(t *testing.T) {
	stub := &providerStub{userBody: `{
		"id": 901,
		"name": "Jane Doe",
		"email": "jane@example.com",
		"oauth_roles": [{"oauth_client_id": "client-7", "passport_id": 3, "display_name": "Admin"}]
	}`}
	srv := newProviderServer(t, stub)

	ex := NewOAuth2Exchanger(NewRegistry())
	ident, err := ex.ExchangeToken(context.Background(), "Passport", clientConfig(srv.URL), "code-1")
	require.NoError(t, err)

	require.Equal(t, "901", ident.Subject)
	require.Equal(t, "jane@example.com", ident.Email)
	require.Equal(t, "Jane Doe", ident.Name)
	require.Equal(t, "at-1", ident.AccessToken)
	require.Equal(t, "rt-1", ident.RefreshToken)
	require.Greater(t, ident.ExpiresIn, int64(3500))
	require.Equal(t, json.Number("901"), ident.Raw["id"])

	require.Equal(t, []domain.RoleClaim{{OAuthClientID: "client-7", PassportID: "3", DisplayName: "Admin"}}, ident.RoleClaims())

	require.Equal(t, "Bearer", ident.TokenResponse["token_type"])
	require.Equal(t, json.Number("3600"), ident.TokenResponse["expires_in"])
	require.Contains(t, ident.TokenResponse, "custom")

	require.Equal(t, "code-1", stub.tokenForm.Get("code"))
	require.Equal(t, "client-7", stub.tokenForm.Get("client_id"))
	require.Equal(t, "s3cret", stub.tokenForm.Get("client_secret"))
	require.Equal(t, "Bearer at-1", stub.authHeader)
}

func TestExchangeToken_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		host     bool
		code     string
		stub     providerStub
	}{
		{name: "empty code", provider: "passport", host: true, code: ""},
		{name: "unknown driver", provider: "myspace", host: true, code: "c"},
		{name: "relative endpoint without host", provider: "passport", host: false, code: "c"},
		{name: "userinfo error status", provider: "passport", host: true, code: "c", stub: providerStub{userStatus: http.StatusUnauthorized}},
		{name: "userinfo without subject", provider: "passport", host: true, code: "c", stub: providerStub{userBody: `{"email":"a@b.c"}`}},
		{name: "userinfo not an object", provider: "passport", host: true, code: "c", stub: providerStub{userBody: `[1,2]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := tt.stub
			srv := newProviderServer(t, &stub)
			host := ""
			if tt.host {
				host = srv.URL
			}
			_, err := NewOAuth2Exchanger(NewRegistry()).ExchangeToken(context.Background(), tt.provider, clientConfig(host), tt.code)
			require.Error(t, err)
			require.True(t, apperrors.HasCode(err, apperrors.CodeAuthExchangeFailed), err.Error())
		})
	}
}

func TestExchangeToken_TokenEndpointRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := NewOAuth2Exchanger(NewRegistry()).ExchangeToken(context.Background(), "passport", clientConfig(srv.URL), "stale")
	require.True(t, apperrors.HasCode(err, apperrors.CodeAuthExchangeFailed))
}

func TestFetchIdentity(t *testing.T) {
	stub := &providerStub{userBody: `{"id": 42, "email": "ann@example.com", "name": "Ann"}`}
	srv := newProviderServer(t, stub)

	ident, err := NewOAuth2Exchanger(NewRegistry()).FetchIdentity(context.Background(), "passport", clientConfig(srv.URL), "mobile-at")
	require.NoError(t, err)
	require.Equal(t, "42", ident.Subject)
	require.Equal(t, "ann@example.com", ident.Email)
	require.Equal(t, "mobile-at", ident.AccessToken)
	require.Equal(t, "Bearer mobile-at", stub.authHeader)
	require.Nil(t, stub.tokenForm, "token endpoint must not be called")
}

func TestFetchIdentity_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		token    string
		stub     providerStub
	}{
		{name: "empty token", provider: "passport", token: ""},
		{name: "unknown driver", provider: "myspace", token: "t"},
		{name: "token rejected", provider: "passport", token: "t", stub: providerStub{userStatus: http.StatusUnauthorized}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := tt.stub
			srv := newProviderServer(t, &stub)
			_, err := NewOAuth2Exchanger(NewRegistry()).FetchIdentity(context.Background(), tt.provider, clientConfig(srv.URL), tt.token)
			require.True(t, apperrors.HasCode(err, apperrors.CodeAuthExchangeFailed))
		})
	}
}

func TestAuthCodeURL(t *testing.T) {
	ex := NewOAuth2Exchanger(NewRegistry())

	raw, err := ex.AuthCodeURL("passport", clientConfig("https://id.example.com/"), "state-1")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "id.example.com", u.Host)
	require.Equal(t, "/oauth/authorize", u.Path)
	require.Equal(t, "state-1", u.Query().Get("state"))
	require.Equal(t, "client-7", u.Query().Get("client_id"))
	require.Equal(t, "code", u.Query().Get("response_type"))

	raw, err = ex.AuthCodeURL("github", clientConfig(""), "s")
	require.NoError(t, err)
	require.Contains(t, raw, "https://github.com/login/oauth/authorize?")

	_, err = ex.AuthCodeURL("unknown", clientConfig(""), "s")
	require.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	got, err := endpoint("/oauth/token", "https://id.example.com/")
	require.NoError(t, err)
	require.Equal(t, "https://id.example.com/oauth/token", got)

	got, err = endpoint("https://abs.example.com/t", "https://ignored")
	require.NoError(t, err)
	require.Equal(t, "https://abs.example.com/t", got)

	_, err = endpoint("/oauth/token", "")
	require.Error(t, err)
}

func TestTokenResponse_FormEncoded(t *testing.T) {
	m := tokenResponse([]byte("access_token=abc&scope=user&token_type=bearer"), nil)
	require.Equal(t, map[string]any{"access_token": "abc", "scope": "user", "token_type": "bearer"}, m)
}

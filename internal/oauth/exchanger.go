package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// DefaultHTTPTimeout bounds every call to a provider.
const DefaultHTTPTimeout = 15 * time.Second

const maxBodySize = 1 << 20

// Exchanger turns an authorization code, or an access token the client
// already holds, into an external identity.
type Exchanger interface {
	AuthCodeURL(providerName string, cfg domain.ClientConfig, state string) (string, error)
	ExchangeToken(ctx context.Context, providerName string, cfg domain.ClientConfig, code string) (*domain.ExternalIdentity, error)
	FetchIdentity(ctx context.Context, providerName string, cfg domain.ClientConfig, accessToken string) (*domain.ExternalIdentity, error)
}

// OAuth2Exchanger implements Exchanger with golang.org/x/oauth2.
type OAuth2Exchanger struct {
	registry *Registry
	timeout  time.Duration
	base     http.RoundTripper
}

// Option configures an OAuth2Exchanger.
type Option func(*OAuth2Exchanger)

// WithTimeout overrides DefaultHTTPTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *OAuth2Exchanger) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTransport sets the transport used for provider calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *OAuth2Exchanger) {
		if rt != nil {
			e.base = rt
		}
	}
}

// NewOAuth2Exchanger creates an exchanger backed by registry.
func NewOAuth2Exchanger(registry *Registry, opts ...Option) *OAuth2Exchanger {
	e := &OAuth2Exchanger{
		registry: registry,
		timeout:  DefaultHTTPTimeout,
		base:     http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuthCodeURL returns the provider's authorization URL carrying state.
func (e *OAuth2Exchanger) AuthCodeURL(providerName string, cfg domain.ClientConfig, state string) (string, error) {
	_, conf, err := e.config(providerName, cfg)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// ExchangeToken redeems code at the token endpoint and loads the user profile.
func (e *OAuth2Exchanger) ExchangeToken(ctx context.Context, providerName string, cfg domain.ClientConfig, code string) (*domain.ExternalIdentity, error) {
	if code == "" {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, fmt.Errorf("authorization code is empty"))
	}
	driver, conf, err := e.config(providerName, cfg)
	if err != nil {
		return nil, err
	}

	capture := &captureTransport{base: e.base, target: conf.Endpoint.TokenURL}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: e.timeout, Transport: capture})

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, fmt.Errorf("token exchange: %w", err))
	}

	userInfoURL, err := endpoint(driver.UserInfoURL, cfg.Host)
	if err != nil {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}
	body, err := fetchUserInfo(ctx, conf.Client(ctx, token), userInfoURL)
	if err != nil {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}

	ident, err := identityFromProfile(body, driver.Profile)
	if err != nil {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}
	ident.AccessToken = token.AccessToken
	ident.RefreshToken = token.RefreshToken
	if !token.Expiry.IsZero() {
		ident.ExpiresIn = int64(time.Until(token.Expiry).Round(time.Second).Seconds())
	}
	ident.TokenResponse = tokenResponse(capture.body(), token)

	logger.Debug("OAuth exchange completed",
		zap.String("provider", driver.Name),
		zap.String("subject", ident.Subject),
	)
	return ident, nil
}

// FetchIdentity loads the user profile with an access token obtained by the
// client outside the redirect flow. No token endpoint is called.
func (e *OAuth2Exchanger) FetchIdentity(ctx context.Context, providerName string, cfg domain.ClientConfig, accessToken string) (*domain.ExternalIdentity, error) {
	if accessToken == "" {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, fmt.Errorf("access token is empty"))
	}
	driver, ok := e.registry.Resolve(providerName)
	if !ok {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, fmt.Errorf("no oauth driver registered for %q", providerName))
	}
	userInfoURL, err := endpoint(driver.UserInfoURL, cfg.Host)
	if err != nil {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}

	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: e.timeout, Transport: e.base})
	body, err := fetchUserInfo(ctx, oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), userInfoURL)
	if err != nil {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}

	ident, err := identityFromProfile(body, driver.Profile)
	if err != nil {
		return nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}
	ident.AccessToken = accessToken

	logger.Debug("OAuth profile loaded from access token",
		zap.String("provider", driver.Name),
		zap.String("subject", ident.Subject),
	)
	return ident, nil
}

func (e *OAuth2Exchanger) config(providerName string, cfg domain.ClientConfig) (Driver, *oauth2.Config, error) {
	driver, ok := e.registry.Resolve(providerName)
	if !ok {
		return Driver{}, nil, apperrors.ErrAuthExchangeFailedf(providerName, fmt.Errorf("no oauth driver registered for %q", providerName))
	}
	authURL, err := endpoint(driver.AuthURL, cfg.Host)
	if err != nil {
		return Driver{}, nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}
	tokenURL, err := endpoint(driver.TokenURL, cfg.Host)
	if err != nil {
		return Driver{}, nil, apperrors.ErrAuthExchangeFailedf(providerName, err)
	}
	return driver, &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       driver.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: driver.AuthStyle,
		},
	}, nil
}

func fetchUserInfo(ctx context.Context, client *http.Client, userInfoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status: %s", resp.Status)
	}
	return body, nil
}

// endpoint joins a "/"-prefixed path to host; absolute URLs pass through.
func endpoint(raw, host string) (string, error) {
	if !strings.HasPrefix(raw, "/") {
		return raw, nil
	}
	if host == "" {
		return "", fmt.Errorf("endpoint %s needs a client host", raw)
	}
	if _, err := url.Parse(host); err != nil {
		return "", fmt.Errorf("parse client host: %w", err)
	}
	return strings.TrimRight(host, "/") + raw, nil
}

func identityFromProfile(body []byte, p Profile) (*domain.ExternalIdentity, error) {
	raw, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	ident := &domain.ExternalIdentity{
		Subject:  firstString(body, p.Subject),
		Email:    firstString(body, p.Email),
		Name:     firstString(body, p.Name),
		Nickname: firstString(body, p.Nickname),
		Avatar:   firstString(body, p.Avatar),
		Raw:      raw,
	}
	if ident.Subject == "" {
		return nil, fmt.Errorf("userinfo has no subject")
	}
	return ident, nil
}

func firstString(body []byte, paths []string) string {
	for _, p := range paths {
		r := gjson.GetBytes(body, p)
		if !r.Exists() || r.Type == gjson.Null || r.IsObject() || r.IsArray() {
			continue
		}
		if s := r.String(); s != "" {
			return s
		}
	}
	return ""
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return out, nil
}

// tokenResponse prefers the captured token endpoint body; providers that
// answer form-encoded are converted field by field.
func tokenResponse(body []byte, token *oauth2.Token) map[string]any {
	if m, err := decodeObject(body); err == nil {
		return m
	}
	if vals, err := url.ParseQuery(string(body)); err == nil && vals.Get("access_token") != "" {
		m := make(map[string]any, len(vals))
		for k := range vals {
			m[k] = vals.Get(k)
		}
		return m
	}
	m := map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
	}
	if token.RefreshToken != "" {
		m["refresh_token"] = token.RefreshToken
	}
	return m
}

// captureTransport keeps a copy of the response body for requests to target.
type captureTransport struct {
	base   http.RoundTripper
	target string

	mu       sync.Mutex
	captured []byte
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || !sameEndpoint(req.URL, t.target) {
		return resp, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.captured = body
	t.mu.Unlock()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (t *captureTransport) body() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.captured
}

func sameEndpoint(u *url.URL, target string) bool {
	tu, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == tu.Scheme && u.Host == tu.Host && u.Path == tu.Path
}

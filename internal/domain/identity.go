package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExternalIdentity is the normalized result of an OAuth code exchange.
// It is never persisted.
type ExternalIdentity struct {
	Subject      string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Nickname     string `json:"nickname"`
	Avatar       string `json:"avatar"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	ExpiresIn    int64  `json:"-"`
	// Raw is the provider's user payload, nested maps and lists.
	Raw map[string]any `json:"-"`
	// TokenResponse is the token endpoint body, returned as-is in mobile mode.
	TokenResponse map[string]any `json:"-"`
}

// RoleClaim is one entry of the provider's oauth_roles claim.
type RoleClaim struct {
	OAuthClientID string
	PassportID    string
	DisplayName   string
}

// RoleClaimsKey is the raw payload key carrying role entitlements.
const RoleClaimsKey = "oauth_roles"

// RoleClaims parses raw.oauth_roles. Entries that are not objects are skipped.
// Numeric ids are normalized to their decimal string form.
func (e *ExternalIdentity) RoleClaims() []RoleClaim {
	if e == nil || e.Raw == nil {
		return nil
	}
	list, ok := e.Raw[RoleClaimsKey].([]any)
	if !ok {
		return nil
	}
	claims := make([]RoleClaim, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		claims = append(claims, RoleClaim{
			OAuthClientID: ScalarString(obj["oauth_client_id"]),
			PassportID:    ScalarString(obj["passport_id"]),
			DisplayName:   ScalarString(obj["display_name"]),
		})
	}
	return claims
}

// EntitledClientIDs returns the passport ids of claims issued for clientID,
// deduplicated in first-seen order.
func (e *ExternalIdentity) EntitledClientIDs(clientID string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, c := range e.RoleClaims() {
		if c.OAuthClientID != clientID || c.PassportID == "" {
			continue
		}
		if _, dup := seen[c.PassportID]; dup {
			continue
		}
		seen[c.PassportID] = struct{}{}
		ids = append(ids, c.PassportID)
	}
	return ids
}

// ScalarString renders a decoded JSON scalar as a string.
// Non-scalars and nil yield "".
func ScalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// LoginIdentifier derives the chat username from an email address.
func LoginIdentifier(email string) string {
	return strings.ReplaceAll(email, "@", "_")
}

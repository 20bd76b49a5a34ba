package errors

import "net/http"

// Error codes surfaced to operators and to the login redirect.
// Backend logs always carry the code; user-facing text is resolved by the UI.

// Orchestration codes.
const (
	CodeProviderNotFound       = "PROVIDER_NOT_FOUND"
	CodeProviderClientNotFound = "PROVIDER_CLIENT_NOT_FOUND"
	CodeAuthExchangeFailed     = "AUTH_EXCHANGE_FAILED"
	CodeStateInvalid           = "STATE_INVALID"
)

// Identity resolver codes.
const (
	CodeLinkConflict   = "LINK_CONFLICT"
	CodeRoleSyncFailed = "ROLE_SYNC_FAILED"
	CodeResolveFailed  = "RESOLVE_FAILED"
)

// Action engine codes.
const (
	CodePathResolution      = "PATH_RESOLUTION_FAILED"
	CodeUnknownEntityType   = "UNKNOWN_ENTITY_TYPE"
	CodeUnknownAttribute    = "UNKNOWN_TARGET_ATTRIBUTE"
	CodeActionIncomplete    = "ACTION_INCOMPLETE"
	CodeActionPersistFailed = "ACTION_PERSIST_FAILED"
)

// Generic codes.
const (
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInvalidRequest = "INVALID_REQUEST"
)

// ErrProviderNotFoundf creates a provider-not-found error.
func ErrProviderNotFoundf(name string) *AppError {
	return NotFound(CodeProviderNotFound, "provider not found").
		WithParams(map[string]interface{}{"provider": name})
}

// ErrProviderClientNotFoundf creates a provider-client-not-found error.
func ErrProviderClientNotFoundf(clientID string) *AppError {
	return NotFound(CodeProviderClientNotFound, "provider client not found").
		WithParams(map[string]interface{}{"provider_client_id": clientID})
}

// ErrAuthExchangeFailedf wraps an OAuth exchange failure.
func ErrAuthExchangeFailedf(provider string, err error) *AppError {
	return Wrap(err, CodeAuthExchangeFailed, "oauth exchange failed", http.StatusUnauthorized).
		WithParams(map[string]interface{}{"provider": provider})
}

// ErrStateInvalidf wraps a state token validation failure.
func ErrStateInvalidf(err error) *AppError {
	return Wrap(err, CodeStateInvalid, "oauth state is invalid or expired", http.StatusBadRequest)
}

package domain

import (
	"encoding/json"
	"time"
)

// EventType defines the type of domain event.
type EventType string

const (
	// EventUserLoggedIn fires once per completed (non-mobile) login.
	EventUserLoggedIn EventType = "USER_LOGGED_IN"
	// EventLoginActionFailed fires for every action the engine skipped.
	EventLoginActionFailed EventType = "LOGIN_ACTION_FAILED"
)

// DomainEvent represents an immutable domain event.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Payload       []byte    `json:"payload"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// LoginPayload is the payload for EventUserLoggedIn.
type LoginPayload struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	ProviderName     string `json:"provider_name"`
	ProviderClientID string `json:"provider_client_id"`
	LoginIdentifier  string `json:"login_identifier"`
}

// ToJSON converts payload to JSON bytes.
func (p LoginPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ActionFailurePayload is the payload for EventLoginActionFailed.
type ActionFailurePayload struct {
	UserID     string `json:"user_id"`
	ActionID   string `json:"action_id"`
	ActionName string `json:"action_name"`
	Code       string `json:"code"`
	Error      string `json:"error"`
}

// ToJSON converts payload to JSON bytes.
func (p ActionFailurePayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

package domain

import "time"

// ActionStatus enables or disables a LoginAction.
type ActionStatus string

const (
	ActionStatusEnabled  ActionStatus = "enabled"
	ActionStatusDisabled ActionStatus = "disabled"
)

// FieldMapping copies the value at Source (a dotted path) into Target.
type FieldMapping struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// LoginAction is a declarative side effect run after a successful login.
type LoginAction struct {
	ID string `json:"id"`
	// ProviderClientIDs are the clients this action is attached to.
	ProviderClientIDs []string `json:"provider_client_ids"`
	Name              string   `json:"name"`
	// Source is informational; paths are always resolved against the login context.
	Source     string         `json:"source"`
	ModelClass string         `json:"model_class"`
	Data       []FieldMapping `json:"data"`
	Status     ActionStatus   `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Runnable reports whether the action is enabled and fully configured.
func (a *LoginAction) Runnable() bool {
	return a.Status == ActionStatusEnabled &&
		a.Name != "" &&
		a.Source != "" &&
		a.ModelClass != "" &&
		len(a.Data) > 0
}

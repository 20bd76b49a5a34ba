package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Security: SecurityConfig{
			SessionSecret: strings.Repeat("s", 32),
			StateSecret:   strings.Repeat("t", 32),
		},
		Actions:      ActionsConfig{Scope: ActionScopeEntitled},
		Notification: NotificationConfig{Mode: NotificationModeInline},
	}
}

func TestEnsureSecrets_GeneratesMissingValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	if err := cfg.ensureSecrets(); err != nil {
		t.Fatalf("ensureSecrets() error = %v", err)
	}

	// 32 random bytes hex-encoded -> 64 chars.
	if len(cfg.Security.SessionSecret) != 64 {
		t.Fatalf("session secret length = %d, want 64", len(cfg.Security.SessionSecret))
	}
	if len(cfg.Security.StateSecret) != 64 {
		t.Fatalf("state secret length = %d, want 64", len(cfg.Security.StateSecret))
	}
	if cfg.Security.SessionSecret == cfg.Security.StateSecret {
		t.Fatal("session and state secrets must differ")
	}
}

func TestEnsureSecrets_PreservesProvidedValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Security: SecurityConfig{
			SessionSecret: "abcdefghijklmnopqrstuvwxyzABCDEF123456", // 38 chars
			StateSecret:   "keep-existing-state-secret-value-0000",
		},
	}

	if err := cfg.ensureSecrets(); err != nil {
		t.Fatalf("ensureSecrets() error = %v", err)
	}

	if got := cfg.Security.SessionSecret; got != "abcdefghijklmnopqrstuvwxyzABCDEF123456" {
		t.Fatalf("session secret changed unexpectedly: %q", got)
	}
	if got := cfg.Security.StateSecret; got != "keep-existing-state-secret-value-0000" {
		t.Fatalf("state secret changed unexpectedly: %q", got)
	}
}

func TestConfigValidate_RejectsShortSessionSecret(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Security.SessionSecret = "short-secret"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for short session secret, got nil")
	}
}

func TestConfigValidate_Entities(t *testing.T) {
	t.Parallel()

	score := EntityConfig{Name: "Score", Table: "scores", Columns: []string{"user_id", "points"}}

	tests := []struct {
		name     string
		entities []EntityConfig
		wantErr  bool
	}{
		{"valid", []EntityConfig{score}, false},
		{"valid with alias", []EntityConfig{{Name: "Score", Aliases: []string{`\App\Models\Score`}, Table: "scores", Columns: []string{"user_id"}}}, false},
		{"bad table", []EntityConfig{{Name: "X", Table: "scores; drop", Columns: []string{"user_id"}}}, true},
		{"bad column", []EntityConfig{{Name: "X", Table: "x", Columns: []string{"user-id"}}}, true},
		{"key not declared", []EntityConfig{{Name: "X", Table: "x", Columns: []string{"points"}}}, true},
		{"custom key", []EntityConfig{{Name: "X", Table: "x", Columns: []string{"email", "points"}, Key: "email"}}, false},
		{"duplicate name", []EntityConfig{score, {Name: "score", Table: "s2", Columns: []string{"user_id"}}}, true},
		{"empty name", []EntityConfig{{Table: "x", Columns: []string{"user_id"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Entities = tt.entities
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate_Drivers(t *testing.T) {
	t.Parallel()

	d := DriverConfig{Name: "corp", AuthURL: "/oauth/authorize", TokenURL: "/oauth/token", UserInfoURL: "/api/user"}

	cfg := validConfig()
	cfg.OAuth.Drivers = []DriverConfig{d}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.OAuth.Drivers = []DriverConfig{d, d}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for duplicate driver, got nil")
	}

	cfg.OAuth.Drivers = []DriverConfig{{Name: "broken"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for incomplete driver, got nil")
	}
}

func TestConfigValidate_NotificationMode(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Notification.Mode = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for unknown notification mode, got nil")
	}
}

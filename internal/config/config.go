// Package config provides configuration management for the OAuth bridge.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
//
// Import Path: oauthbridge.io/bridge/internal/config
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Session      SessionConfig      `mapstructure:"session"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Security     SecurityConfig     `mapstructure:"security"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	OAuth        OAuthConfig        `mapstructure:"oauth"`
	Actions      ActionsConfig      `mapstructure:"actions"`
	Entities     []EntityConfig     `mapstructure:"entities"`
	Notification NotificationConfig `mapstructure:"notification"`
	Redis        RedisConfig        `mapstructure:"redis"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// LoginURL receives ?error=CODE when a login cannot proceed.
	LoginURL string `mapstructure:"login_url"`
	// PostLoginRedirect is where the browser lands after a successful login.
	PostLoginRedirect string `mapstructure:"post_login_redirect"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One pool is shared by the repositories and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// SessionConfig contains the login session cookie settings.
type SessionConfig struct {
	Lifetime time.Duration `mapstructure:"lifetime"`
	Cookie   string        `mapstructure:"cookie"`
	Secure   bool          `mapstructure:"secure"`
	HttpOnly bool          `mapstructure:"http_only"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains security-related settings.
// Secrets are auto-generated on first boot if missing.
type SecurityConfig struct {
	// SessionSecret signs the session JWT.
	SessionSecret string `mapstructure:"session_secret"`
	// StateSecret signs the OAuth state token.
	StateSecret string `mapstructure:"state_secret"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	NotifyPoolSize  int `mapstructure:"notify_pool_size"`
}

// OAuthConfig contains settings for the authorization-code flow.
type OAuthConfig struct {
	StateTTL    time.Duration  `mapstructure:"state_ttl"`
	HTTPTimeout time.Duration  `mapstructure:"http_timeout"`
	Drivers     []DriverConfig `mapstructure:"drivers"`
}

// DriverConfig declares an additional OAuth provider driver.
// Endpoints starting with "/" are joined to the provider client's host.
type DriverConfig struct {
	Name        string   `mapstructure:"name"`
	AuthURL     string   `mapstructure:"auth_url"`
	TokenURL    string   `mapstructure:"token_url"`
	UserInfoURL string   `mapstructure:"userinfo_url"`
	Scopes      []string `mapstructure:"scopes"`
	// AuthStyle is "header" or "params"; empty lets x/oauth2 probe.
	AuthStyle string `mapstructure:"auth_style"`
}

// Action selection scopes.
const (
	ActionScopeEntitled = "entitled"
	ActionScopeDirect   = "direct"
	ActionScopeBoth     = "both"
)

// ActionsConfig controls which login actions run after a login.
type ActionsConfig struct {
	Scope string `mapstructure:"scope"`
}

// EntityConfig describes a target entity login actions may write to.
type EntityConfig struct {
	// Name is matched against LoginAction.model_class.
	Name    string   `mapstructure:"name"`
	Aliases []string `mapstructure:"aliases"`
	Table   string   `mapstructure:"table"`
	Columns []string `mapstructure:"columns"`
	// Key selects upsert over insert when present in the attribute map.
	Key string `mapstructure:"key"`
	// UniqueKey declares a unique index on Key in the target table.
	UniqueKey bool `mapstructure:"unique_key"`
}

// DefaultEntityKey is the upsert key used when an entity sets none.
const DefaultEntityKey = "user_id"

// KeyColumn returns the configured key or DefaultEntityKey.
func (e EntityConfig) KeyColumn() string {
	if e.Key == "" {
		return DefaultEntityKey
	}
	return e.Key
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is safe to use as a SQL identifier.
func IsIdentifier(s string) bool {
	return len(s) <= 63 && identPattern.MatchString(s)
}

// Validate checks table, column and key names.
func (e EntityConfig) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	if !IsIdentifier(e.Table) {
		return fmt.Errorf("entity %q: invalid table name %q", e.Name, e.Table)
	}
	if len(e.Columns) == 0 {
		return fmt.Errorf("entity %q: columns must not be empty", e.Name)
	}
	seen := make(map[string]struct{}, len(e.Columns))
	for _, col := range e.Columns {
		if !IsIdentifier(col) {
			return fmt.Errorf("entity %q: invalid column name %q", e.Name, col)
		}
		if _, dup := seen[col]; dup {
			return fmt.Errorf("entity %q: duplicate column %q", e.Name, col)
		}
		seen[col] = struct{}{}
	}
	if _, ok := seen[e.KeyColumn()]; !ok {
		return fmt.Errorf("entity %q: key column %q is not declared", e.Name, e.KeyColumn())
	}
	return nil
}

// Notification delivery modes.
const (
	NotificationModeInline = "inline"
	NotificationModeQueue  = "queue"
)

// NotificationConfig contains chat bridge settings.
// An empty ChatBaseURL disables notifications.
type NotificationConfig struct {
	Mode        string        `mapstructure:"mode"`
	ChatBaseURL string        `mapstructure:"chat_base_url"`
	ChatToken   string        `mapstructure:"chat_token"`
	ChatProject string        `mapstructure:"chat_project"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a chat bridge is configured.
func (n NotificationConfig) Enabled() bool {
	return n.ChatBaseURL != ""
}

// RedisConfig contains optional Redis settings.
// When Addr is empty, state tokens are not checked for reuse.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, SERVER_PORT, etc.).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/oauth-bridge")

	// Maps nested config: database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Security.SessionSecret == "" {
		return fmt.Errorf("security.session_secret must not be empty")
	}
	if len(c.Security.SessionSecret) < 32 {
		return fmt.Errorf("security.session_secret must be at least 32 characters")
	}
	if len(c.Security.StateSecret) < 32 {
		return fmt.Errorf("security.state_secret must be at least 32 characters")
	}

	switch c.Actions.Scope {
	case ActionScopeEntitled, ActionScopeDirect, ActionScopeBoth:
	default:
		return fmt.Errorf("actions.scope %q must be one of entitled, direct, both", c.Actions.Scope)
	}

	switch c.Notification.Mode {
	case NotificationModeInline, NotificationModeQueue:
	default:
		return fmt.Errorf("notification.mode %q must be inline or queue", c.Notification.Mode)
	}

	names := make(map[string]string)
	for _, e := range c.Entities {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entities: %w", err)
		}
		for _, n := range append([]string{e.Name}, e.Aliases...) {
			k := strings.ToLower(strings.TrimPrefix(n, `\`))
			if owner, dup := names[k]; dup {
				return fmt.Errorf("entities: name %q of %q already used by %q", n, e.Name, owner)
			}
			names[k] = e.Name
		}
	}

	drivers := make(map[string]struct{})
	for _, d := range c.OAuth.Drivers {
		if d.Name == "" || d.AuthURL == "" || d.TokenURL == "" || d.UserInfoURL == "" {
			return fmt.Errorf("oauth.drivers: name, auth_url, token_url and userinfo_url are required")
		}
		k := strings.ToLower(d.Name)
		if _, dup := drivers[k]; dup {
			return fmt.Errorf("oauth.drivers: duplicate driver %q", d.Name)
		}
		drivers[k] = struct{}{}
	}
	return nil
}

// ensureSecrets auto-generates missing secrets.
func (c *Config) ensureSecrets() error {
	if c.Security.SessionSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate session secret: %w", err)
		}
		c.Security.SessionSecret = secret
		logBootstrapWarn(
			"auto-generated session_secret; set SECURITY_SESSION_SECRET env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	if c.Security.StateSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate state secret: %w", err)
		}
		c.Security.StateSecret = secret
		logBootstrapWarn(
			"auto-generated state_secret; set SECURITY_STATE_SECRET env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.login_url", "/login")
	v.SetDefault("server.post_login_redirect", "/")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database. Every key needs a default so AutomaticEnv can map it.
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bridge")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "bridge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Session
	v.SetDefault("session.lifetime", "24h")
	v.SetDefault("session.cookie", "bridge_session")
	v.SetDefault("session.secure", true)
	v.SetDefault("session.http_only", true)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.notify_pool_size", 20)

	// Security. Empty secrets are generated by ensureSecrets.
	v.SetDefault("security.session_secret", "")
	v.SetDefault("security.state_secret", "")

	// OAuth
	v.SetDefault("oauth.state_ttl", "10m")
	v.SetDefault("oauth.http_timeout", "15s")

	// Actions
	v.SetDefault("actions.scope", ActionScopeEntitled)

	// Notification
	v.SetDefault("notification.mode", NotificationModeInline)
	v.SetDefault("notification.chat_base_url", "")
	v.SetDefault("notification.chat_token", "")
	v.SetDefault("notification.chat_project", "")
	v.SetDefault("notification.timeout", "10s")

	// Redis
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

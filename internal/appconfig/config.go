package appconfig

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Tokens   TokensConfig   `mapstructure:"tokens"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	// DevMode relaxes requirements for local runs: an empty signing key is
	// replaced with a random one and an empty Redis address starts an
	// in-process server.
	DevMode bool `mapstructure:"dev_mode"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr" validate:"required,hostname_port"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// RedisConfig locates the Redis server. An empty Addr is only valid in dev mode.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0,max=15"`
	Prefix   string `mapstructure:"prefix" validate:"required"`
}

// ProfilesConfig selects the profile store.
type ProfilesConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=redis sqlite"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Backend sqlite"`
}

// TokensConfig controls access token signing.
type TokensConfig struct {
	SigningKey string        `mapstructure:"signing_key" validate:"required,min=32"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" validate:"min=1m,max=24h"`
	Issuer     string        `mapstructure:"issuer"`
}

// SessionsConfig controls server sessions and sign-up policy.
type SessionsConfig struct {
	TTL                 time.Duration `mapstructure:"ttl" validate:"min=1h"`
	RequireConfirmation bool          `mapstructure:"require_confirmation"`
	MaxLoginAttempts    int           `mapstructure:"max_login_attempts" validate:"min=1"`
	LoginWindow         time.Duration `mapstructure:"login_window" validate:"min=1m"`
	// TokenFile persists the server's own signed-in tokens across restarts.
	// Empty keeps them in memory.
	TokenFile string `mapstructure:"token_file"`
}

// OAuthConfig holds redirect login settings.
type OAuthConfig struct {
	RedirectURL string       `mapstructure:"redirect_url" validate:"required,url"`
	Google      GoogleConfig `mapstructure:"google"`
}

// GoogleConfig enables Google login when ClientID is set.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret" validate:"required_with=ClientID"`
}

// Enabled reports whether Google login is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

// AuditConfig controls the audit sink.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" validate:"min=1"`
}

// MetricsConfig controls the in-process counters and their exposition.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Histograms bool   `mapstructure:"histograms"`
	Path       string `mapstructure:"path" validate:"startswith=/"`
}

// SetDevDefaults fills values dev mode may leave empty.
func (c *Config) SetDevDefaults() error {
	if !c.DevMode || c.Tokens.SigningKey != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate dev signing key: %w", err)
	}
	c.Tokens.SigningKey = hex.EncodeToString(buf)
	return nil
}

// Validate applies the struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Redis.Addr == "" && !c.DevMode {
		return fmt.Errorf("redis.addr is required unless dev_mode is set")
	}
	return nil
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

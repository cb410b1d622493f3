package mcloones

import (
	"errors"
	"net/url"
	"strings"
)

// Config controls the session manager. Obtain a baseline from [DefaultConfig] and
// override fields before passing it to [Builder.WithConfig].
type Config struct {
	SignUp        SignUpConfig
	OAuth         OAuthConfig
	Notifications NotificationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// SignUpConfig controls self-registration.
type SignUpConfig struct {
	// AllowedRoles lists the roles a user may pick at sign-up. Managers are
	// provisioned by staff, so the default omits RoleManager.
	AllowedRoles []Role
}

// OAuthConfig controls redirect-based login.
type OAuthConfig struct {
	// Providers lists provider names accepted by LoginWithOAuthProvider.
	Providers []string
	// RedirectURL is where the provider sends the browser after consent.
	RedirectURL string
}

// NotificationConfig sizes per-subscriber session event buffers.
type NotificationConfig struct {
	DefaultBuffer int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the app ships with.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		SignUp: SignUpConfig{
			AllowedRoles: []Role{RoleCustomer, RoleEmployee},
		},
		OAuth: OAuthConfig{
			Providers:   []string{"google"},
			RedirectURL: "mcloones://auth/callback",
		},
		Notifications: NotificationConfig{
			DefaultBuffer: 8,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.SignUp.AllowedRoles = append([]Role(nil), cfg.SignUp.AllowedRoles...)
	out.OAuth.Providers = append([]string(nil), cfg.OAuth.Providers...)
	return out
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	for _, r := range c.SignUp.AllowedRoles {
		if !r.Valid() {
			return errors.New("SignUp.AllowedRoles contains an invalid role")
		}
	}

	for _, p := range c.OAuth.Providers {
		if strings.TrimSpace(p) == "" {
			return errors.New("OAuth.Providers contains an empty name")
		}
	}
	if len(c.OAuth.Providers) > 0 {
		if c.OAuth.RedirectURL == "" {
			return errors.New("OAuth.RedirectURL is required when OAuth providers are configured")
		}
		u, err := url.Parse(c.OAuth.RedirectURL)
		if err != nil || u.Scheme == "" {
			return errors.New("OAuth.RedirectURL must be an absolute URL")
		}
	}

	if c.Notifications.DefaultBuffer <= 0 {
		return errors.New("Notifications.DefaultBuffer must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics.EnableLatencyHistograms requires Metrics.Enabled")
	}

	return nil
}

func (c *Config) signUpAllowed(r Role) bool {
	for _, allowed := range c.SignUp.AllowedRoles {
		if allowed == r {
			return true
		}
	}
	return false
}

func (c *Config) oauthAllowed(provider string) bool {
	for _, p := range c.OAuth.Providers {
		if strings.EqualFold(p, provider) {
			return true
		}
	}
	return false
}

package appconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MCLOONES"

var defaults = map[string]any{
	"server.http_addr":              "127.0.0.1:8080",
	"server.log_level":              "info",
	"server.shutdown_timeout":       "10s",
	"redis.addr":                    "",
	"redis.password":                "",
	"redis.db":                      0,
	"redis.prefix":                  "mc",
	"profiles.backend":              "redis",
	"profiles.dsn":                  "",
	"tokens.signing_key":            "",
	"tokens.access_ttl":             "15m",
	"tokens.issuer":                 "mcloones",
	"sessions.ttl":                  "720h",
	"sessions.require_confirmation": false,
	"sessions.max_login_attempts":   5,
	"sessions.login_window":         "15m",
	"sessions.token_file":           "",
	"oauth.redirect_url":            "http://127.0.0.1:8080/auth/oauth/callback",
	"oauth.google.client_id":        "",
	"oauth.google.client_secret":    "",
	"audit.enabled":                 false,
	"audit.buffer_size":             256,
	"metrics.enabled":               true,
	"metrics.histograms":            true,
	"metrics.path":                  "/metrics",
	"dev_mode":                      false,
}

// New returns a viper instance reading configFile (optional) and the
// environment.
func New(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("mcloones")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mcloones")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Load reads v into a Config, applies dev defaults and validates it.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.SetDevDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

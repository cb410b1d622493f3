package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/internal/rate"
	"github.com/mcloones/mcloones/jwt"
	"github.com/mcloones/mcloones/password"
)

// Config controls account and session policy.
type Config struct {
	KeyPrefix           string
	SessionTTL          time.Duration
	RequireConfirmation bool
	ConfirmationTTL     time.Duration
	OAuthStateTTL       time.Duration
	DefaultOAuthRole    mcloones.Role
	RevocationChannel   string
	Throttle            rate.Config
	OAuth               map[string]OAuthProvider
}

// OAuthProvider is one redirect login provider. Config.RedirectURL is filled per
// request from the URL the caller passes to SignInWithOAuth.
type OAuthProvider struct {
	Config      oauth2.Config
	UserInfoURL string
}

// DefaultConfig returns thirty-day sessions, day-long confirmation links and
// customer accounts for first-time OAuth sign-ins.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:         "mc",
		SessionTTL:        30 * 24 * time.Hour,
		ConfirmationTTL:   24 * time.Hour,
		OAuthStateTTL:     10 * time.Minute,
		DefaultOAuthRole:  mcloones.RoleCustomer,
		RevocationChannel: "mc:auth:revocations",
		Throttle:          rate.DefaultConfig(),
	}
}

// Validate checks the config for values the provider cannot run with.
func (c Config) Validate() error {
	switch {
	case c.KeyPrefix == "":
		return errors.New("identity: key prefix is required")
	case c.SessionTTL <= 0:
		return errors.New("identity: session TTL must be > 0")
	case c.RequireConfirmation && c.ConfirmationTTL <= 0:
		return errors.New("identity: confirmation TTL must be > 0")
	case c.OAuthStateTTL <= 0:
		return errors.New("identity: oauth state TTL must be > 0")
	case !c.DefaultOAuthRole.Valid():
		return errors.New("identity: default oauth role is invalid")
	case c.RevocationChannel == "":
		return errors.New("identity: revocation channel is required")
	}
	for name, p := range c.OAuth {
		if p.Config.ClientID == "" || p.Config.Endpoint.AuthURL == "" || p.Config.Endpoint.TokenURL == "" {
			return errors.New("identity: oauth provider " + name + " is incomplete")
		}
		if p.UserInfoURL == "" {
			return errors.New("identity: oauth provider " + name + " needs a userinfo URL")
		}
	}
	return nil
}

// Provisioner creates the profile row of a new account and removes it again
// when the sign-up cannot complete.
type Provisioner interface {
	CreateProfile(ctx context.Context, p mcloones.Profile) error
	DeleteProfile(ctx context.Context, id string) error
}

// ConfirmationSender delivers a confirmation token to a new account's inbox.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// ConfirmationSenderFunc adapts a function to [ConfirmationSender].
type ConfirmationSenderFunc func(ctx context.Context, email, token string) error

// SendConfirmation calls f.
func (f ConfirmationSenderFunc) SendConfirmation(ctx context.Context, email, token string) error {
	return f(ctx, email, token)
}

// Deps groups the collaborators of a [RedisProvider].
type Deps struct {
	Redis         redis.UniversalClient
	Tokens        *jwt.Manager
	Hasher        *password.Argon2
	Provisioner   Provisioner
	Storage       TokenStorage
	Confirmations ConfirmationSender
	Logger        *slog.Logger
}

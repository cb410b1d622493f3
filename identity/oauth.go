package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/internal"
	"github.com/mcloones/mcloones/session"
)

const maxUserInfoBytes = 1 << 20

type oauthUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (p *RedisProvider) oauthKey(state string) string {
	return p.cfg.KeyPrefix + ":oauth:" + internal.HashToken(state)
}

func (p *RedisProvider) oauthConfig(name, redirectURL string) (*oauth2.Config, OAuthProvider, bool) {
	prov, ok := p.cfg.OAuth[name]
	if !ok {
		return nil, OAuthProvider{}, false
	}
	cfg := prov.Config
	cfg.Scopes = append([]string(nil), prov.Config.Scopes...)
	cfg.RedirectURL = redirectURL
	return &cfg, prov, true
}

// SignInWithOAuth records a one-shot state with a PKCE verifier and returns the
// provider's consent URL. Nothing changes until CompleteOAuth runs.
func (p *RedisProvider) SignInWithOAuth(ctx context.Context, provider, redirectURL string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	cfg, _, ok := p.oauthConfig(provider, redirectURL)
	if !ok {
		return "", mcloones.ErrOAuthProviderUnsupported
	}

	state, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	key := p.oauthKey(state)
	_, err = p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "provider", provider, "verifier", verifier, "redirect", redirectURL)
		pipe.Expire(ctx, key, p.cfg.OAuthStateTTL)
		return nil
	})
	if err != nil {
		return "", unavailable(err)
	}

	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteOAuth consumes state, exchanges code, and signs in the account owning
// the provider's verified email. A first-time email gets a new account with
// the configured default role. Emits SIGNED_IN.
func (p *RedisProvider) CompleteOAuth(ctx context.Context, state, code string) (*mcloones.ProviderSession, error) {
	if state == "" || code == "" {
		return nil, ErrInvalidOAuthState
	}

	key := p.oauthKey(state)
	var pending *redis.MapStringStringCmd
	_, err := p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	fields := pending.Val()
	if len(fields) == 0 {
		return nil, ErrInvalidOAuthState
	}

	cfg, prov, ok := p.oauthConfig(fields["provider"], fields["redirect"])
	if !ok {
		return nil, mcloones.ErrOAuthProviderUnsupported
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(fields["verifier"]))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: code exchange rejected: %v", mcloones.ErrInvalidCredentials, err)
		}
		return nil, unavailable(err)
	}

	info, err := fetchUserInfo(ctx, cfg.Client(ctx, tok), prov.UserInfoURL)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(info.Email)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: provider returned no usable email", mcloones.ErrProviderContract)
	}
	if !info.EmailVerified {
		return nil, mcloones.ErrVerificationRequired
	}

	u, err := p.oauthUser(ctx, email, info.Name)
	if err != nil {
		return nil, err
	}

	ps, err := p.startSession(ctx, u, session.MethodOAuth)
	if err != nil {
		return nil, err
	}
	p.logger.Info("oauth sign-in", "user_id", u.ID, "provider", fields["provider"])
	p.emit(mcloones.AuthEvent{Type: mcloones.AuthSignedIn, Session: ps})
	return ps, nil
}

func (p *RedisProvider) oauthUser(ctx context.Context, email, name string) (userRecord, error) {
	u, err := p.userByEmail(ctx, email)
	if err == nil {
		if !u.Confirmed {
			// The password was never proven to belong to the mailbox owner.
			if err := p.claimUnconfirmed(ctx, u.ID); err != nil {
				return userRecord{}, err
			}
			p.logger.Warn("unconfirmed password dropped on oauth link", "user_id", u.ID)
			u.Confirmed = true
			u.Hash = ""
		}
		return u, nil
	}
	if !errors.Is(err, errUserNotFound) {
		return userRecord{}, err
	}

	u = userRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      p.cfg.DefaultOAuthRole,
		FullName:  strings.TrimSpace(name),
		Confirmed: true,
		CreatedAt: nowUnix(),
	}
	if err := p.createUser(ctx, u); err != nil {
		if errors.Is(err, mcloones.ErrAccountExists) {
			// Lost a race with a concurrent first sign-in.
			return p.userByEmail(ctx, email)
		}
		return userRecord{}, err
	}
	if err := p.provision(ctx, u); err != nil {
		p.deleteUser(ctx, u)
		return userRecord{}, err
	}
	return u, nil
}

func fetchUserInfo(ctx context.Context, client *http.Client, url string) (oauthUserInfo, error) {
	var info oauthUserInfo

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return info, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return info, unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("%w: userinfo status %d", mcloones.ErrProviderUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return info, fmt.Errorf("%w: decoding userinfo: %v", mcloones.ErrProviderContract, err)
	}
	return info, nil
}

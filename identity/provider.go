package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/internal"
	"github.com/mcloones/mcloones/internal/rate"
	"github.com/mcloones/mcloones/jwt"
	"github.com/mcloones/mcloones/password"
	"github.com/mcloones/mcloones/session"
)

var (
	// ErrInvalidConfirmation is returned by ConfirmEmail for unknown or used tokens.
	ErrInvalidConfirmation = errors.New("invalid confirmation token")
	// ErrInvalidOAuthState is returned by CompleteOAuth for unknown or used state.
	ErrInvalidOAuthState = errors.New("invalid oauth state")
	// ErrNoSession is returned by RefreshSession when nothing is signed in.
	ErrNoSession = errors.New("no active session")
)

var _ mcloones.IdentityProvider = (*RedisProvider)(nil)

// RedisProvider is a Redis-backed [mcloones.IdentityProvider]. It holds at most
// one signed-in session per instance, like a client SDK does.
type RedisProvider struct {
	cfg         Config
	redis       redis.UniversalClient
	sessions    *session.Store
	tokens      *jwt.Manager
	hasher      *password.Argon2
	limiter     *rate.Limiter
	provisioner Provisioner
	storage     TokenStorage
	confirm     ConfirmationSender
	logger      *slog.Logger
	validate    *validator.Validate

	mu       sync.Mutex
	current  *StoredTokens
	loaded   bool
	handlers map[int]func(mcloones.AuthEvent)
	nextID   int

	// refreshMu serializes rotations so two callers never present the same
	// refresh secret.
	refreshMu sync.Mutex
}

// New validates cfg and deps and returns a provider.
func New(cfg Config, deps Deps) (*RedisProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Redis == nil:
		return nil, errors.New("identity: redis client is required")
	case deps.Tokens == nil:
		return nil, errors.New("identity: token manager is required")
	case deps.Hasher == nil:
		return nil, errors.New("identity: password hasher is required")
	case deps.Provisioner == nil:
		return nil, errors.New("identity: profile provisioner is required")
	case cfg.RequireConfirmation && deps.Confirmations == nil:
		return nil, errors.New("identity: confirmation sender is required")
	}
	if deps.Storage == nil {
		deps.Storage = NewMemoryStorage()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	return &RedisProvider{
		cfg:         cfg,
		redis:       deps.Redis,
		sessions:    session.NewStore(deps.Redis, cfg.KeyPrefix+":sess"),
		tokens:      deps.Tokens,
		hasher:      deps.Hasher,
		limiter:     rate.New(deps.Redis, cfg.Throttle),
		provisioner: deps.Provisioner,
		storage:     deps.Storage,
		confirm:     deps.Confirmations,
		logger:      deps.Logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		handlers:    make(map[int]func(mcloones.AuthEvent)),
	}, nil
}

type handlerSub struct {
	p    *RedisProvider
	id   int
	once sync.Once
}

func (s *handlerSub) Cancel() {
	s.once.Do(func() {
		s.p.mu.Lock()
		delete(s.p.handlers, s.id)
		s.p.mu.Unlock()
	})
}

// OnAuthStateChange registers handler for every later state change. Handlers
// run on the goroutine that caused the change.
func (p *RedisProvider) OnAuthStateChange(handler func(mcloones.AuthEvent)) mcloones.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.handlers[p.nextID] = handler
	return &handlerSub{p: p, id: p.nextID}
}

func (p *RedisProvider) emit(ev mcloones.AuthEvent) {
	p.mu.Lock()
	hs := make([]func(mcloones.AuthEvent), 0, len(p.handlers))
	for _, h := range p.handlers {
		hs = append(hs, h)
	}
	p.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// SignUp creates an account and its profile row. With RequireConfirmation the
// result carries no session and a confirmation token is sent instead.
func (p *RedisProvider) SignUp(ctx context.Context, email, secret string, meta mcloones.SignUpMetadata) (*mcloones.SignUpResult, error) {
	email = normalizeEmail(email)
	if err := p.validate.Var(email, "required,email,max=254"); err != nil {
		return nil, fmt.Errorf("%w: %v", mcloones.ErrInvalidSignUp, err)
	}
	if !meta.Role.Valid() {
		return nil, fmt.Errorf("%w: role is required", mcloones.ErrInvalidSignUp)
	}

	hash, err := p.hasher.Hash(secret)
	if err != nil {
		if errors.Is(err, password.ErrSecretLength) {
			return nil, fmt.Errorf("%w: %v", mcloones.ErrInvalidSignUp, err)
		}
		return nil, err
	}

	u := userRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Hash:      hash,
		Role:      meta.Role,
		FullName:  strings.TrimSpace(meta.FullName),
		Confirmed: !p.cfg.RequireConfirmation,
		CreatedAt: nowUnix(),
	}
	if err := p.createUser(ctx, u); err != nil {
		return nil, err
	}
	if err := p.provision(ctx, u); err != nil {
		p.deleteUser(ctx, u)
		return nil, err
	}
	ident := mcloones.Identity{ID: u.ID, Email: u.Email}

	if p.cfg.RequireConfirmation {
		if err := p.issueConfirmation(ctx, u); err != nil {
			p.rollbackAccount(ctx, u)
			return nil, err
		}
		p.logger.Info("account created, awaiting confirmation", "user_id", u.ID)
		return &mcloones.SignUpResult{Identity: ident}, nil
	}

	ps, err := p.startSession(ctx, u, session.MethodPassword)
	if err != nil {
		return nil, err
	}
	p.logger.Info("account created", "user_id", u.ID, "role", u.Role.String())
	p.emit(mcloones.AuthEvent{Type: mcloones.AuthSignedIn, Session: ps})
	return &mcloones.SignUpResult{Identity: ident, Session: ps}, nil
}

func (p *RedisProvider) provision(ctx context.Context, u userRecord) error {
	err := p.provisioner.CreateProfile(ctx, mcloones.Profile{
		ID:       u.ID,
		Role:     u.Role,
		FullName: u.FullName,
		Email:    u.Email,
	})
	if err != nil {
		return fmt.Errorf("%w: provisioning profile: %v", mcloones.ErrProviderUnavailable, err)
	}
	return nil
}

// rollbackAccount undoes createUser and provision so the address can sign up
// again.
func (p *RedisProvider) rollbackAccount(ctx context.Context, u userRecord) {
	ctx = context.WithoutCancel(ctx)
	if err := p.provisioner.DeleteProfile(ctx, u.ID); err != nil {
		p.logger.Error("profile rollback failed", "user_id", u.ID, "error", err)
	}
	p.deleteUser(ctx, u)
}

func (p *RedisProvider) confirmKey(token string) string {
	return p.cfg.KeyPrefix + ":confirm:" + internal.HashToken(token)
}

func (p *RedisProvider) issueConfirmation(ctx context.Context, u userRecord) error {
	token, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := p.redis.Set(ctx, p.confirmKey(token), u.ID, p.cfg.ConfirmationTTL).Err(); err != nil {
		return unavailable(err)
	}
	if err := p.confirm.SendConfirmation(ctx, u.Email, token); err != nil {
		_ = p.redis.Del(context.WithoutCancel(ctx), p.confirmKey(token)).Err()
		return fmt.Errorf("%w: sending confirmation: %v", mcloones.ErrProviderUnavailable, err)
	}
	return nil
}

// ConfirmEmail activates the account the token was issued for. Each token works
// once. Confirming does not sign the account in.
func (p *RedisProvider) ConfirmEmail(ctx context.Context, token string) error {
	id, err := p.redis.GetDel(ctx, p.confirmKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidConfirmation
		}
		return unavailable(err)
	}
	if err := p.markConfirmed(ctx, id); err != nil {
		return err
	}
	p.logger.Info("account confirmed", "user_id", id)
	return nil
}

// SignInWithPassword verifies the email and secret and starts a session.
// Repeated failures are throttled per account; a throttled attempt fails with
// an error matching both [mcloones.ErrInvalidCredentials] and
// [rate.ErrRateLimited].
func (p *RedisProvider) SignInWithPassword(ctx context.Context, email, secret string) (*mcloones.ProviderSession, error) {
	email = normalizeEmail(email)
	if err := p.limiter.CheckLogin(ctx, email, ""); err != nil {
		return nil, throttleError(err)
	}

	u, err := p.userByEmail(ctx, email)
	if errors.Is(err, errUserNotFound) {
		p.hasher.Equalize(secret)
		return nil, p.loginFailed(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	if u.Hash == "" {
		// OAuth-only account.
		p.hasher.Equalize(secret)
		return nil, p.loginFailed(ctx, email)
	}

	ok, err := p.hasher.Verify(secret, u.Hash)
	if err != nil && !errors.Is(err, password.ErrSecretLength) {
		return nil, fmt.Errorf("%w: stored hash for %s: %v", mcloones.ErrProviderContract, u.ID, err)
	}
	if !ok {
		return nil, p.loginFailed(ctx, email)
	}
	if !u.Confirmed {
		return nil, mcloones.ErrVerificationRequired
	}

	if err := p.limiter.Reset(ctx, email); err != nil {
		p.logger.Warn("login throttle reset failed", "user_id", u.ID, "error", err)
	}
	p.upgradeHash(ctx, u, secret)

	ps, err := p.startSession(ctx, u, session.MethodPassword)
	if err != nil {
		return nil, err
	}
	p.emit(mcloones.AuthEvent{Type: mcloones.AuthSignedIn, Session: ps})
	return ps, nil
}

func (p *RedisProvider) loginFailed(ctx context.Context, email string) error {
	if err := p.limiter.RecordFailure(ctx, email, ""); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		p.logger.Warn("login throttle update failed", "error", err)
	}
	return mcloones.ErrInvalidCredentials
}

func (p *RedisProvider) upgradeHash(ctx context.Context, u userRecord, secret string) {
	upgrade, err := p.hasher.NeedsUpgrade(u.Hash)
	if err != nil || !upgrade {
		return
	}
	hash, err := p.hasher.Hash(secret)
	if err != nil {
		return
	}
	if err := p.updateHash(ctx, u.ID, hash); err != nil {
		p.logger.Warn("password rehash failed", "user_id", u.ID, "error", err)
	}
}

func throttleError(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return fmt.Errorf("%w: %w", mcloones.ErrInvalidCredentials, err)
	}
	return fmt.Errorf("%w: %v", mcloones.ErrProviderUnavailable, err)
}

// startSession creates the server session, signs tokens and stores them as the
// current session. It does not emit.
func (p *RedisProvider) startSession(ctx context.Context, u userRecord, method string) (*mcloones.ProviderSession, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:   sid.String(),
		UserID:      u.ID,
		Email:       u.Email,
		Role:        u.Role.String(),
		Method:      method,
		RefreshHash: internal.HashRefreshSecret(secret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(p.cfg.SessionTTL).Unix(),
	}
	if err := p.sessions.Save(ctx, sess); err != nil {
		return nil, unavailable(err)
	}

	refresh, err := internal.EncodeRefreshToken(sess.SessionID, secret)
	if err != nil {
		return nil, err
	}
	return p.storeTokens(ctx, sess, refresh)
}

func (p *RedisProvider) storeTokens(ctx context.Context, sess *session.Session, refresh string) (*mcloones.ProviderSession, error) {
	access, expires, err := p.tokens.CreateAccess(sess.UserID, sess.SessionID, sess.Email, sess.Role)
	if err != nil {
		return nil, err
	}

	tok := StoredTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		SessionID:    sess.SessionID,
		UserID:       sess.UserID,
		Email:        sess.Email,
	}
	if err := p.storage.Save(ctx, tok); err != nil {
		p.logger.Warn("token storage save failed", "user_id", sess.UserID, "error", err)
	}

	p.mu.Lock()
	p.current = &tok
	p.loaded = true
	p.mu.Unlock()

	return tok.providerSession(), nil
}

func (t *StoredTokens) providerSession() *mcloones.ProviderSession {
	return &mcloones.ProviderSession{
		AccessToken: t.AccessToken,
		ExpiresAt:   t.ExpiresAt,
		Identity:    mcloones.Identity{ID: t.UserID, Email: t.Email},
	}
}

func (p *RedisProvider) loadCurrent(ctx context.Context) (*StoredTokens, error) {
	p.mu.Lock()
	if p.loaded {
		cur := p.current
		p.mu.Unlock()
		return cur, nil
	}
	p.mu.Unlock()

	tok, err := p.storage.Load(ctx)
	if err != nil {
		p.logger.Warn("token storage load failed", "error", err)
		tok = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		p.current = tok
		p.loaded = true
	}
	return p.current, nil
}

// clearCurrent drops the local session if it is still sessionID.
func (p *RedisProvider) clearCurrent(ctx context.Context, sessionID string) bool {
	p.mu.Lock()
	if p.current == nil || (sessionID != "" && p.current.SessionID != sessionID) {
		p.mu.Unlock()
		return false
	}
	p.current = nil
	p.loaded = true
	p.mu.Unlock()

	if err := p.storage.Clear(ctx); err != nil {
		p.logger.Warn("token storage clear failed", "error", err)
	}
	return true
}

// GetSession returns the locally held session, restoring it from storage on
// first use. A session revoked or expired on the server is dropped and reported
// as nil. An expired access token is re-issued while the server session lives,
// which emits TOKEN_REFRESHED.
func (p *RedisProvider) GetSession(ctx context.Context) (*mcloones.ProviderSession, error) {
	tok, err := p.loadCurrent(ctx)
	if err != nil || tok == nil {
		return nil, err
	}

	claims, err := p.tokens.ParseAccess(tok.AccessToken)
	switch {
	case err == nil:
		if _, err := p.sessions.Get(ctx, claims.SID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				p.logger.Info("stored session no longer valid", "user_id", tok.UserID)
				p.clearCurrent(ctx, tok.SessionID)
				return nil, nil
			}
			return nil, unavailable(err)
		}
		return tok.providerSession(), nil
	case errors.Is(err, jwt.ErrExpired):
		ps, err := p.rotate(ctx, tok)
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		p.emit(mcloones.AuthEvent{Type: mcloones.AuthTokenRefreshed, Session: ps})
		return ps, nil
	default:
		p.logger.Warn("stored access token rejected", "error", err)
		p.clearCurrent(ctx, tok.SessionID)
		return nil, nil
	}
}

// RefreshSession rotates the refresh token and re-issues the access token.
// When the server session is gone the local session is dropped, SIGNED_OUT is
// emitted and [ErrNoSession] is returned.
func (p *RedisProvider) RefreshSession(ctx context.Context) (*mcloones.ProviderSession, error) {
	tok, err := p.loadCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrNoSession
	}

	ps, err := p.rotate(ctx, tok)
	if errors.Is(err, ErrNoSession) {
		p.emit(mcloones.AuthEvent{Type: mcloones.AuthSignedOut})
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	p.emit(mcloones.AuthEvent{Type: mcloones.AuthTokenRefreshed, Session: ps})
	return ps, nil
}

func (p *RedisProvider) rotate(ctx context.Context, tok *StoredTokens) (*mcloones.ProviderSession, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// Another caller may have rotated while we waited.
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur == nil {
		return nil, ErrNoSession
	}
	if cur.RefreshToken != tok.RefreshToken {
		return cur.providerSession(), nil
	}

	sid, secret, err := internal.DecodeRefreshToken(tok.RefreshToken)
	if err != nil {
		p.clearCurrent(ctx, tok.SessionID)
		return nil, ErrNoSession
	}
	next, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	sess, err := p.sessions.RotateRefreshHash(ctx, sid, internal.HashRefreshSecret(secret), internal.HashRefreshSecret(next))
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, unavailable(err)
		}
		if errors.Is(err, session.ErrRefreshHashMismatch) {
			p.logger.Warn("refresh token replay detected", "user_id", tok.UserID)
		}
		p.clearCurrent(ctx, tok.SessionID)
		return nil, ErrNoSession
	}

	refresh, err := internal.EncodeRefreshToken(sid, next)
	if err != nil {
		return nil, err
	}
	return p.storeTokens(ctx, sess, refresh)
}

// SignOut ends the server session and drops the local one. SIGNED_OUT is
// emitted even when the server call fails; that failure is returned.
func (p *RedisProvider) SignOut(ctx context.Context) error {
	tok, _ := p.loadCurrent(ctx)

	var err error
	if tok != nil {
		if derr := p.sessions.Delete(ctx, tok.UserID, tok.SessionID); derr != nil {
			err = unavailable(derr)
		}
		p.clearCurrent(ctx, "")
	}

	p.emit(mcloones.AuthEvent{Type: mcloones.AuthSignedOut})
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Sessions exposes the server session store, for token gates that check
// liveness.
func (p *RedisProvider) Sessions() *session.Store {
	return p.sessions
}

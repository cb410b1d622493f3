package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/identity"
	"github.com/mcloones/mcloones/internal/appconfig"
	"github.com/mcloones/mcloones/internal/httpapi"
	"github.com/mcloones/mcloones/internal/rate"
	"github.com/mcloones/mcloones/jwt"
	promexport "github.com/mcloones/mcloones/metrics/export/prometheus"
	"github.com/mcloones/mcloones/password"
	"github.com/mcloones/mcloones/profile"
	"github.com/mcloones/mcloones/rewards"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// app owns every long-lived resource of the server.
type app struct {
	cfg      *appconfig.Config
	logger   *slog.Logger
	manager  *mcloones.Manager
	provider *identity.RedisProvider
	server   *http.Server

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func newApp(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	rdb, err := a.openRedis()
	if err != nil {
		return nil, err
	}

	store, err := a.openProfiles(ctx, rdb)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.Tokens.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.Tokens.SigningKey),
		Issuer:        cfg.Tokens.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	a.provider, err = identity.New(a.identityConfig(), identity.Deps{
		Redis:         rdb,
		Tokens:        tokens,
		Hasher:        hasher,
		Provisioner:   store,
		Storage:       a.tokenStorage(),
		Confirmations: identity.ConfirmationSenderFunc(a.logConfirmation),
		Logger:        logger.With("component", "identity"),
	})
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}

	b := mcloones.New().
		WithConfig(a.managerConfig()).
		WithIdentityProvider(a.provider).
		WithProfileStore(store).
		WithLogger(logger.With("component", "session"))
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(mcloones.NewAuditLogSink(logger.With("component", "audit")))
	}
	a.manager, err = b.Build()
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	a.onClose(func() error {
		a.manager.Close()
		return nil
	})

	ledgerCfg := rewards.DefaultConfig()
	ledgerCfg.KeyPrefix = cfg.Redis.Prefix

	deps := httpapi.Deps{
		Manager:     a.manager,
		Identity:    a.provider,
		Ledger:      rewards.NewLedger(ledgerCfg, rdb, store, logger.With("component", "rewards")),
		Tokens:      tokens,
		Sessions:    a.provider.Sessions(),
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger.With("component", "http"),
	}
	if cfg.Metrics.Enabled {
		if deps.Metrics, err = promexport.Handler(a.manager); err != nil {
			return nil, fmt.Errorf("metrics handler: %w", err)
		}
	}
	api, err := httpapi.New(deps)
	if err != nil {
		return nil, err
	}

	a.server = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

func (a *app) openRedis() (redis.UniversalClient, error) {
	addr := a.cfg.Redis.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-process redis: %w", err)
		}
		a.onClose(func() error {
			mr.Close()
			return nil
		})
		addr = mr.Addr()
		a.logger.Warn("using in-process redis; data is lost on exit", "addr", addr)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.onClose(rdb.Close)
	return rdb, nil
}

func (a *app) openProfiles(ctx context.Context, rdb redis.UniversalClient) (profile.Store, error) {
	if a.cfg.Profiles.Backend != "sqlite" {
		return profile.NewRedisStore(rdb, a.cfg.Redis.Prefix), nil
	}

	db, err := profile.OpenSQLite(ctx, a.cfg.Profiles.DSN)
	if err != nil {
		return nil, fmt.Errorf("open profile database: %w", err)
	}
	a.onClose(db.Close)

	store := profile.NewBunStore(db)
	if err := store.CreateSchema(ctx); err != nil {
		return nil, fmt.Errorf("create profile schema: %w", err)
	}
	return store, nil
}

func (a *app) identityConfig() identity.Config {
	c := identity.DefaultConfig()
	c.KeyPrefix = a.cfg.Redis.Prefix
	c.RevocationChannel = a.cfg.Redis.Prefix + ":auth:revocations"
	c.SessionTTL = a.cfg.Sessions.TTL
	c.RequireConfirmation = a.cfg.Sessions.RequireConfirmation
	c.Throttle = rate.Config{
		MaxLoginAttempts: a.cfg.Sessions.MaxLoginAttempts,
		LoginWindow:      a.cfg.Sessions.LoginWindow,
	}
	if g := a.cfg.OAuth.Google; g.Enabled() {
		c.OAuth = map[string]identity.OAuthProvider{
			"google": {
				Config: oauth2.Config{
					ClientID:     g.ClientID,
					ClientSecret: g.ClientSecret,
					Endpoint:     endpoints.Google,
					Scopes:       []string{"openid", "email", "profile"},
				},
				UserInfoURL: googleUserInfoURL,
			},
		}
	}
	return c
}

func (a *app) managerConfig() mcloones.Config {
	c := mcloones.DefaultConfig()
	c.OAuth.RedirectURL = a.cfg.OAuth.RedirectURL
	c.OAuth.Providers = nil
	if a.cfg.OAuth.Google.Enabled() {
		c.OAuth.Providers = []string{"google"}
	}
	c.Audit.Enabled = a.cfg.Audit.Enabled
	c.Audit.BufferSize = a.cfg.Audit.BufferSize
	c.Metrics.Enabled = a.cfg.Metrics.Enabled
	c.Metrics.EnableLatencyHistograms = a.cfg.Metrics.Enabled && a.cfg.Metrics.Histograms
	return c
}

func (a *app) tokenStorage() identity.TokenStorage {
	if a.cfg.Sessions.TokenFile == "" {
		return identity.NewMemoryStorage()
	}
	return identity.NewFileStorage(a.cfg.Sessions.TokenFile)
}

// logConfirmation stands in for a mail relay; the token is only logged in dev mode.
func (a *app) logConfirmation(_ context.Context, email, token string) error {
	if a.cfg.DevMode {
		a.logger.Info("confirmation issued", "email", email, "token", token)
		return nil
	}
	a.logger.Info("confirmation issued", "email", email)
	return nil
}

// Run starts the manager and serves until ctx is done.
func (a *app) Run(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		if !mcloones.IsExpected(err) {
			return fmt.Errorf("start session manager: %w", err)
		}
		a.logger.Warn("starting signed out", "error", err)
	}

	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.watchRevocations(runCtx)
	}()
	go func() {
		defer wg.Done()
		a.followSession(runCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer stop()
	a.logger.Info("shutting down")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

const (
	minRetryDelay = time.Second
	maxRetryDelay = 30 * time.Second
)

// retryDelay returns the wait before the next reconnect. Quick failures double
// the previous delay up to maxRetryDelay; a subscription that stayed up longer
// than the previous delay starts over at minRetryDelay.
func retryDelay(prev, uptime time.Duration) time.Duration {
	if prev == 0 || uptime > prev {
		return minRetryDelay
	}
	return min(2*prev, maxRetryDelay)
}

// watchRevocations keeps the revocation subscription alive, backing off while
// Redis is unreachable.
func (a *app) watchRevocations(ctx context.Context) {
	var delay time.Duration
	for {
		started := time.Now()
		err := a.provider.WatchRevocations(ctx)
		if ctx.Err() != nil {
			return
		}
		delay = retryDelay(delay, time.Since(started))
		a.logger.Warn("revocation watcher stopped", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// followSession logs where the shell should navigate on every session change.
func (a *app) followSession(ctx context.Context) {
	sub := a.manager.Subscribe(0)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			attrs := []any{"event", ev.Type.String(), "destination", string(ev.View.Destination())}
			if ev.Type == mcloones.SessionEnded {
				attrs = append(attrs, "reason", string(ev.Reason))
				if ev.Previous != nil {
					attrs = append(attrs, "previous_user_id", ev.Previous.ID)
				}
			}
			a.logger.Info("session changed", attrs...)
		}
	}
}

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/jwt"
	"github.com/mcloones/mcloones/middleware"
	"github.com/mcloones/mcloones/rewards"
	"github.com/mcloones/mcloones/session"
)

// Identity is the provider surface the API needs beyond the Manager.
type Identity interface {
	ConfirmEmail(ctx context.Context, token string) error
	CompleteOAuth(ctx context.Context, state, code string) (*mcloones.ProviderSession, error)
	RevokeUser(ctx context.Context, userID string) (int, error)
}

// Deps groups the collaborators of an [API].
type Deps struct {
	Manager  *mcloones.Manager
	Identity Identity
	Ledger   *rewards.Ledger
	Tokens   *jwt.Manager
	Sessions *session.Store
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// API routes HTTP requests onto the session manager and its collaborators.
type API struct {
	deps   Deps
	logger *slog.Logger
}

// New checks deps and returns an API.
func New(deps Deps) (*API, error) {
	switch {
	case deps.Manager == nil:
		return nil, errors.New("httpapi: manager is required")
	case deps.Identity == nil:
		return nil, errors.New("httpapi: identity provider is required")
	case deps.Ledger == nil:
		return nil, errors.New("httpapi: ledger is required")
	case deps.Tokens == nil || deps.Sessions == nil:
		return nil, errors.New("httpapi: token manager and session store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	return &API{deps: deps, logger: logger}, nil
}

// Handler returns the routed handler.
func (a *API) Handler() http.Handler {
	m := a.deps.Manager
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("POST /auth/signup", a.signUp)
	mux.HandleFunc("POST /auth/confirm", a.confirm)
	mux.HandleFunc("POST /auth/logout", a.logout)
	mux.HandleFunc("POST /auth/oauth/start", a.oauthStart)
	mux.HandleFunc("GET /auth/oauth/callback", a.oauthCallback)

	signedIn := middleware.RequireSession(m, string(mcloones.RouteLogin))
	mux.Handle("GET /me", signedIn(http.HandlerFunc(a.me)))
	mux.Handle("POST /profile/refresh", signedIn(http.HandlerFunc(a.refreshProfile)))

	mux.Handle("GET /rewards/balance", middleware.RequireCapability(m, mcloones.CapBucksView)(http.HandlerFunc(a.balance)))
	mux.Handle("GET /manager/employees", middleware.RequireCapability(m, mcloones.CapEmployeesView)(http.HandlerFunc(a.roster)))
	mux.Handle("POST /manager/bucks", middleware.RequireCapability(m, mcloones.CapBucksAward)(http.HandlerFunc(a.award)))
	mux.Handle("POST /manager/revoke", middleware.RequireRole(m, mcloones.RoleManager)(http.HandlerFunc(a.revoke)))

	mux.Handle("GET /api/me", middleware.RequireLiveSession(a.deps.Tokens, a.deps.Sessions)(http.HandlerFunc(a.tokenMe)))

	if a.deps.Metrics != nil {
		mux.Handle("GET "+a.deps.MetricsPath, a.deps.Metrics)
	}
	return mux
}

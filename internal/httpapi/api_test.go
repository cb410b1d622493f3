package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/identity"
	"github.com/mcloones/mcloones/jwt"
	"github.com/mcloones/mcloones/password"
	"github.com/mcloones/mcloones/profile"
	"github.com/mcloones/mcloones/rewards"
)

type apiEnv struct {
	handler  http.Handler
	manager  *mcloones.Manager
	provider *identity.RedisProvider
	storage  *identity.MemoryStorage
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}

	profiles := profile.NewRedisStore(rdb, "mc")
	storage := identity.NewMemoryStorage()
	provider, err := identity.New(identity.DefaultConfig(), identity.Deps{
		Redis:       rdb,
		Tokens:      tokens,
		Hasher:      hasher,
		Provisioner: profiles,
		Storage:     storage,
	})
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}

	m, err := mcloones.New().WithIdentityProvider(provider).WithProfileStore(profiles).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(m.Close)

	api, err := New(Deps{
		Manager:  m,
		Identity: provider,
		Ledger:   rewards.NewLedger(rewards.DefaultConfig(), rdb, profiles, nil),
		Tokens:   tokens,
		Sessions: provider.Sessions(),
	})
	if err != nil {
		t.Fatalf("httpapi.New: %v", err)
	}
	return &apiEnv{handler: api.Handler(), manager: m, provider: provider, storage: storage}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

// seedManager creates a manager account and leaves the terminal signed out.
func (e *apiEnv) seedManager(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	res, err := e.provider.SignUp(ctx, "mia@mcloones.com", "secret123", mcloones.SignUpMetadata{
		Role:     mcloones.RoleManager,
		FullName: "Mia Manager",
	})
	if err != nil {
		t.Fatalf("seed manager: %v", err)
	}
	e.manager.Logout(ctx)
	return res.Identity.ID
}

func TestScreenRoutesFollowTheSession(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/me", nil, nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After while loading")
	}

	if err := env.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec = env.do(t, http.MethodGet, "/me", nil, nil)
	expectStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != string(mcloones.RouteLogin) {
		t.Fatalf("redirect = %q", loc)
	}

	managerID := env.seedManager(t)

	rec = env.do(t, http.MethodPost, "/auth/signup", signUpRequest{
		Email:    "eli@mcloones.com",
		Password: "secret123",
		Role:     "employee",
		FullName: "Eli Employee",
	}, nil)
	expectStatus(t, rec, http.StatusCreated)
	emp := decode[sessionBody](t, rec)
	if emp.Role != "employee" || emp.IsManager || emp.Destination != string(mcloones.RouteHome) {
		t.Fatalf("unexpected employee session %+v", emp)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/rewards/balance", nil, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/manager/employees", nil, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodPost, "/manager/revoke", map[string]string{"user_id": managerID}, nil), http.StatusForbidden)

	expectStatus(t, env.do(t, http.MethodPost, "/auth/logout", nil, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/manager/employees", nil, nil), http.StatusUnauthorized)

	rec = env.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "mia@mcloones.com", Password: "wrong-secret"}, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if body := decode[errorBody](t, rec); body.Error != "invalid_credentials" {
		t.Fatalf("unexpected error body %+v", body)
	}

	rec = env.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "mia@mcloones.com", Password: "secret123"}, nil)
	expectStatus(t, rec, http.StatusOK)
	if s := decode[sessionBody](t, rec); !s.IsManager || len(s.Tabs) != 4 {
		t.Fatalf("unexpected manager session %+v", s)
	}

	rec = env.do(t, http.MethodPost, "/manager/bucks", map[string]string{
		"employee_id": emp.UserID,
		"amount":      "12.50",
		"reason":      "Covered a double",
	}, nil)
	expectStatus(t, rec, http.StatusCreated)

	rec = env.do(t, http.MethodGet, "/rewards/balance?employee_id="+emp.UserID, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	bal := decode[balanceBody](t, rec)
	if bal.Cents != 1250 || bal.Display != "12.50" || len(bal.History) != 1 {
		t.Fatalf("unexpected balance %+v", bal)
	}

	rec = env.do(t, http.MethodGet, "/manager/employees", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	roster := decode[[]rosterBody](t, rec)
	if len(roster) != 1 || roster[0].EmployeeID != emp.UserID || roster[0].Cents != 1250 {
		t.Fatalf("unexpected roster %+v", roster)
	}

	rec = env.do(t, http.MethodPost, "/manager/bucks", map[string]string{
		"employee_id": managerID,
		"amount":      "1.00",
		"reason":      "self",
	}, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestSignUpErrors(t *testing.T) {
	env := newAPIEnv(t)
	if err := env.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req := signUpRequest{Email: "cara@mcloones.com", Password: "secret123", Role: "customer", FullName: "Cara"}
	expectStatus(t, env.do(t, http.MethodPost, "/auth/signup", req, nil), http.StatusCreated)
	env.manager.Logout(context.Background())

	rec := env.do(t, http.MethodPost, "/auth/signup", req, nil)
	expectStatus(t, rec, http.StatusConflict)

	req.Email, req.Role = "boss@mcloones.com", "manager"
	expectStatus(t, env.do(t, http.MethodPost, "/auth/signup", req, nil), http.StatusBadRequest)

	req.Role = "owner"
	expectStatus(t, env.do(t, http.MethodPost, "/auth/signup", req, nil), http.StatusBadRequest)

	expectStatus(t, env.do(t, http.MethodPost, "/auth/confirm", map[string]string{"token": "nope"}, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/auth/oauth/start", map[string]string{"provider": "myspace"}, nil), http.StatusBadRequest)
}

func TestTokenRoutes(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()
	if err := env.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/me", nil, nil), http.StatusUnauthorized)

	req := signUpRequest{Email: "eli@mcloones.com", Password: "secret123", Role: "employee", FullName: "Eli"}
	expectStatus(t, env.do(t, http.MethodPost, "/auth/signup", req, nil), http.StatusCreated)

	tok, err := env.storage.Load(ctx)
	if err != nil || tok == nil {
		t.Fatalf("stored tokens: %v, %v", tok, err)
	}
	auth := http.Header{"Authorization": {"Bearer " + tok.AccessToken}}

	rec := env.do(t, http.MethodGet, "/api/me", nil, auth)
	expectStatus(t, rec, http.StatusOK)
	body := decode[map[string]any](t, rec)
	if body["role"] != "employee" || body["email"] != "eli@mcloones.com" {
		t.Fatalf("unexpected claims body %v", body)
	}

	env.manager.Logout(ctx)
	expectStatus(t, env.do(t, http.MethodGet, "/api/me", nil, auth), http.StatusUnauthorized)
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones/jwt"
	"github.com/mcloones/mcloones/session"
)

func newTokens(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "mcloones",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func claimsHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		if !ok || c.UID != "u-1" {
			t.Errorf("unexpected claims %+v", c)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func withBearer(h http.Handler, header string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAccessToken(t *testing.T) {
	tokens := newTokens(t)
	tok, _, err := tokens.CreateAccess("u-1", "sid-1", "u1@mcloones.com", "employee")
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	h := RequireAccessToken(tokens)(claimsHandler(t))

	cases := map[string]int{
		"":                   http.StatusUnauthorized,
		"Basic abc":          http.StatusUnauthorized,
		"Bearer ":            http.StatusUnauthorized,
		"Bearer not-a-token": http.StatusUnauthorized,
		"Bearer " + tok:      http.StatusNoContent,
		"bearer " + tok:      http.StatusNoContent,
	}
	for header, want := range cases {
		if got := withBearer(h, header); got != want {
			t.Fatalf("Authorization %q: status %d, want %d", header, got, want)
		}
	}
}

func TestRequireLiveSession(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	store := session.NewStore(rdb, "mc:sess")
	tokens := newTokens(t)
	ctx := context.Background()

	now := time.Now()
	if err := store.Save(ctx, &session.Session{
		SessionID: "sid-1",
		UserID:    "u-1",
		Role:      "employee",
		Method:    session.MethodPassword,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tok, _, _ := tokens.CreateAccess("u-1", "sid-1", "", "employee")
	h := RequireLiveSession(tokens, store)(claimsHandler(t))

	if got := withBearer(h, "Bearer "+tok); got != http.StatusNoContent {
		t.Fatalf("live session: status %d", got)
	}
	if err := store.Delete(ctx, "u-1", "sid-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := withBearer(h, "Bearer "+tok); got != http.StatusUnauthorized {
		t.Fatalf("revoked session: status %d", got)
	}

	mr.Close()
	if got := withBearer(h, "Bearer "+tok); got != http.StatusServiceUnavailable {
		t.Fatalf("store down: status %d", got)
	}
}

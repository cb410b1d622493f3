package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
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
	return New(rdb, cfg), mr
}

func TestLoginThrottleWindow(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxLoginAttempts: 3, LoginWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "Bob@McLoones.com", ""); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if err := l.CheckLogin(ctx, "bob@mcloones.com", ""); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}
	if err := l.RecordFailure(ctx, "bob@mcloones.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob@mcloones.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if n, _ := l.Attempts(ctx, "bob@mcloones.com"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "bob@mcloones.com", ""); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestResetClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "bob@mcloones.com", "")
	if err := l.Reset(ctx, "bob@mcloones.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, err := l.Attempts(ctx, "bob@mcloones.com"); err != nil || n != 0 {
		t.Fatalf("expected no attempts, got %d (%v)", n, err)
	}
}

func TestIPThrottle(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginAttempts: 2, LoginWindow: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a@mcloones.com", "10.0.0.9")
	_ = l.RecordFailure(ctx, "b@mcloones.com", "10.0.0.9")
	if err := l.CheckLogin(ctx, "c@mcloones.com", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected address throttle, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@mcloones.com", "10.0.0.10"); err != nil {
		t.Fatalf("other address should pass: %v", err)
	}
}

func TestRedisDown(t *testing.T) {
	l, mr := newTestLimiter(t, DefaultConfig())
	mr.Close()
	if err := l.CheckLogin(context.Background(), "bob@mcloones.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

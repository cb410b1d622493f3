package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcloones/mcloones"
)

func waitForSubscriber(t *testing.T, env *testEnv, channel string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.mr.PubSubNumSub(channel)[channel] > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("watcher never subscribed")
}

func TestRevokeUserSignsOutWatchers(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.signUp(t, "staff@mcloones.com", mcloones.RoleEmployee)
	env.nextEvent(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.p.WatchRevocations(ctx) }()
	waitForSubscriber(t, env, env.p.cfg.RevocationChannel)

	other := env.signUpOther(t)
	if n, err := env.p.RevokeUser(context.Background(), other); err != nil || n != 0 {
		t.Fatalf("RevokeUser(other) = %d, %v", n, err)
	}

	n, err := env.p.RevokeUser(context.Background(), res.Identity.ID)
	if err != nil || n != 1 {
		t.Fatalf("RevokeUser = %d, %v", n, err)
	}
	if ev := env.nextEvent(t); ev.Type != mcloones.AuthSignedOut {
		t.Fatalf("expected SIGNED_OUT, got %s", ev.Type)
	}
	if ps, _ := env.p.GetSession(context.Background()); ps != nil {
		t.Fatal("expected no local session after revocation")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WatchRevocations returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

// signUpOther registers an account that is never signed in on env's provider.
func (e *testEnv) signUpOther(t *testing.T) string {
	t.Helper()
	u := userRecord{ID: "u-other", Email: "other@mcloones.com", Role: mcloones.RoleCustomer, Confirmed: true}
	if err := e.p.createUser(context.Background(), u); err != nil && !errors.Is(err, mcloones.ErrAccountExists) {
		t.Fatalf("createUser: %v", err)
	}
	return u.ID
}

package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/jwt"
	"github.com/mcloones/mcloones/password"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

type memProfiles struct {
	mu   sync.Mutex
	rows map[string]mcloones.Profile
	fail error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{rows: map[string]mcloones.Profile{}}
}

func (m *memProfiles) CreateProfile(_ context.Context, p mcloones.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.rows[p.ID]; ok {
		return errors.New("duplicate profile")
	}
	m.rows[p.ID] = p
	return nil
}

func (m *memProfiles) DeleteProfile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memProfiles) GetProfileByID(_ context.Context, id string) (mcloones.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return mcloones.Profile{}, mcloones.ErrProfileNotFound
	}
	return p, nil
}

type testEnv struct {
	p        *RedisProvider
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	profiles *memProfiles
	events   chan mcloones.AuthEvent
	tokens   []string
}

func newTestEnv(t *testing.T, mutate func(*Config, *Deps)) *testEnv {
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
		PrivateKey:    testSigningKey,
		Issuer:        "mcloones",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("argon2: %v", err)
	}

	env := &testEnv{
		mr:       mr,
		rdb:      rdb,
		profiles: newMemProfiles(),
		events:   make(chan mcloones.AuthEvent, 32),
	}

	cfg := DefaultConfig()
	deps := Deps{
		Redis:       rdb,
		Tokens:      tokens,
		Hasher:      hasher,
		Provisioner: env.profiles,
		Confirmations: ConfirmationSenderFunc(func(_ context.Context, _, token string) error {
			env.tokens = append(env.tokens, token)
			return nil
		}),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	p, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := p.OnAuthStateChange(func(ev mcloones.AuthEvent) { env.events <- ev })
	t.Cleanup(sub.Cancel)
	env.p = p
	return env
}

func (e *testEnv) signUp(t *testing.T, email string, role mcloones.Role) *mcloones.SignUpResult {
	t.Helper()
	res, err := e.p.SignUp(context.Background(), email, "secret123", mcloones.SignUpMetadata{Role: role, FullName: "Test User"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return res
}

func (e *testEnv) nextEvent(t *testing.T) mcloones.AuthEvent {
	t.Helper()
	select {
	case ev := <-e.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth event")
	}
	return mcloones.AuthEvent{}
}

func (e *testEnv) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-e.events:
		t.Fatalf("unexpected auth event %s", ev.Type)
	default:
	}
}

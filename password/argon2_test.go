package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newHasher(t, fastConfig())

	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("secret123", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("secret124", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestHashRejectsLength(t *testing.T) {
	h := newHasher(t, fastConfig())

	for _, s := range []string{"", "short", strings.Repeat("x", MaxSecretBytes+1)} {
		if _, err := h.Hash(s); !errors.Is(err, ErrSecretLength) {
			t.Fatalf("expected ErrSecretLength for %d bytes, got %v", len(s), err)
		}
	}
	if _, err := h.Hash(strings.Repeat("x", MaxSecretBytes)); err != nil {
		t.Fatalf("max length secret rejected: %v", err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newHasher(t, fastConfig())

	bad := []string{
		"",
		"plain",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5",
	}
	for _, enc := range bad {
		if _, err := h.Verify("secret123", enc); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", enc, err)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, fastConfig())
	hash, err := weak.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	up, err := weak.NeedsUpgrade(hash)
	if err != nil || up {
		t.Fatalf("same config must not need upgrade, up=%v err=%v", up, err)
	}

	strong := newHasher(t, DefaultConfig())
	up, err = strong.NeedsUpgrade(hash)
	if err != nil || !up {
		t.Fatalf("expected upgrade, up=%v err=%v", up, err)
	}
	if ok, _ := strong.Verify("secret123", hash); !ok {
		t.Fatal("stronger hasher must still verify older hashes")
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected weak memory to be rejected")
	}
	cfg = fastConfig()
	cfg.SaltLength = 8
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}

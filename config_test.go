package mcloones

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.signUpAllowed(RoleManager) {
		t.Fatal("managers must not self-register by default")
	}
	if !cfg.oauthAllowed("GOOGLE") {
		t.Fatal("expected google to be allowed")
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid role", func(c *Config) { c.SignUp.AllowedRoles = []Role{RoleNone} }},
		{"empty provider", func(c *Config) { c.OAuth.Providers = []string{" "} }},
		{"missing redirect", func(c *Config) { c.OAuth.RedirectURL = "" }},
		{"relative redirect", func(c *Config) { c.OAuth.RedirectURL = "/callback" }},
		{"zero buffer", func(c *Config) { c.Notifications.DefaultBuffer = 0 }},
		{"audit buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
		{"histograms without metrics", func(c *Config) { c.Metrics.Enabled = false }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	out := cloneConfig(cfg)
	out.SignUp.AllowedRoles[0] = RoleManager
	out.OAuth.Providers[0] = "github"
	if cfg.SignUp.AllowedRoles[0] != RoleCustomer || cfg.OAuth.Providers[0] != "google" {
		t.Fatal("clone shares slices with the source")
	}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	if _, err := New().WithProfileStore(newFakeProfiles()).Build(); err == nil {
		t.Fatal("expected error without identity provider")
	}
	if _, err := New().WithIdentityProvider(newFakeProvider()).Build(); err == nil {
		t.Fatal("expected error without profile store")
	}

	b := New().WithIdentityProvider(newFakeProvider()).WithProfileStore(newFakeProfiles())
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, 3*time.Millisecond)
	m.Observe(MetricLoginLatency, 2*time.Second)
	m.Observe(MetricLogout, time.Millisecond)

	s := m.Snapshot()
	if s.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("expected 2 login successes, got %d", s.Counters[MetricLoginSuccess])
	}
	buckets := s.Histograms[MetricLoginLatency]
	if len(buckets) != histBucketCount || buckets[0] != 1 || buckets[histBucketCount-1] != 1 {
		t.Fatalf("unexpected buckets %v", buckets)
	}
	if _, ok := s.Histograms[MetricLogout]; ok {
		t.Fatal("only latency metrics keep histograms")
	}

	off := NewMetrics(MetricsConfig{})
	off.Inc(MetricLoginSuccess)
	if off.Value(MetricLoginSuccess) != 0 || len(off.Snapshot().Counters) != 0 {
		t.Fatal("disabled metrics must not count")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
}

func TestNotificationDropIsCounted(t *testing.T) {
	p := newFakeProvider()
	s := newFakeProfiles()
	seedAlice(p, s, RoleCustomer)
	m := startedManager(t, p, s)
	sub := m.Subscribe(1)
	defer sub.Cancel()

	_ = m.Login(context.Background(), "alice@mcloones.com", "secret123")
	m.Logout(context.Background())

	if got := m.Metrics().Value(MetricNotificationDropped); got != 1 {
		t.Fatalf("expected one dropped notification, got %d", got)
	}
	sub.Cancel()
	sub.Cancel()
}

package mcloones

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	internalaudit "github.com/mcloones/mcloones/internal/audit"
)

// Builder assembles a [Manager].
//
// Builder instances are configured during initialization and used once.
type Builder struct {
	config Config

	provider IdentityProvider
	profiles ProfileStore

	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityProvider sets the external auth service. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithProfileStore sets the profile lookup. Required.
func (b *Builder) WithProfileStore(s ProfileStore) *Builder {
	b.profiles = s
	return b
}

// WithAuditSink sets the sink used when Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Manager in StateInitializing.
// Call [Manager.Start] to run the initial identity check.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}
	if b.profiles == nil {
		return nil, errors.New("profile store required")
	}

	table, err := newCapabilityTable()
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.Discard
	}

	metrics := NewMetrics(cfg.Metrics)

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:      cfg,
		provider: b.provider,
		profiles: b.profiles,
		logger:   logger.With("component", "session"),
		metrics:  metrics,
		table:    table,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		ctx:    ctx,
		cancel: cancel,
	}
	m.notify = newNotifier(cfg.Notifications.DefaultBuffer, func() {
		metrics.Inc(MetricNotificationDropped)
	})
	m.publish(Session{State: StateInitializing})

	b.built = true
	return m, nil
}

package mcloones

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	internalaudit "github.com/mcloones/mcloones/internal/audit"
)

// Manager owns the single authoritative [Session].
//
// All mutations are serialized by one mutex; readers load an immutable snapshot
// without locking. Provider and profile store calls never run under the mutex,
// so providers may deliver auth events synchronously from inside their methods.
type Manager struct {
	cfg      Config
	provider IdentityProvider
	profiles ProfileStore
	logger   *slog.Logger
	metrics  *Metrics
	audit    *internalaudit.Dispatcher
	table    *capabilityTable
	validate *validator.Validate
	notify   *notifier

	ctx    context.Context
	cancel context.CancelFunc

	snap atomic.Pointer[snapshot]

	mu          sync.Mutex
	started     bool
	closed      bool
	providerSub Subscription
	// epoch changes on every identity transition; in-flight profile fetches
	// started under an older epoch are discarded.
	epoch uint64
	// lockedRole is the first role observed for the current identity.
	lockedRole Role
	// loggingOut counts Logout calls in progress so a SIGNED_OUT they cause is
	// attributed to the logout.
	loggingOut int
}

type snapshot struct {
	session Session
	view    AuthorizationView
}

// publish installs s as the current snapshot. Callers hold m.mu, except Build.
func (m *Manager) publish(s Session) snapshot {
	next := &snapshot{session: s, view: deriveView(&s, m.table)}
	m.snap.Store(next)
	return *next
}

func (m *Manager) current() Session {
	return m.snap.Load().session
}

// CurrentSession returns the current snapshot. Identity and Profile point at
// values the Manager never mutates.
func (m *Manager) CurrentSession() Session {
	return m.current()
}

// CurrentView returns the authorization view of the current snapshot. It
// performs no I/O and returns equal values while the Session is unchanged.
func (m *Manager) CurrentView() AuthorizationView {
	return m.snap.Load().view
}

// Current returns the Session and its view from one snapshot.
func (m *Manager) Current() (Session, AuthorizationView) {
	s := m.snap.Load()
	return s.session, s.view
}

// Subscribe registers for session events. buffer <= 0 uses
// Notifications.DefaultBuffer.
func (m *Manager) Subscribe(buffer int) *SessionSubscription {
	return m.notify.subscribe(buffer)
}

// Metrics exposes the counters for exporters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// MetricsSnapshot copies the current counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped reports audit events lost to a full buffer.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Start subscribes to the provider's auth events and runs the initial identity
// check. A persisted provider session restores the Session to Authenticated;
// otherwise it becomes Anonymous. On provider failure the Session is still
// moved out of Initializing and the classified error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	sub := m.provider.OnAuthStateChange(m.handleAuthEvent)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		return ErrManagerClosed
	}
	m.providerSub = sub
	m.mu.Unlock()

	ps, err := m.provider.GetSession(ctx)
	if err != nil {
		err = classifyProviderError(err)
		m.logger.Warn("initial session check failed", "error", err)
		m.resolveInitializing()
		return err
	}
	if ps == nil {
		m.resolveInitializing()
		return nil
	}

	if m.applyProviderSession(ctx, ps) {
		m.metrics.Inc(MetricSessionRestored)
		m.emitAudit(ctx, auditEventSessionRestored, ps.Identity.ID, m.CurrentView().Role, true, nil, auditDetail{})
	}
	return nil
}

// Close unsubscribes from the provider, closes every SessionSubscription and
// flushes the audit dispatcher. The Session keeps its last value.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sub := m.providerSub
	m.providerSub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	m.cancel()
	m.notify.close()
	m.audit.Close()
}

func (m *Manager) ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return ErrManagerClosed
	case !m.started:
		return ErrManagerNotStarted
	}
	return nil
}

// handleAuthEvent applies a provider notification.
func (m *Manager) handleAuthEvent(ev AuthEvent) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	switch ev.Type {
	case AuthSignedOut:
		m.teardown(m.ctx, EndReasonRemoteSignOut)
	case AuthSignedIn, AuthTokenRefreshed, AuthUserUpdated:
		if ev.Session == nil || ev.Session.Identity.ID == "" {
			m.logger.Error("auth event without session", "event", string(ev.Type), "error", ErrProviderContract)
			return
		}
		if ev.Type == AuthTokenRefreshed {
			m.metrics.Inc(MetricTokenRefreshed)
		}
		m.applyProviderSession(m.ctx, ev.Session)
	default:
		m.logger.Debug("ignoring auth event", "event", string(ev.Type))
	}
}

// applyProviderSession makes ps.Identity the current actor and resolves its
// profile. It reports whether the Session now holds that identity.
func (m *Manager) applyProviderSession(ctx context.Context, ps *ProviderSession) bool {
	ident := ps.Identity

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	cur := m.current()
	if cur.Identity != nil && cur.Identity.ID == ident.ID && cur.Profile != nil {
		if cur.Identity.Email != ident.Email {
			next := cur
			next.Identity = &Identity{ID: ident.ID, Email: ident.Email}
			m.publish(next)
		}
		m.mu.Unlock()
		return true
	}
	epoch := m.epoch
	m.mu.Unlock()

	prof, _ := m.fetchProfile(ctx, ident.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.epoch != epoch {
		cur = m.current()
		return cur.Identity != nil && cur.Identity.ID == ident.ID
	}

	cur = m.current()
	same := cur.Identity != nil && cur.Identity.ID == ident.ID
	if !same {
		m.lockedRole = RoleNone
	}
	prof = m.admitProfile(ctx, ident.ID, cur.Profile, prof)

	next := Session{
		State:    StateAuthenticated,
		Identity: &Identity{ID: ident.ID, Email: ident.Email},
		Profile:  prof,
	}
	m.epoch++
	snap := m.publish(next)

	switch {
	case same:
		if !profileEqual(cur.Profile, prof) {
			m.notify.publish(SessionEvent{Type: ProfileChanged, Session: snap.session, View: snap.view})
		}
	case cur.Identity != nil:
		m.metrics.Inc(MetricSessionEnded)
		m.notify.publish(SessionEvent{
			Type:     SessionEnded,
			Reason:   EndReasonIdentityChanged,
			Previous: cur.Identity,
			Session:  snap.session,
			View:     snap.view,
		})
		fallthrough
	default:
		m.notify.publish(SessionEvent{Type: SessionStarted, Session: snap.session, View: snap.view})
	}
	return true
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// appliedSince reports whether an auth event delivered during a provider call
// already made id the current identity, so the caller must not fetch its
// profile again.
func (m *Manager) appliedSince(epoch uint64, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current()
	return m.epoch != epoch && cur.Identity != nil && cur.Identity.ID == id
}

// fetchProfile loads the profile row for id. A missing row yields (nil,
// ErrProfileNotFound); any other failure is logged, counted and audited.
func (m *Manager) fetchProfile(ctx context.Context, id string) (*Profile, error) {
	p, err := m.profiles.GetProfileByID(ctx, id)
	if err == nil && !p.Role.Valid() {
		err = fmt.Errorf("%w: profile %s has no valid role", ErrProviderContract, id)
	}
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			m.logger.Info("profile not found", "user_id", id)
			return nil, err
		}
		err = fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
		m.metrics.Inc(MetricProfileFetchFailure)
		m.logger.Warn("profile fetch failed", "user_id", id, "error", err)
		m.emitAudit(ctx, auditEventProfileFetchFailure, id, RoleNone, false, err, auditDetail{})
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// admitProfile enforces that the role of an identity never changes once
// observed. A conflicting row keeps the locked role. Callers hold m.mu.
func (m *Manager) admitProfile(ctx context.Context, id string, prev, next *Profile) *Profile {
	if next == nil {
		return nil
	}
	if m.lockedRole == RoleNone {
		m.lockedRole = next.Role
		return next
	}
	if next.Role == m.lockedRole {
		return next
	}

	m.metrics.Inc(MetricRoleChangeRejected)
	m.logger.Warn("profile role change rejected",
		"user_id", id,
		"locked_role", m.lockedRole.String(),
		"stored_role", next.Role.String(),
	)
	m.emitAudit(ctx, auditEventRoleChangeRejected, id, m.lockedRole, false, nil, auditDetail{storedRole: next.Role})

	out := *next
	out.Role = m.lockedRole
	if prev != nil && profileEqual(prev, &out) {
		return prev
	}
	return &out
}

// resolveInitializing ends the initial check without an identity. A Session an
// auth event already moved on is left alone.
func (m *Manager) resolveInitializing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current().State != StateInitializing {
		return
	}
	m.epoch++
	m.publish(Session{State: StateAnonymous})
}

// teardown moves the Session to Anonymous. Only a previously authenticated
// Session produces SessionEnded; repeated calls are no-ops.
func (m *Manager) teardown(ctx context.Context, reason EndReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current()
	if cur.State == StateAnonymous && cur.Identity == nil {
		return
	}
	if reason == EndReasonRemoteSignOut && m.loggingOut > 0 {
		reason = EndReasonLogout
	}

	m.epoch++
	m.lockedRole = RoleNone
	snap := m.publish(Session{State: StateAnonymous})

	if cur.Identity == nil {
		return
	}

	m.metrics.Inc(MetricSessionEnded)
	if reason == EndReasonRemoteSignOut {
		m.metrics.Inc(MetricRemoteSignOut)
	}
	m.logger.Info("session ended", "user_id", cur.Identity.ID, "reason", string(reason))
	role := RoleNone
	if cur.Profile != nil {
		role = cur.Profile.Role
	}
	m.emitAudit(ctx, auditEventSessionEnded, cur.Identity.ID, role, true, nil, auditDetail{reason: reason})
	m.notify.publish(SessionEvent{
		Type:     SessionEnded,
		Reason:   reason,
		Previous: cur.Identity,
		Session:  snap.session,
		View:     snap.view,
	})
}

func profileEqual(a, b *Profile) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

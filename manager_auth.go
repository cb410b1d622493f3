package mcloones

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Login signs in with email and secret. Expected failures come back as errors
// wrapping [ErrInvalidCredentials], [ErrVerificationRequired] or
// [ErrProviderUnavailable] and leave the Session unchanged. A profile fetch
// failure after a successful sign-in is not an error: the Session becomes
// Authenticated with a nil Profile.
func (m *Manager) Login(ctx context.Context, email, secret string) error {
	if err := m.ready(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	epoch := m.currentEpoch()

	start := time.Now()
	ps, err := m.provider.SignInWithPassword(ctx, email, secret)
	m.metrics.Observe(MetricLoginLatency, time.Since(start))
	if err == nil && (ps == nil || ps.Identity.ID == "") {
		err = fmt.Errorf("%w: sign-in returned no session", ErrProviderContract)
	}
	if err != nil {
		err = classifyProviderError(err)
		m.metrics.Inc(MetricLoginFailure)
		m.logger.Info("login failed", "error", err)
		m.emitAudit(ctx, auditEventLoginFailure, "", RoleNone, false, err, auditDetail{})
		return err
	}

	if !m.appliedSince(epoch, ps.Identity.ID) {
		m.applyProviderSession(ctx, ps)
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.logger.Info("login succeeded", "user_id", ps.Identity.ID)
	m.emitAudit(ctx, auditEventLoginSuccess, ps.Identity.ID, m.CurrentView().Role, true, nil, auditDetail{})
	return nil
}

// SignUp registers a new identity tagged with req.Role. When the provider holds
// back a session until the address is confirmed, SignUp returns
// [ErrVerificationRequired] and the Session stays as it was.
func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) error {
	if err := m.ready(); err != nil {
		return err
	}
	req.Email = normalizeEmail(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if err := m.validate.StructCtx(ctx, req); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidSignUp, err)
		m.metrics.Inc(MetricSignUpFailure)
		m.emitAudit(ctx, auditEventSignUpFailure, "", req.Role, false, err, auditDetail{})
		return err
	}
	if !req.Role.Valid() || !m.cfg.signUpAllowed(req.Role) {
		m.metrics.Inc(MetricSignUpFailure)
		m.emitAudit(ctx, auditEventSignUpFailure, "", req.Role, false, ErrSignUpRoleNotAllowed, auditDetail{})
		return ErrSignUpRoleNotAllowed
	}

	epoch := m.currentEpoch()
	res, err := m.provider.SignUp(ctx, req.Email, req.Secret, SignUpMetadata{
		Role:     req.Role,
		FullName: req.DisplayName,
	})
	if err == nil && res == nil {
		err = fmt.Errorf("%w: sign-up returned no result", ErrProviderContract)
	}
	if err != nil {
		err = classifyProviderError(err)
		if errors.Is(err, ErrVerificationRequired) {
			m.metrics.Inc(MetricSignUpVerificationRequired)
		} else {
			m.metrics.Inc(MetricSignUpFailure)
		}
		m.logger.Info("sign-up failed", "error", err)
		m.emitAudit(ctx, auditEventSignUpFailure, "", req.Role, false, err, auditDetail{})
		return err
	}

	if res.Session == nil {
		m.metrics.Inc(MetricSignUpVerificationRequired)
		m.logger.Info("sign-up awaiting confirmation", "user_id", res.Identity.ID)
		m.emitAudit(ctx, auditEventSignUpVerification, res.Identity.ID, req.Role, true, nil, auditDetail{})
		return ErrVerificationRequired
	}

	if !m.appliedSince(epoch, res.Session.Identity.ID) {
		m.applyProviderSession(ctx, res.Session)
	}

	m.metrics.Inc(MetricSignUpSuccess)
	m.logger.Info("sign-up succeeded", "user_id", res.Session.Identity.ID, "role", req.Role.String())
	m.emitAudit(ctx, auditEventSignUpSuccess, res.Session.Identity.ID, req.Role, true, nil, auditDetail{})
	return nil
}

// LoginWithOAuthProvider starts a redirect login and returns the URL to open.
// The Session changes only when the provider later delivers SIGNED_IN.
func (m *Manager) LoginWithOAuthProvider(ctx context.Context, provider string) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !m.cfg.oauthAllowed(provider) {
		m.metrics.Inc(MetricOAuthFailure)
		m.emitAudit(ctx, auditEventOAuthFailure, "", RoleNone, false, ErrOAuthProviderUnsupported, auditDetail{provider: provider})
		return "", ErrOAuthProviderUnsupported
	}

	authURL, err := m.provider.SignInWithOAuth(ctx, provider, m.cfg.OAuth.RedirectURL)
	if err == nil && authURL == "" {
		err = fmt.Errorf("%w: oauth returned no redirect", ErrProviderContract)
	}
	if err != nil {
		err = classifyProviderError(err)
		m.metrics.Inc(MetricOAuthFailure)
		m.logger.Info("oauth start failed", "provider", provider, "error", err)
		m.emitAudit(ctx, auditEventOAuthFailure, "", RoleNone, false, err, auditDetail{provider: provider})
		return "", err
	}

	m.metrics.Inc(MetricOAuthStarted)
	m.emitAudit(ctx, auditEventOAuthStarted, "", RoleNone, true, nil, auditDetail{provider: provider})
	return authURL, nil
}

// Logout asks the provider to end the session and then clears the local
// Session. The local Session reaches Anonymous even when the remote call fails;
// that failure is logged and counted. Before Start and after Close, Logout does
// nothing.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.ready(); err != nil {
		m.logger.Debug("logout ignored", "error", err)
		return
	}

	m.mu.Lock()
	m.loggingOut++
	cur := m.current()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.loggingOut--
		m.mu.Unlock()
	}()

	userID := ""
	if cur.Identity != nil {
		userID = cur.Identity.ID
	}

	if err := m.provider.SignOut(ctx); err != nil {
		m.metrics.Inc(MetricLogoutRemoteFailure)
		m.logger.Warn("remote sign-out failed", "user_id", userID, "error", err)
		m.emitAudit(ctx, auditEventLogoutRemoteFailure, userID, RoleNone, false, classifyProviderError(err), auditDetail{})
	}

	m.teardown(ctx, EndReasonLogout)

	m.metrics.Inc(MetricLogout)
	m.emitAudit(ctx, auditEventLogout, userID, RoleNone, true, nil, auditDetail{})
}

// RefreshProfile re-reads the profile of the current identity. The identity is
// never changed. A missing row clears the Profile; any other failure keeps the
// previous Profile and returns an error wrapping [ErrProfileFetchFailed]. The
// role of an identity is fixed once observed; a changed stored role is ignored
// until the next sign-in.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	if err := m.ready(); err != nil {
		return err
	}

	m.mu.Lock()
	cur := m.current()
	if cur.Identity == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	id := cur.Identity.ID
	epoch := m.epoch
	m.mu.Unlock()

	m.metrics.Inc(MetricProfileRefresh)
	prof, err := m.fetchProfile(ctx, id)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.epoch != epoch {
		return nil
	}
	cur = m.current()
	if cur.Identity == nil || cur.Identity.ID != id {
		return nil
	}

	prof = m.admitProfile(ctx, id, cur.Profile, prof)
	if profileEqual(cur.Profile, prof) {
		return nil
	}

	next := cur
	next.Profile = prof
	snap := m.publish(next)
	m.notify.publish(SessionEvent{Type: ProfileChanged, Session: snap.session, View: snap.view})
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

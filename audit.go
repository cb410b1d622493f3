package mcloones

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventSignUpSuccess       = "signup_success"
	auditEventSignUpVerification  = "signup_verification_required"
	auditEventSignUpFailure       = "signup_failure"
	auditEventOAuthStarted        = "oauth_started"
	auditEventOAuthFailure        = "oauth_failure"
	auditEventLogout              = "logout"
	auditEventLogoutRemoteFailure = "logout_remote_failure"
	auditEventSessionRestored     = "session_restored"
	auditEventSessionEnded        = "session_ended"
	auditEventProfileFetchFailure = "profile_fetch_failure"
	auditEventRoleChangeRejected  = "role_change_rejected"
)

// AuditErrorCode is the stable error string recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrVerification        AuditErrorCode = "verification_required"
	auditErrProviderUnavailable AuditErrorCode = "provider_unavailable"
	auditErrProviderContract    AuditErrorCode = "provider_contract"
	auditErrInvalidSignUp       AuditErrorCode = "invalid_signup"
	auditErrRoleNotAllowed      AuditErrorCode = "role_not_allowed"
	auditErrProfileNotFound     AuditErrorCode = "profile_not_found"
	auditErrProfileFetch        AuditErrorCode = "profile_fetch_failed"
	auditErrOAuthUnsupported    AuditErrorCode = "oauth_unsupported"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrVerificationRequired):
		return auditErrVerification
	case errors.Is(err, ErrProviderUnavailable):
		return auditErrProviderUnavailable
	case errors.Is(err, ErrProviderContract):
		return auditErrProviderContract
	case errors.Is(err, ErrInvalidSignUp):
		return auditErrInvalidSignUp
	case errors.Is(err, ErrSignUpRoleNotAllowed):
		return auditErrRoleNotAllowed
	case errors.Is(err, ErrProfileNotFound):
		return auditErrProfileNotFound
	case errors.Is(err, ErrProfileFetchFailed):
		return auditErrProfileFetch
	case errors.Is(err, ErrOAuthProviderUnsupported):
		return auditErrOAuthUnsupported
	default:
		return auditErrInternal
	}
}

// auditDetail carries the action-specific fields of an audit event.
type auditDetail struct {
	reason     EndReason
	provider   string
	storedRole Role
}

func (m *Manager) emitAudit(ctx context.Context, action, userID string, role Role, success bool, err error, detail auditDetail) {
	if m.audit == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ev := AuditEvent{
		Time:     time.Now().UTC(),
		Action:   action,
		UserID:   userID,
		Success:  success,
		Code:     string(auditErrorCode(err)),
		Reason:   string(detail.reason),
		Provider: detail.provider,
	}
	if role.Valid() {
		ev.Role = role.String()
	}
	if detail.storedRole.Valid() {
		ev.StoredRole = detail.storedRole.String()
	}
	m.audit.Emit(ctx, ev)
}

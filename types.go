package mcloones

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/mcloones/mcloones/internal/audit"
)

// Role is the closed set of actor roles. The zero value RoleNone means "no role
// known yet" and never grants role-specific access.
type Role uint8

const (
	// RoleNone marks an actor without a resolved profile.
	RoleNone Role = iota
	// RoleCustomer is a restaurant guest.
	RoleCustomer
	// RoleEmployee is restaurant staff.
	RoleEmployee
	// RoleManager is staff with award and menu management rights.
	RoleManager
)

// ErrUnknownRole is returned by [ParseRole] for values outside the role set.
var ErrUnknownRole = errors.New("unknown role")

// String returns the wire name of the role ("customer", "employee", "manager"), or
// the empty string for RoleNone.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleEmployee:
		return "employee"
	case RoleManager:
		return "manager"
	case RoleNone:
		return ""
	}
	return ""
}

// Valid reports whether r is one of the three assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleEmployee, RoleManager:
		return true
	case RoleNone:
		return false
	}
	return false
}

// IsStaff reports whether the role belongs to restaurant staff.
func (r Role) IsStaff() bool {
	switch r {
	case RoleEmployee, RoleManager:
		return true
	case RoleCustomer, RoleNone:
		return false
	}
	return false
}

// ParseRole maps a stored role name onto [Role].
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer":
		return RoleCustomer, nil
	case "employee":
		return RoleEmployee, nil
	case "manager":
		return RoleManager, nil
	}
	return RoleNone, ErrUnknownRole
}

// State is the lifecycle state of the [Session].
type State uint8

const (
	// StateInitializing is the state before the initial identity check resolves.
	StateInitializing State = iota
	// StateAnonymous means no identity is signed in.
	StateAnonymous
	// StateAuthenticated means an identity is signed in. The profile may still be nil.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Identity is the opaque reference to an account at the identity provider.
type Identity struct {
	ID    string
	Email string
}

// Profile is the role and display record keyed by [Identity.ID].
type Profile struct {
	ID       string
	Role     Role
	FullName string
	Email    string
}

// Session is an immutable snapshot of the current authentication state.
// Profile is non-nil only when Identity is non-nil.
type Session struct {
	State    State
	Identity *Identity
	Profile  *Profile
}

// ProviderSession is a signed-in session as reported by the identity provider.
type ProviderSession struct {
	AccessToken string
	ExpiresAt   time.Time
	Identity    Identity
}

// AuthEventType names an identity provider state change.
type AuthEventType string

const (
	// AuthSignedIn is delivered after any successful sign-in, including OAuth completion.
	AuthSignedIn AuthEventType = "SIGNED_IN"
	// AuthSignedOut is delivered after a local or remote sign-out.
	AuthSignedOut AuthEventType = "SIGNED_OUT"
	// AuthTokenRefreshed is delivered when the access token rotates.
	AuthTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	// AuthUserUpdated is delivered when the identity's account attributes change.
	AuthUserUpdated AuthEventType = "USER_UPDATED"
)

// AuthEvent is one notification from [IdentityProvider.OnAuthStateChange].
// Session is nil for AuthSignedOut.
type AuthEvent struct {
	Type    AuthEventType
	Session *ProviderSession
}

// Subscription is a cancellable registration. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// SignUpMetadata is attached to a new identity at creation time.
type SignUpMetadata struct {
	Role     Role
	FullName string
}

// SignUpResult is returned by [IdentityProvider.SignUp]. A nil Session means the
// provider requires the account to be confirmed before granting a session.
type SignUpResult struct {
	Identity Identity
	Session  *ProviderSession
}

// IdentityProvider is the external auth service the [Manager] consumes.
//
// Implementations report expected failures by wrapping [ErrInvalidCredentials],
// [ErrVerificationRequired] or [ErrProviderUnavailable]. Handlers registered through
// OnAuthStateChange may be invoked from any goroutine, including synchronously from
// inside the other methods.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, secret string) (*ProviderSession, error)
	SignUp(ctx context.Context, email, secret string, meta SignUpMetadata) (*SignUpResult, error)
	SignInWithOAuth(ctx context.Context, provider, redirectURL string) (string, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*ProviderSession, error)
	OnAuthStateChange(handler func(AuthEvent)) Subscription
}

// ProfileStore looks up profile rows. GetProfileByID returns an error wrapping
// [ErrProfileNotFound] when no row exists.
type ProfileStore interface {
	GetProfileByID(ctx context.Context, id string) (Profile, error)
}

// SignUpRequest is the input for [Manager.SignUp].
type SignUpRequest struct {
	Email       string `validate:"required,email,max=254"`
	Secret      string `validate:"required,min=8,max=128"`
	Role        Role   `validate:"required"`
	DisplayName string `validate:"max=120"`
}

// AuditEvent is a structured audit record emitted by the manager.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the manager's audit dispatcher.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = internalaudit.SinkFunc

// AuditLogSink writes audit events as log records. Failed logins, rejected role
// changes and sessions ended by another device log at WARN.
type AuditLogSink = internalaudit.LogSink

// AuditRecorder keeps the most recent audit events in memory.
type AuditRecorder = internalaudit.Recorder

// NewAuditLogSink creates an [AuditLogSink]. A nil logger uses slog.Default.
func NewAuditLogSink(logger *slog.Logger) *AuditLogSink {
	return internalaudit.NewLogSink(logger)
}

// NewAuditRecorder creates an [AuditRecorder] holding up to capacity events.
func NewAuditRecorder(capacity int) *AuditRecorder {
	return internalaudit.NewRecorder(capacity)
}

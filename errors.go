package mcloones

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects the email/secret pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrVerificationRequired is returned when the account exists but is not yet confirmed.
	ErrVerificationRequired = errors.New("account verification required")
	// ErrProviderUnavailable is returned for network or provider-side failures.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrProfileFetchFailed marks a profile lookup failure after a successful sign-in.
	// It is logged and audited, never returned from Login.
	ErrProfileFetchFailed = errors.New("profile fetch failed")
	// ErrProfileNotFound is returned by a [ProfileStore] when no row exists.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProviderContract is returned when the provider answers outside its contract,
	// for example a nil session without an error.
	ErrProviderContract = errors.New("identity provider contract violation")
	// ErrInvalidSignUp is returned when a sign-up request fails input validation.
	ErrInvalidSignUp = errors.New("invalid sign-up request")
	// ErrSignUpRoleNotAllowed is returned when self-registration for the role is disabled.
	ErrSignUpRoleNotAllowed = errors.New("sign-up role not allowed")
	// ErrNotAuthenticated is returned by operations that need a signed-in identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrManagerNotStarted is returned when an operation runs before Start.
	ErrManagerNotStarted = errors.New("session manager not started")
	// ErrManagerClosed is returned after Close.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrOAuthProviderUnsupported is returned for OAuth providers not listed in the config.
	ErrOAuthProviderUnsupported = errors.New("oauth provider not supported")
	// ErrAccountExists is returned by SignUp when the email is already registered.
	ErrAccountExists = errors.New("account already exists")
)

// classifyProviderError folds a provider error into the expected taxonomy. Known
// sentinels pass through, contract violations stay unclassified, everything else
// (transport errors, context deadlines) is treated as the provider being unavailable.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrVerificationRequired),
		errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrProviderContract),
		errors.Is(err, ErrOAuthProviderUnsupported),
		errors.Is(err, ErrInvalidSignUp),
		errors.Is(err, ErrAccountExists):
		return err
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// IsExpected reports whether err belongs to the expected failure classes a screen
// should render inline.
func IsExpected(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrVerificationRequired) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrInvalidSignUp) ||
		errors.Is(err, ErrSignUpRoleNotAllowed) ||
		errors.Is(err, ErrAccountExists)
}

// UserMessage renders the inline message a login or sign-up screen shows for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect email or password."
	case errors.Is(err, ErrVerificationRequired):
		return "Check your email to confirm your account, then sign in."
	case errors.Is(err, ErrProviderUnavailable):
		return "We couldn't reach the server. Please try again."
	case errors.Is(err, ErrInvalidSignUp):
		return "Please enter a valid email and a password of at least 8 characters."
	case errors.Is(err, ErrSignUpRoleNotAllowed):
		return "That account type can't be created from the app."
	case errors.Is(err, ErrAccountExists):
		return "An account with that email already exists."
	default:
		return "An unexpected error occurred."
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/identity"
	"github.com/mcloones/mcloones/rewards"
)

const maxBodyBytes = 1 << 16

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

// writeError maps an operation error onto a status and a message safe to show.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	msg := mcloones.UserMessage(err)

	switch {
	case errors.Is(err, mcloones.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, mcloones.ErrVerificationRequired):
		status, code = http.StatusAccepted, "verification_required"
	case errors.Is(err, mcloones.ErrAccountExists):
		status, code = http.StatusConflict, "account_exists"
	case errors.Is(err, mcloones.ErrInvalidSignUp),
		errors.Is(err, mcloones.ErrSignUpRoleNotAllowed),
		errors.Is(err, mcloones.ErrOAuthProviderUnsupported):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, mcloones.ErrNotAuthenticated):
		status, code = http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, identity.ErrInvalidConfirmation),
		errors.Is(err, identity.ErrInvalidOAuthState):
		status, code = http.StatusBadRequest, "invalid_token"
		msg = "That link is invalid or has expired."
	case errors.Is(err, rewards.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
		msg = "You are not allowed to do that."
	case errors.Is(err, rewards.ErrInvalidAmount),
		errors.Is(err, rewards.ErrReasonRequired),
		errors.Is(err, rewards.ErrNotEmployee):
		status, code = http.StatusBadRequest, "invalid_award"
		msg = err.Error()
	case errors.Is(err, mcloones.ErrProfileNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, mcloones.ErrProviderUnavailable),
		errors.Is(err, mcloones.ErrProfileFetchFailed):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

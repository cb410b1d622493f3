package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/mcloones/mcloones/jwt"
	"github.com/mcloones/mcloones/session"
)

// RequireLiveSession verifies the bearer token and then that its server session
// still exists.
func RequireLiveSession(tokens *jwt.Manager, sessions *session.Store) func(http.Handler) http.Handler {
	return tokenGate(tokens, func(ctx context.Context, claims *jwt.AccessClaims) (bool, error) {
		if sessions == nil {
			return false, errors.New("no session store")
		}
		s, err := sessions.Get(ctx, claims.SID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return s.UserID == claims.UID, nil
	})
}

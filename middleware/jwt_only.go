package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcloones/mcloones/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access-token claims a token gate stored.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return c, ok
}

// RequireAccessToken verifies the bearer access token without any I/O.
func RequireAccessToken(tokens *jwt.Manager) func(http.Handler) http.Handler {
	return tokenGate(tokens, nil)
}

// sessionCheck reports whether the server session behind claims is live.
type sessionCheck func(ctx context.Context, claims *jwt.AccessClaims) (live bool, err error)

func tokenGate(tokens *jwt.Manager, check sessionCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := tokens.ParseAccess(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if check != nil {
				live, err := check(r.Context(), claims)
				if err != nil {
					http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
					return
				}
				if !live {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

package middleware

import (
	"context"
	"net/http"

	"github.com/mcloones/mcloones"
)

type viewContextKey struct{}

// ViewFromContext returns the view a gate stored for this request.
func ViewFromContext(ctx context.Context) (mcloones.AuthorizationView, bool) {
	v, ok := ctx.Value(viewContextKey{}).(mcloones.AuthorizationView)
	return v, ok
}

// gate reads one view, handles the loading and signed-out cases, and lets
// allow decide the rest.
func gate(viewer mcloones.Viewer, unauthenticated func(http.ResponseWriter, *http.Request), allow func(mcloones.AuthorizationView) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if viewer == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			v := viewer.CurrentView()
			switch {
			case v.Loading:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session loading", http.StatusServiceUnavailable)
				return
			case !v.IsAuthenticated:
				unauthenticated(w, r)
				return
			case allow != nil && !allow(v):
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), viewContextKey{}, v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// RequireSession passes signed-in requests and sends everyone else to
// loginPath with 303 See Other.
func RequireSession(viewer mcloones.Viewer, loginPath string) func(http.Handler) http.Handler {
	return gate(viewer, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
	}, nil)
}

// RequireCapability answers 401 when signed out and 403 when the view does not
// grant c.
func RequireCapability(viewer mcloones.Viewer, c mcloones.Capability) func(http.Handler) http.Handler {
	return gate(viewer, unauthorized, func(v mcloones.AuthorizationView) bool {
		return v.Can(c)
	})
}

// RequireRole answers 401 when signed out and 403 unless the actor holds one of
// roles.
func RequireRole(viewer mcloones.Viewer, roles ...mcloones.Role) func(http.Handler) http.Handler {
	return gate(viewer, unauthorized, func(v mcloones.AuthorizationView) bool {
		for _, r := range roles {
			if v.Role == r {
				return true
			}
		}
		return false
	})
}

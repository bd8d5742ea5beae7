package auth

import (
	"encoding/json"
	"net/http"
	"slices"
)

// DenyFunc writes the response for a request that failed authentication
// (401) or authorisation (403).
type DenyFunc func(w http.ResponseWriter, r *http.Request, status int, err error)

// Middleware authenticates each request with p and stores the actor in the
// request context. Failures are answered with deny (or a JSON default).
func Middleware(p Provider, deny DenyFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = defaultDeny
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := p.Authenticate(r)
			if err != nil {
				deny(w, r, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole lets the request through only if the actor has one of roles.
// It must run after Middleware.
func RequireRole(deny DenyFunc, roles ...Role) func(http.Handler) http.Handler {
	if deny == nil {
		deny = defaultDeny
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := FromContext(r.Context())
			if !ok {
				deny(w, r, http.StatusUnauthorized, ErrUnauthenticated)
				return
			}
			if !slices.Contains(roles, actor.Role()) {
				deny(w, r, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func defaultDeny(w http.ResponseWriter, _ *http.Request, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

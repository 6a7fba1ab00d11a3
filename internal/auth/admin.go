// ABOUTME: Admin gate middleware restricting a handler to admin principals
// ABOUTME: Mounted after HTTPAuthMiddleware, which establishes the principal

package auth

import (
	"log/slog"
	"net/http"
)

// RequireAdmin returns middleware that answers 403 unless the authenticated
// principal holds the admin role. A request with no principal gets the same
// 401 as the session guard.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := FromContext(r.Context())
			if p == nil {
				writeUnauthorized(w)
				return
			}
			if !p.IsAdmin() {
				logger.Warn("admin role required", "user", p.Username, "role", p.Role, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"detail":"admin role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

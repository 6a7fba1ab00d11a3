// ABOUTME: Session guard for REST requests and WebSocket upgrades
// ABOUTME: Extracts bearer tokens from headers or query strings and attaches the principal

package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrMissingToken means the request carried no token at all.
var ErrMissingToken = errors.New("missing token")

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(authHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		if authHeader == "" {
			return "", ErrMissingToken
		}
		return "", ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func principalFromToken(verifier TokenVerifier, token string) (*Principal, error) {
	claims, err := verifier.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Principal{Username: claims.Subject, Role: claims.Role}, nil
}

// AuthenticateRequest validates the Authorization header of r.
// It returns ErrMissingToken or ErrInvalidToken on failure.
func AuthenticateRequest(r *http.Request, verifier TokenVerifier) (*Principal, error) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return principalFromToken(verifier, token)
}

// AuthenticateQuery validates the "token" query parameter of r. Browsers
// cannot set headers on WebSocket upgrades, so the relay authenticates this way.
// It returns ErrMissingToken or ErrInvalidToken on failure.
func AuthenticateQuery(r *http.Request, verifier TokenVerifier) (*Principal, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return nil, ErrMissingToken
	}
	return principalFromToken(verifier, token)
}

// HTTPAuthMiddleware rejects requests without a valid bearer token before the
// wrapped handler runs, and attaches the Principal to the request context.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := AuthenticateRequest(r, verifier)
			if err != nil {
				logger.Debug("rejected unauthenticated request",
					"method", r.Method,
					"path", r.URL.Path,
					"reason", err.Error(),
				)
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), principal)))
		})
	}
}

// writeUnauthorized sends the same 401 body for every failure cause.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
}

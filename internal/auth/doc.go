// Package auth provides operator authentication for dockgate.
//
// # Tokens
//
// TokenService issues HS256 bearer tokens with sub, role, iat and exp claims
// and verifies them:
//
//	tokens := auth.NewTokenService(secret, 30*time.Minute)
//	token, err := tokens.Issue("admin", "admin")
//	claims, err := tokens.Verify(token)
//
// Verification failures of any kind (bad signature, wrong algorithm, malformed
// token, expiry) return the same ErrInvalidToken. There is no server-side
// revocation; a token lives until exp.
//
// When no secret is configured ResolveSecret falls back to DevSecret and logs
// a warning instead of failing startup.
//
// # Session Guard
//
// HTTPAuthMiddleware protects REST routes with the Authorization header.
// AuthenticateQuery is the WebSocket variant, reading the token query
// parameter and distinguishing ErrMissingToken from ErrInvalidToken so the
// log relay can pick a close code. The validated Principal is available via
// FromContext. RequireAdmin, stacked after the guard, additionally demands
// the admin role.
//
// # Registration and Login
//
// Service enforces single-admin bootstrap: Register succeeds only while the
// user store is empty. Login never reveals whether the username or the
// password was wrong.
package auth

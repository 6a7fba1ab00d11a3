// ABOUTME: Authenticated principal carried through request contexts
// ABOUTME: Provides WithAuth/FromContext for handlers behind the session guard

package auth

import (
	"context"
)

// Principal is the identity established by a valid bearer token.
type Principal struct {
	Username string
	// Role is carried from the token. Only the audit listing checks it.
	Role string
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == "admin"
}

type principalContextKey struct{}

// WithAuth returns a new context with the principal attached.
func WithAuth(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext retrieves the principal from ctx, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// MustFromContext retrieves the principal from ctx, panicking if not present.
// Only use it in handlers mounted behind HTTPAuthMiddleware.
func MustFromContext(ctx context.Context) *Principal {
	p := FromContext(ctx)
	if p == nil {
		panic("auth: Principal not found in context")
	}
	return p
}

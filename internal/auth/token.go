// ABOUTME: HS256 bearer tokens carrying subject and role claims
// ABOUTME: Issues time-limited tokens and verifies them with a single generic failure

package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DevSecret is the signing secret used when none is configured. Tokens signed
// with it can be forged by anyone who has read this source.
const DevSecret = "dev-secret-key"

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = 30 * time.Minute

// ErrInvalidToken is the only verification failure callers ever see. Tampered,
// malformed, wrongly signed and expired tokens are indistinguishable.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the signed payload of a bearer token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// TokenService issues and verifies bearer tokens with a process-wide secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service. A non-positive ttl selects
// DefaultTokenTTL.
func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveSecret returns the configured secret, or DevSecret with a warning
// when nothing is configured. It never fails.
func ResolveSecret(configured string, logger *slog.Logger) []byte {
	if configured != "" {
		return []byte(configured)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("!!! no signing secret configured, using the well-known development secret !!!",
		"secret", "dev-secret-key",
		"fix", "set auth.secret_key or DOCKGATE_SECRET_KEY",
	)
	return []byte(DevSecret)
}

// TTL returns the lifetime given to issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for subject with role. Claims carry whole seconds, so
// iat is now rounded up to the next second and exp is exactly iat+TTL: a
// token is never rejected before TTL has elapsed and lives at most one
// second longer.
func (s *TokenService) Issue(subject, role string) (string, error) {
	issued := issuedAt(s.now())
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func issuedAt(now time.Time) time.Time {
	whole := now.Truncate(time.Second)
	if whole.Before(now) {
		whole = whole.Add(time.Second)
	}
	return whole
}

// Verify checks the signature and expiry of tokenString. A token is valid
// only while now is strictly before its exp claim.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ABOUTME: Login and single-admin bootstrap registration
// ABOUTME: Orchestrates the user store, password hasher and token service

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/2389/dockgate/internal/password"
	"github.com/2389/dockgate/internal/users"
)

// Service errors
var (
	ErrRegistrationClosed = errors.New("registration not allowed: a user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("username and password are required")
)

// MinPasswordLength is the minimum password length accepted at registration.
const MinPasswordLength = 8

// TokenTypeBearer is the token_type reported by Login.
const TokenTypeBearer = "bearer"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ValidationError describes a malformed registration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UserStore is the subset of users.Store the service needs.
type UserStore interface {
	FindByUsername(username string) (users.User, bool)
	Count() int
	Append(ctx context.Context, user users.User) error
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	Username    string
	Role        users.Role
}

// Service implements registration and login.
type Service struct {
	users  UserStore
	hasher *password.Hasher
	tokens *TokenService
	logger *slog.Logger

	// registerMu makes the emptiness check and the append one step, so two
	// concurrent bootstraps cannot both succeed.
	registerMu sync.Mutex
}

// NewService creates an auth service.
func NewService(store UserStore, hasher *password.Hasher, tokens *TokenService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  store,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With("component", "auth"),
	}
}

// RegistrationOpen reports whether the store is still in its bootstrap state.
func (s *Service) RegistrationOpen() bool {
	return s.users.Count() == 0
}

// Register creates the first admin user. Once any user exists it always
// returns ErrRegistrationClosed, whatever the payload.
func (s *Service) Register(ctx context.Context, username, pw string) error {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	if !s.RegistrationOpen() {
		return ErrRegistrationClosed
	}

	if err := validateRegistration(username, pw); err != nil {
		return err
	}
	if _, exists := s.users.FindByUsername(username); exists {
		return &ValidationError{Field: "username", Message: "already exists"}
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	err = s.users.Append(ctx, users.User{
		Username:     username,
		PasswordHash: hash,
		Role:         users.RoleAdmin,
	})
	if errors.Is(err, users.ErrDuplicateUsername) {
		return &ValidationError{Field: "username", Message: "already exists"}
	}
	if err != nil {
		return err
	}

	s.logger.Info("bootstrap admin registered, registration is now closed", "username", username)
	return nil
}

func validateRegistration(username, pw string) error {
	if !usernamePattern.MatchString(username) {
		return &ValidationError{
			Field:   "username",
			Message: "must be 3-32 characters of letters, digits, '_' or '-'",
		}
	}
	if len(pw) < MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}
	}
	if len(pw) > password.MaxPasswordBytes {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at most %d bytes", password.MaxPasswordBytes),
		}
	}
	return nil
}

// Login verifies the credentials and issues a token. Empty fields return
// ErrMissingCredentials before the store is consulted. Unknown users and wrong
// passwords both return ErrInvalidCredentials after one hash comparison.
func (s *Service) Login(ctx context.Context, username, pw string) (*LoginResult, error) {
	if username == "" || pw == "" {
		return nil, ErrMissingCredentials
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, ok := s.users.FindByUsername(username)
	if !ok {
		s.hasher.DummyVerify(pw)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(pw, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	return &LoginResult{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		Username:    user.Username,
		Role:        user.Role,
	}, nil
}

// ABOUTME: File-backed credential store for operator accounts
// ABOUTME: Loads users.json, looks users up and appends with atomic rewrites

package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Role is the authorization role carried by a user.
type Role string

const RoleAdmin Role = "admin"

// User is a single persisted account.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password"`
	Role         Role   `json:"role"`
}

// StorageError reports that the user file could not be written.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("user store %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// LoadWarning reports a user file that exists but could not be read or
// parsed. The store continues with an empty user list.
type LoadWarning struct {
	Path string
	Err  error
}

func (e *LoadWarning) Error() string {
	return fmt.Sprintf("ignoring unreadable user file %s: %v", e.Path, e.Err)
}

func (e *LoadWarning) Unwrap() error { return e.Err }

// ErrDuplicateUsername is returned by Append when the username is taken.
var ErrDuplicateUsername = errors.New("username already exists")

// Store is the in-memory view of the user file.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	users []User

	// writeFile is swapped in tests to simulate disk failures.
	writeFile func(path string, data []byte) error
}

// NewStore creates a store backed by path. Call Load before use.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:      path,
		logger:    logger.With("component", "users"),
		writeFile: writeFileAtomic,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory users with the file contents. A missing file
// yields an empty store and no error. An unreadable or corrupt file yields an
// empty store and a *LoadWarning; the store stays usable.
func (s *Store) Load(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loaded, err := readUsers(s.path)

	s.mu.Lock()
	s.users = loaded
	snapshot := append([]User(nil), s.users...)
	s.mu.Unlock()

	if err != nil {
		return snapshot, err
	}
	s.logger.Debug("loaded users", "path", s.path, "count", len(snapshot))
	return snapshot, nil
}

func readUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []User{}, nil
	}
	if err != nil {
		return []User{}, &LoadWarning{Path: path, Err: err}
	}

	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return []User{}, &LoadWarning{Path: path, Err: err}
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// FindByUsername returns the first user whose name matches exactly.
func (s *Store) FindByUsername(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

// Count returns the number of users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Users returns a copy of all users in file order.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]User(nil), s.users...)
}

// Append adds user and rewrites the file. If the write fails the user is
// removed again and a *StorageError is returned, so the store never reports a
// user that was not durably saved.
func (s *Store) Append(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return ErrDuplicateUsername
		}
	}

	prev := s.users
	next := make([]User, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, user)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return &StorageError{Path: s.path, Err: err}
	}
	if err := s.writeFile(s.path, data); err != nil {
		s.logger.Error("failed to persist users", "path", s.path, "error", err)
		return &StorageError{Path: s.path, Err: err}
	}

	s.users = next
	s.logger.Info("user added", "username", user.Username, "role", user.Role)
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers observe either the previous or the new file, never a partial one.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating user file directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary user file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temporary user file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temporary user file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temporary user file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming user file into place: %w", err)
	}
	return nil
}

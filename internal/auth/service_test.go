// ABOUTME: Tests for registration bootstrap and login
// ABOUTME: Covers the closed state, validation, generic failures and lookup ordering

package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/dockgate/internal/password"
	"github.com/2389/dockgate/internal/users"
)

// countingStore wraps a real store and counts lookups.
type countingStore struct {
	*users.Store
	lookups atomic.Int32
}

func (c *countingStore) FindByUsername(username string) (users.User, bool) {
	c.lookups.Add(1)
	return c.Store.FindByUsername(username)
}

func newTestService(t *testing.T) (*Service, *countingStore, *TokenService) {
	t.Helper()
	store := users.NewStore(filepath.Join(t.TempDir(), "users.json"), nil)
	_, err := store.Load(context.Background())
	require.NoError(t, err)

	cs := &countingStore{Store: store}
	tokens := NewTokenService(testSecret, time.Hour)
	return NewService(cs, password.NewHasher(bcrypt.MinCost), tokens, nil), cs, tokens
}

func TestService_RegisterThenLogin(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	require.True(t, svc.RegistrationOpen())
	require.NoError(t, svc.Register(ctx, "admin", "adminadmin"))
	assert.False(t, svc.RegistrationOpen())

	res, err := svc.Login(ctx, "admin", "adminadmin")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)

	claims, err := tokens.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestService_RegisterClosedRegardlessOfPayload(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "admin", "adminadmin"))

	for _, payload := range [][2]string{
		{"x", "whatever1"},
		{"", ""},
		{"admin", "adminadmin"},
		{"valid_name", "a-long-valid-password"},
	} {
		err := svc.Register(ctx, payload[0], payload[1])
		assert.ErrorIs(t, err, ErrRegistrationClosed, "payload %v", payload)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		field    string
	}{
		{"short username", "ab", "adminadmin", "username"},
		{"long username", "abcdefghijabcdefghijabcdefghijabc", "adminadmin", "username"},
		{"bad characters", "ad min", "adminadmin", "username"},
		{"short password", "admin", "short", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			err := svc.Register(context.Background(), tt.username, tt.password)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, svc.RegistrationOpen(), "failed registration must not close bootstrap")
		})
	}
}

func TestService_ConcurrentBootstrapSingleWinner(t *testing.T) {
	svc, cs, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var wins, closed atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := svc.Register(ctx, "admin"+string(rune('a'+i)), "adminadmin")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrRegistrationClosed):
				closed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), closed.Load())
	assert.Equal(t, 1, cs.Count())
}

func TestService_LoginMissingFieldsSkipsLookup(t *testing.T) {
	svc, cs, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "admin", "adminadmin"))
	before := cs.lookups.Load()

	_, err := svc.Login(ctx, "", "adminadmin")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = svc.Login(ctx, "admin", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	assert.Equal(t, before, cs.lookups.Load(), "no lookup before rejecting empty fields")
}

func TestService_LoginFailuresIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "admin", "adminadmin"))

	_, wrongPassword := svc.Login(ctx, "admin", "wrong")
	_, unknownUser := svc.Login(ctx, "nonexistent", "password")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestService_RegisterStorageFailure(t *testing.T) {
	dir := t.TempDir()
	store := users.NewStore(filepath.Join(dir, "users.json"), nil)
	_, err := store.Load(context.Background())
	require.NoError(t, err)
	svc := NewService(store, password.NewHasher(bcrypt.MinCost), NewTokenService(testSecret, time.Hour), nil)

	// Make the target path a directory so the rename fails.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "users.json"), 0o700))

	err = svc.Register(context.Background(), "admin", "adminadmin")
	var storageErr *users.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.True(t, svc.RegistrationOpen())
}

// ABOUTME: Tests for principal propagation through contexts

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_RoundTrip(t *testing.T) {
	p := &Principal{Username: "admin", Role: "admin"}
	ctx := WithAuth(context.Background(), p)

	assert.Same(t, p, FromContext(ctx))
	assert.Same(t, p, MustFromContext(ctx))
	assert.True(t, p.IsAdmin())
}

func TestContext_Missing(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Panics(t, func() { MustFromContext(context.Background()) })

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.IsAdmin())
}

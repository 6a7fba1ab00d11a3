package runtime

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_LifecycleAndNotFound(t *testing.T) {
	ctx := context.Background()
	f := &Fake{Containers: []Container{{ID: "abc", Name: "web", Status: "running"}}}

	require.NoError(t, f.Stop(ctx, "abc"))
	list, err := f.ListContainers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "exited", list[0].Status)

	require.NoError(t, f.Remove(ctx, "web"))
	assert.ErrorIs(t, f.Restart(ctx, "abc"), ErrNotFound)
	assert.Equal(t, []string{"stop abc", "list_containers", "remove web", "restart abc"}, f.Calls())
}

func TestFake_ForcedError(t *testing.T) {
	f := &Fake{Err: errors.New("daemon down")}

	_, err := f.ListImages(context.Background())
	var upstream *UpstreamError
	assert.ErrorAs(t, err, &upstream)
}

func TestFake_LogsHonoursTail(t *testing.T) {
	f := &Fake{
		Containers: []Container{{ID: "abc"}},
		LogLines:   map[string][]string{"abc": {"1", "2", "3"}},
	}

	s, err := f.Logs(context.Background(), "abc", LogOptions{Tail: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, readAll(t, s))
	assert.Equal(t, 1, f.LogOpens())
}

func TestFakeLogStream_CloseUnblocksPush(t *testing.T) {
	s := NewFakeLogStream(0)
	done := make(chan bool)
	go func() { done <- s.Push("x") }()

	require.NoError(t, s.Close())
	assert.False(t, <-done)

	_, err := s.Next()
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

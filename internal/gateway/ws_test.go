// ABOUTME: Tests for the log streaming route as mounted on the gateway
// ABOUTME: Confirms the upgrade survives the middleware stack and uses login tokens

package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dockgate/internal/logstream"
)

func (tg *testGateway) dialLogs(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := "ws" + strings.TrimPrefix(tg.server.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func TestLogRoute_StreamsWithLoginToken(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)
	tg.fake.LogLines = map[string][]string{"abc123": {"booting", "ready"}}

	conn := tg.dialLogs(t, "/ws/logs/local/abc123?token="+token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		got = append(got, string(data))
	}
	assert.Equal(t, []string{"booting", "ready"}, got)
}

func TestLogRoute_RejectsMissingToken(t *testing.T) {
	tg := newTestGateway(t)
	tg.bootstrap(t)

	conn := tg.dialLogs(t, "/ws/logs/local/abc123")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	var ce websocket.CloseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, logstream.StatusMissingToken, ce.Code)
	assert.Zero(t, tg.fake.LogOpens())
}

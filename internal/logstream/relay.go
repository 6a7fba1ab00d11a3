// ABOUTME: WebSocket log relay between runtime log streams and browser clients
// ABOUTME: Authenticates per connection, maps failures to close codes and cleans up on disconnect

package logstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/2389/dockgate/internal/auth"
	"github.com/2389/dockgate/internal/runtime"
)

// Application close codes sent to the peer.
const (
	StatusMissingToken      websocket.StatusCode = 4400
	StatusInvalidToken      websocket.StatusCode = 4401
	StatusNodeNotFound      websocket.StatusCode = 4404
	StatusContainerNotFound websocket.StatusCode = 4410
	StatusUpstreamError     websocket.StatusCode = 4500
)

// Defaults applied by NewRelay when the Config leaves a field at zero.
const (
	DefaultTail         = 100
	DefaultBufferLines  = 256
	DefaultWriteTimeout = 10 * time.Second
)

var containerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Nodes resolves a node name to its runtime client.
type Nodes interface {
	Get(name string) (runtime.Client, bool)
}

// Config controls relay behaviour.
type Config struct {
	// Tail is how many recent lines are replayed before following.
	Tail int
	// BufferLines bounds the lines read ahead of the socket. When the buffer
	// is full the relay stops reading from the source.
	BufferLines int
	// WriteTimeout bounds each frame write. A peer that stops reading is
	// disconnected once it expires.
	WriteTimeout time.Duration
	// AllowedOrigins lists browser origins permitted to connect. Empty or
	// containing "*" allows any origin.
	AllowedOrigins []string
}

// Relay is an http.Handler serving /ws/logs/{node}/{container_id}.
type Relay struct {
	nodes    Nodes
	verifier auth.TokenVerifier
	cfg      Config
	accept   websocket.AcceptOptions
	logger   *slog.Logger

	active atomic.Int64
}

// NewRelay creates a relay over nodes, authenticating with verifier.
func NewRelay(nodes Nodes, verifier auth.TokenVerifier, cfg Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tail <= 0 {
		cfg.Tail = DefaultTail
	}
	if cfg.BufferLines <= 0 {
		cfg.BufferLines = DefaultBufferLines
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	return &Relay{
		nodes:    nodes,
		verifier: verifier,
		cfg:      cfg,
		accept:   acceptOptions(cfg.AllowedOrigins),
		logger:   logger.With("component", "logstream"),
	}
}

// acceptOptions turns CORS-style origins ("https://app.example.com") into the
// host patterns the websocket library matches against.
func acceptOptions(origins []string) websocket.AcceptOptions {
	if len(origins) == 0 {
		return websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	var hosts []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		if o != "" {
			hosts = append(hosts, o)
		}
	}
	return websocket.AcceptOptions{OriginPatterns: hosts}
}

// Active returns the number of connections currently streaming.
func (rl *Relay) Active() int64 {
	return rl.active.Load()
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	node := r.PathValue("node")
	containerID := r.PathValue("container_id")
	logger := rl.logger.With("session", uuid.NewString(), "node", node, "container", containerID)

	// The upgrade is always accepted so that failures can be reported with
	// close codes the browser can read.
	conn, err := websocket.Accept(w, r, &rl.accept)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	principal, err := auth.AuthenticateQuery(r, rl.verifier)
	if err != nil {
		logger.Warn("log stream rejected", "reason", err.Error(), "remote_addr", r.RemoteAddr)
		if errors.Is(err, auth.ErrMissingToken) {
			_ = conn.Close(StatusMissingToken, "missing token")
		} else {
			_ = conn.Close(StatusInvalidToken, "invalid token")
		}
		return
	}
	logger = logger.With("user", principal.Username)

	client, ok := rl.nodes.Get(node)
	if !ok {
		_ = conn.Close(StatusNodeNotFound, "node not found")
		return
	}
	if !containerIDPattern.MatchString(containerID) {
		_ = conn.Close(StatusContainerNotFound, "container not found")
		return
	}

	rl.active.Add(1)
	defer rl.active.Add(-1)

	// CloseRead discards peer messages and cancels ctx once the peer goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	logger.Info("log stream opened")
	started := time.Now()

	stream, err := client.Logs(ctx, containerID, runtime.LogOptions{Tail: rl.cfg.Tail, Follow: true})
	if err != nil {
		rl.finish(ctx, conn, logger, err)
		return
	}
	defer stream.Close()

	err = rl.pump(ctx, conn, stream)
	rl.finish(ctx, conn, logger, err)
	logger.Info("log stream closed", "duration", time.Since(started).Round(time.Millisecond))
}

// pump forwards lines until the source or the peer ends. It returns the
// source's terminal error, a context error on disconnect, or a write error.
func (rl *Relay) pump(ctx context.Context, conn *websocket.Conn, stream runtime.LogStream) error {
	lines := make(chan string, rl.cfg.BufferLines)
	srcErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			line, err := stream.Next()
			if err != nil {
				srcErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				srcErr <- ctx.Err()
				return
			}
		}
	}()

	stop := func(err error) error {
		// Closing the source unblocks a reader parked in Next.
		_ = stream.Close()
		<-srcErr
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return stop(ctx.Err())
		case line, ok := <-lines:
			if !ok {
				return <-srcErr
			}
			wctx, wcancel := context.WithTimeout(ctx, rl.cfg.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, []byte(line))
			wcancel()
			if err != nil {
				return stop(&writeError{err: err})
			}
		}
	}
}

type writeError struct{ err error }

func (e *writeError) Error() string { return "write frame: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// finish reports the terminal condition to the peer with the matching close code.
func (rl *Relay) finish(ctx context.Context, conn *websocket.Conn, logger *slog.Logger, err error) {
	var werr *writeError
	switch {
	case errors.Is(err, io.EOF):
		_ = conn.Close(websocket.StatusNormalClosure, "end of stream")
	case ctx.Err() != nil:
		logger.Debug("peer disconnected")
	case errors.As(err, &werr):
		logger.Warn("peer too slow, dropping connection", "error", err)
	case errors.Is(err, runtime.ErrNotFound):
		rl.sendError(ctx, conn, "container not found")
		_ = conn.Close(StatusContainerNotFound, "container not found")
	default:
		logger.Error("log source failed", "error", err)
		rl.sendError(ctx, conn, err.Error())
		_ = conn.Close(StatusUpstreamError, "upstream error")
	}
}

func (rl *Relay) sendError(ctx context.Context, conn *websocket.Conn, msg string) {
	wctx, cancel := context.WithTimeout(ctx, rl.cfg.WriteTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, []byte("Error: "+msg))
}

// ABOUTME: Gateway orchestrator that wires auth, runtime nodes, audit and the log relay
// ABOUTME: Owns the HTTP server lifecycle over TCP or a Tailscale tsnet listener

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/dockgate/internal/auth"
	"github.com/2389/dockgate/internal/config"
	"github.com/2389/dockgate/internal/logstream"
	"github.com/2389/dockgate/internal/password"
	"github.com/2389/dockgate/internal/runtime"
	"github.com/2389/dockgate/internal/store"
	"github.com/2389/dockgate/internal/users"
)

// Gateway orchestrates the dockgate server components.
type Gateway struct {
	config      *config.Config
	users       *users.Store
	auth        *auth.Service
	tokens      *auth.TokenService
	nodes       *runtime.Registry
	audit       store.AuditStore
	relay       *logstream.Relay
	handler     http.Handler
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// stopStreams cancels the base context of every request, which ends
	// hijacked WebSocket connections that http.Server.Shutdown does not track.
	stopStreams context.CancelFunc
}

type options struct {
	registry     *runtime.Registry
	tokenOptions []auth.TokenOption
}

// Option customises New.
type Option func(*options)

// WithRegistry supplies runtime clients instead of dialling cfg.Nodes.
func WithRegistry(r *runtime.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithTokenOptions passes options through to the token service.
func WithTokenOptions(opts ...auth.TokenOption) Option {
	return func(o *options) { o.tokenOptions = append(o.tokenOptions, opts...) }
}

// initUsers loads the credential file. A corrupt file is logged and the
// gateway starts with an empty store, which reopens bootstrap registration.
func initUsers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*users.Store, error) {
	us := users.NewStore(cfg.Auth.UsersFile, logger)
	loaded, err := us.Load(ctx)
	var warn *users.LoadWarning
	switch {
	case errors.As(err, &warn):
		logger.Warn("user file unreadable, starting with no users", "path", warn.Path, "error", warn.Err)
	case err != nil:
		return nil, fmt.Errorf("loading users: %w", err)
	}
	if len(loaded) == 0 {
		logger.Warn("no users registered, POST /auth/register is open for the first admin")
	}
	for _, u := range loaded {
		if !password.Known(u.PasswordHash) {
			logger.Error("unrecognised password hash format, this user cannot log in",
				"path", us.Path(), "username", u.Username)
		}
	}
	logger.Info("users loaded", "path", us.Path(), "count", len(loaded))
	return us, nil
}

// initAudit opens the audit database, or returns nil when auditing is off.
func initAudit(cfg *config.Config, logger *slog.Logger) (store.AuditStore, error) {
	if cfg.Audit.Path == "" {
		logger.Info("audit log disabled")
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Audit.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}
	return s, nil
}

// initRegistry creates one Docker client per configured node.
func initRegistry(cfg *config.Config, logger *slog.Logger) (*runtime.Registry, error) {
	clients := make(map[string]runtime.Client, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		c, err := runtime.NewDockerClient(n.Host, logger.With("node", n.Name))
		if err != nil {
			for _, opened := range clients {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("node %s: %w", n.Name, err)
		}
		clients[n.Name] = c
	}
	return runtime.NewRegistry(clients), nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	us, err := initUsers(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	nodes := o.registry
	if nodes == nil {
		nodes, err = initRegistry(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	audit, err := initAudit(cfg, logger)
	if err != nil {
		_ = nodes.Close()
		return nil, err
	}

	tokens := auth.NewTokenService(auth.ResolveSecret(cfg.Auth.SecretKey, logger), cfg.Auth.TokenTTL, o.tokenOptions...)
	hasher := password.NewHasher(cfg.Auth.BcryptCost)
	logger.Info("auth configured", "bcrypt_cost", hasher.Cost(), "token_ttl", tokens.TTL())

	gw := &Gateway{
		config: cfg,
		users:  us,
		auth:   auth.NewService(us, hasher, tokens, logger),
		tokens: tokens,
		nodes:  nodes,
		audit:  audit,
		relay: logstream.NewRelay(nodes, tokens, logstream.Config{
			Tail:           cfg.Logs.Tail,
			BufferLines:    cfg.Logs.BufferLines,
			WriteTimeout:   cfg.Logs.WriteTimeout,
			AllowedOrigins: cfg.Server.CORSOrigins,
		}, logger),
		logger: logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)
	gw.handler = gw.wrapMiddleware(mux)

	baseCtx, stopStreams := context.WithCancel(context.Background())
	gw.stopStreams = stopStreams
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	return gw, nil
}

// registerRoutes mounts every endpoint. Routes behind guard require a bearer token.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	guard := auth.HTTPAuthMiddleware(g.tokens, g.logger)
	guarded := func(h http.HandlerFunc) http.Handler { return guard(h) }

	// Health endpoints - no auth required
	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.HandleFunc("POST /auth/register", g.handleRegister)
	mux.HandleFunc("POST /auth/login", g.handleLogin)

	mux.HandleFunc("GET /docker/nodes", g.handleListNodes)
	mux.Handle("GET /docker/containers/{node}", guarded(g.handleListContainers))
	mux.Handle("GET /docker/images/{node}", guarded(g.handleListImages))
	mux.Handle("POST /docker/image/pull/{node}", guarded(g.handlePullImage))
	mux.Handle("DELETE /docker/image/remove/{node}/{image...}", guarded(g.handleRemoveImage))
	mux.Handle("GET /docker/stats/{node}/{container_id}", guarded(g.handleStats))
	mux.Handle("POST /docker/container/restart/{node}/{container_id}", guarded(g.containerAction(actionRestart)))
	mux.Handle("POST /docker/container/stop/{node}/{container_id}", guarded(g.containerAction(actionStop)))
	mux.Handle("POST /docker/container/remove/{node}/{container_id}", guarded(g.containerAction(actionRemove)))

	mux.Handle("GET /api/audit", guard(auth.RequireAdmin(g.logger)(http.HandlerFunc(g.handleListAudit))))

	// The relay authenticates from the query string itself so it can answer
	// with WebSocket close codes.
	mux.Handle("GET /ws/logs/{node}/{container_id}", g.relay)
}

// Handler returns the fully wrapped HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr, "nodes", g.nodes.Names())

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning an error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "dockgate", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and returns the HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
		Logf:      func(string, ...any) {},
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server, ends open log streams and
// releases node clients and the audit store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "open_log_streams", g.relay.Active())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.stopStreams()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "runtime close", g.nodes.Close())
	if g.audit != nil {
		errs = appendCloseError(errs, "audit close", g.audit.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

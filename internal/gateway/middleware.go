// ABOUTME: HTTP middleware chain for CORS, trusted host checks and request logging
// ABOUTME: Wraps the route mux before it is handed to the http.Server

package gateway

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
)

// wrapMiddleware applies, outermost first: request logging, trusted hosts, CORS.
func (g *Gateway) wrapMiddleware(next http.Handler) http.Handler {
	h := newCORS(g.config.Server.CORSOrigins).Handler(next)
	h = trustedHosts(g.config.Server.TrustedHosts, h)
	return g.requestLog(h)
}

// newCORS allows the configured origins with credentials and any method or header.
// Browsers refuse a literal "*" on credentialed responses, so a "*" entry
// echoes the request's Origin instead.
func newCORS(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	for _, o := range origins {
		if o == "*" {
			opts.AllowedOrigins = nil
			opts.AllowOriginFunc = func(string) bool { return true }
			break
		}
	}
	return cors.New(opts)
}

// trustedHosts rejects requests whose Host is not listed. An empty list or a
// "*" entry disables the check. "*.example.com" matches any subdomain.
func trustedHosts(patterns []string, next http.Handler) http.Handler {
	if len(patterns) == 0 {
		return next
	}
	for _, p := range patterns {
		if p == "*" {
			return next
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hostAllowed(patterns, r.Host) {
			sendJSONError(w, http.StatusBadRequest, "Invalid host header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hostAllowed(patterns []string, hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	for _, p := range patterns {
		p = strings.ToLower(p)
		if suffix, ok := strings.CutPrefix(p, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == p {
			return true
		}
	}
	return false
}

// statusRecorder captures the response status for logging. It forwards
// Hijack so WebSocket upgrades keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestLog tags each request with an ID and logs it once it completes.
func (g *Gateway) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)

		g.logger.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Microsecond),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// ABOUTME: Liveness and readiness endpoints
// ABOUTME: Readiness pings every runtime node and the audit database and reports failures

package gateway

import (
	"context"
	"net/http"
	"time"
)

// readyTimeout bounds the node pings behind /health/ready.
const readyTimeout = 3 * time.Second

// handleRoot answers the status check browser clients call on load.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 when every node and the audit database answer a
// ping, 503 naming the failures otherwise.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failures := g.nodes.Ping(ctx)
	var auditErr error
	if g.audit != nil {
		auditErr = g.audit.Ping(ctx)
	}
	if len(failures) == 0 && auditErr == nil {
		sendJSON(w, http.StatusOK, map[string]any{"status": "ready", "nodes": len(g.nodes.Names())})
		return
	}

	down := make(map[string]string, len(failures))
	for name, err := range failures {
		g.logger.Warn("node not ready", "node", name, "error", err)
		down[name] = "unreachable"
	}
	body := map[string]any{"status": "not ready", "nodes": down}
	if auditErr != nil {
		g.logger.Warn("audit database not ready", "error", auditErr)
		body["audit"] = "unreachable"
	}
	sendJSON(w, http.StatusServiceUnavailable, body)
}

// ABOUTME: Audit recording helper and the GET /api/audit listing handler
// ABOUTME: Recording failures are logged and never fail the request being audited

package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/dockgate/internal/auth"
	"github.com/2389/dockgate/internal/store"
)

// auditWriteTimeout bounds an audit insert so a locked database cannot stall
// the handler that triggered it.
const auditWriteTimeout = 2 * time.Second

// recordAudit fills in the actor and remote address and appends e. The
// request's own context is not used so a client hanging up mid-response
// does not lose the record.
func (g *Gateway) recordAudit(r *http.Request, e *store.AuditEntry) {
	if g.audit == nil {
		return
	}
	if e.Actor == "" {
		if p := auth.FromContext(r.Context()); p != nil {
			e.Actor = p.Username
		}
	}
	e.RemoteAddr = r.RemoteAddr

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()
	if err := g.audit.AppendAuditLog(ctx, e); err != nil {
		g.logger.Error("failed to write audit entry", "action", e.Action, "target", e.TargetID, "error", err)
	}
}

// handleListAudit returns audit entries, newest first. Query parameters:
// limit, actor, action, target_type, target_id, since and until (RFC 3339).
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if g.audit == nil {
		sendJSONError(w, http.StatusNotFound, "Audit log disabled")
		return
	}

	q := r.URL.Query()
	var f store.AuditFilter

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("action"); v != "" {
		a := store.AuditAction(v)
		if !a.Valid() {
			sendJSONError(w, http.StatusBadRequest, "unknown action "+strconv.Quote(v))
			return
		}
		f.Action = &a
	}
	for name, dst := range map[string]**string{
		"actor":       &f.Actor,
		"target_type": &f.TargetType,
		"target_id":   &f.TargetID,
	} {
		if v := q.Get(name); v != "" {
			*dst = &v
		}
	}
	for name, dst := range map[string]**time.Time{
		"since": &f.Since,
		"until": &f.Until,
	} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				sendJSONError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
				return
			}
			*dst = &t
		}
	}

	entries, err := g.audit.ListAuditLog(r.Context(), f)
	if err != nil {
		g.logger.Error("listing audit log", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	sendJSON(w, http.StatusOK, entries)
}

// ABOUTME: HTTP handlers passing container and image operations through to runtime nodes
// ABOUTME: Validates node and container identifiers and maps runtime errors to status codes

package gateway

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/distribution/reference"

	"github.com/2389/dockgate/internal/auth"
	"github.com/2389/dockgate/internal/runtime"
	"github.com/2389/dockgate/internal/store"
)

var (
	nodeNamePattern    = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)
	containerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)
)

// pullImageRequest is the JSON body of POST /docker/image/pull/{node}.
type pullImageRequest struct {
	Image string `json:"image"`
}

// resolveNode validates the {node} path value and looks up its client.
// On failure it has already written the response.
func (g *Gateway) resolveNode(w http.ResponseWriter, r *http.Request) (string, runtime.Client, bool) {
	node := r.PathValue("node")
	if !nodeNamePattern.MatchString(node) {
		sendJSONError(w, http.StatusBadRequest, "Invalid node name")
		return "", nil, false
	}
	client, ok := g.nodes.Get(node)
	if !ok {
		sendJSONError(w, http.StatusNotFound, "Node not found")
		return "", nil, false
	}
	return node, client, true
}

// resolveContainer validates {node} and {container_id}.
func (g *Gateway) resolveContainer(w http.ResponseWriter, r *http.Request) (string, runtime.Client, string, bool) {
	node, client, ok := g.resolveNode(w, r)
	if !ok {
		return "", nil, "", false
	}
	id := r.PathValue("container_id")
	if !containerIDPattern.MatchString(id) {
		sendJSONError(w, http.StatusBadRequest, "Invalid container id")
		return "", nil, "", false
	}
	return node, client, id, true
}

// sendRuntimeError maps a runtime failure onto a response. notFound is the
// detail used for ErrNotFound; upstream errors are summarised and logged in full.
func (g *Gateway) sendRuntimeError(w http.ResponseWriter, r *http.Request, node string, err error, notFound string) {
	var upstream *runtime.UpstreamError
	switch {
	case errors.Is(err, runtime.ErrNotFound):
		sendJSONError(w, http.StatusNotFound, notFound)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
	case errors.Is(err, context.DeadlineExceeded):
		sendJSONError(w, http.StatusGatewayTimeout, "container engine timed out")
	case errors.As(err, &upstream):
		g.logger.Error("runtime call failed", "node", node, "path", r.URL.Path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "container engine error: "+upstream.Op+" failed")
	default:
		g.logger.Error("runtime call failed", "node", node, "path", r.URL.Path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleListNodes returns the configured node names. It is public so that a
// login page can offer a node picker.
func (g *Gateway) handleListNodes(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, g.nodes.Names())
}

func (g *Gateway) handleListContainers(w http.ResponseWriter, r *http.Request) {
	node, client, ok := g.resolveNode(w, r)
	if !ok {
		return
	}
	list, err := client.ListContainers(r.Context())
	if err != nil {
		g.sendRuntimeError(w, r, node, err, "Node not found")
		return
	}
	sendJSON(w, http.StatusOK, list)
}

func (g *Gateway) handleListImages(w http.ResponseWriter, r *http.Request) {
	node, client, ok := g.resolveNode(w, r)
	if !ok {
		return
	}
	list, err := client.ListImages(r.Context())
	if err != nil {
		g.sendRuntimeError(w, r, node, err, "Node not found")
		return
	}
	sendJSON(w, http.StatusOK, list)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	node, client, id, ok := g.resolveContainer(w, r)
	if !ok {
		return
	}
	stats, err := client.Stats(r.Context(), id)
	if err != nil {
		g.sendRuntimeError(w, r, node, err, "Container not found")
		return
	}
	sendJSON(w, http.StatusOK, stats)
}

// containerActionKind names a lifecycle action and its audit record.
type containerActionKind struct {
	name  string
	audit store.AuditAction
	call  func(runtime.Client, context.Context, string) error
}

var (
	actionRestart = containerActionKind{"restart", store.AuditContainerRestart, runtime.Client.Restart}
	actionStop    = containerActionKind{"stop", store.AuditContainerStop, runtime.Client.Stop}
	actionRemove  = containerActionKind{"remove", store.AuditContainerRemove, runtime.Client.Remove}
)

// containerAction returns the handler for one lifecycle action.
func (g *Gateway) containerAction(kind containerActionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		node, client, id, ok := g.resolveContainer(w, r)
		if !ok {
			return
		}
		if err := kind.call(client, r.Context(), id); err != nil {
			g.sendRuntimeError(w, r, node, err, "Container not found")
			return
		}

		g.logger.Info("container "+kind.name, "node", node, "container", id, "user", auth.MustFromContext(r.Context()).Username)
		g.recordAudit(r, &store.AuditEntry{
			Action:     kind.audit,
			TargetType: "container",
			TargetID:   node + "/" + id,
		})
		sendJSON(w, http.StatusOK, statusOK)
	}
}

// handlePullImage pulls a normalised image reference. Malformed references
// are rejected with 422 before the engine is contacted.
func (g *Gateway) handlePullImage(w http.ResponseWriter, r *http.Request) {
	node, client, ok := g.resolveNode(w, r)
	if !ok {
		return
	}

	var req pullImageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	named, err := reference.ParseNormalizedNamed(req.Image)
	if err != nil {
		sendJSONError(w, http.StatusUnprocessableEntity, "Invalid image reference: "+err.Error())
		return
	}
	ref := reference.TagNameOnly(named).String()

	if err := client.PullImage(r.Context(), ref); err != nil {
		g.sendRuntimeError(w, r, node, err, "Image not found")
		return
	}

	g.recordAudit(r, &store.AuditEntry{
		Action:     store.AuditImagePull,
		TargetType: "image",
		TargetID:   node + "/" + ref,
	})
	sendJSON(w, http.StatusOK, statusOK)
}

// handleRemoveImage force-removes an image by ID or reference. The {image...}
// wildcard admits references containing slashes such as "library/nginx:1.27".
func (g *Gateway) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	node, client, ok := g.resolveNode(w, r)
	if !ok {
		return
	}
	image := r.PathValue("image")
	if image == "" || len(image) > 255 {
		sendJSONError(w, http.StatusBadRequest, "Invalid image id")
		return
	}

	if err := client.RemoveImage(r.Context(), image); err != nil {
		g.sendRuntimeError(w, r, node, err, "Image not found")
		return
	}

	g.recordAudit(r, &store.AuditEntry{
		Action:     store.AuditImageRemove,
		TargetType: "image",
		TargetID:   node + "/" + image,
	})
	sendJSON(w, http.StatusOK, statusOK)
}

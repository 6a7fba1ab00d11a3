// ABOUTME: Tests for the container and image passthrough handlers
// ABOUTME: Drives the routes through the full middleware stack against a fake runtime

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dockgate/internal/runtime"
	"github.com/2389/dockgate/internal/store"
)

func TestListNodes_IsPublic(t *testing.T) {
	tg := newTestGateway(t)

	resp := tg.do(t, http.MethodGet, "/docker/nodes", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"local"}, decodeBody[[]string](t, resp))
}

func TestListContainers(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodGet, "/docker/containers/local", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeBody[[]runtime.Container](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, "web", list[0].Name)
	assert.Equal(t, []string{"nginx:1.27"}, list[0].Image)
}

func TestListImages(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodGet, "/docker/images/local", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []runtime.Image{{ID: "sha256:1111", RepoTags: []string{"nginx:1.27"}, Size: 1024}},
		decodeBody[[]runtime.Image](t, resp))
}

func TestNodeResolution(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	tests := []struct {
		name   string
		path   string
		status int
		detail string
	}{
		{"unknown node", "/docker/containers/remote", http.StatusNotFound, "Node not found"},
		{"invalid node", "/docker/containers/bad-node", http.StatusBadRequest, "Invalid node name"},
		{"invalid container id", "/docker/stats/local/..secret", http.StatusBadRequest, "Invalid container id"},
		{"unknown container", "/docker/stats/local/nope", http.StatusNotFound, "Container not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tg.do(t, http.MethodGet, tt.path, token, nil, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.detail, decodeBody[map[string]string](t, resp)["detail"])
		})
	}
}

func TestStats(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodGet, "/docker/stats/local/abc123", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeBody[runtime.Stats](t, resp)
	assert.InDelta(t, 12.5, stats.CPU, 0.001)
	assert.Equal(t, "1.00 KB", stats.NetworkRx)
}

func TestContainerActions(t *testing.T) {
	tests := []struct {
		path   string
		call   string
		action store.AuditAction
	}{
		{"/docker/container/restart/local/def456", "restart def456", store.AuditContainerRestart},
		{"/docker/container/stop/local/web", "stop web", store.AuditContainerStop},
		{"/docker/container/remove/local/abc123", "remove abc123", store.AuditContainerRemove},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			tg := newTestGateway(t)
			token := tg.bootstrap(t)

			resp := tg.do(t, http.MethodPost, tt.path, token, nil, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, statusOK, decodeBody[statusResponse](t, resp))
			assert.Contains(t, tg.fake.Calls(), tt.call)

			entries, err := tg.gw.audit.ListAuditLog(context.Background(), store.AuditFilter{Action: &tt.action})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "admin", entries[0].Actor)
			assert.Equal(t, "container", entries[0].TargetType)
			assert.Equal(t, "local/"+strings.Fields(tt.call)[1], entries[0].TargetID)
		})
	}
}

func TestContainerAction_NotFound(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodPost, "/docker/container/stop/local/missing", token, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Container not found", decodeBody[map[string]string](t, resp)["detail"])

	action := store.AuditContainerStop
	entries, err := tg.gw.audit.ListAuditLog(context.Background(), store.AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContainerAction_WrongMethod(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodGet, "/docker/container/stop/local/abc123", token, nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.NotContains(t, tg.fake.Calls(), "stop abc123")
}

func TestUpstreamErrorIsSummarised(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)
	tg.fake.Err = errors.New("dial unix /var/run/docker.sock: connect: permission denied")

	resp := tg.do(t, http.MethodGet, "/docker/containers/local", token, nil, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	detail := decodeBody[map[string]string](t, resp)["detail"]
	assert.Equal(t, "container engine error: list_containers failed", detail)
	assert.NotContains(t, detail, "docker.sock")
}

func TestPullImage(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodPost, "/docker/image/pull/local", token,
		jsonBody(t, map[string]string{"image": "alpine"}), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, tg.fake.Calls(), "pull docker.io/library/alpine:latest")

	action := store.AuditImagePull
	entries, err := tg.gw.audit.ListAuditLog(context.Background(), store.AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "local/docker.io/library/alpine:latest", entries[0].TargetID)
}

func TestPullImage_InvalidReference(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	for name, body := range map[string]string{
		"uppercase": `{"image":"Alpine:Latest"}`,
		"empty":     `{"image":""}`,
		"not json":  `image=alpine`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := tg.do(t, http.MethodPost, "/docker/image/pull/local", token, strings.NewReader(body), "application/json")
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	}
	for _, c := range tg.fake.Calls() {
		assert.False(t, strings.HasPrefix(c, "pull "), "unexpected engine call %q", c)
	}
}

func TestRemoveImage(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodDelete, "/docker/image/remove/local/sha256:1111", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, tg.fake.Calls(), "remove_image sha256:1111")

	resp = tg.do(t, http.MethodDelete, "/docker/image/remove/local/sha256:1111", token, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Image not found", decodeBody[map[string]string](t, resp)["detail"])
}

func TestRemoveImage_ReferenceWithSlash(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)
	tg.fake.Images = append(tg.fake.Images, runtime.Image{ID: "sha256:2222", RepoTags: []string{"library/redis:7"}})

	resp := tg.do(t, http.MethodDelete, "/docker/image/remove/local/library/redis:7", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, tg.fake.Calls(), "remove_image library/redis:7")
}

func TestDockerRoutesRequireToken(t *testing.T) {
	tg := newTestGateway(t)
	tg.bootstrap(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/docker/containers/local"},
		{http.MethodGet, "/docker/images/local"},
		{http.MethodGet, "/docker/stats/local/abc123"},
		{http.MethodPost, "/docker/container/restart/local/abc123"},
		{http.MethodPost, "/docker/container/stop/local/abc123"},
		{http.MethodPost, "/docker/container/remove/local/abc123"},
		{http.MethodPost, "/docker/image/pull/local"},
		{http.MethodDelete, "/docker/image/remove/local/sha256:1111"},
		{http.MethodGet, "/api/audit"},
	}
	for _, rt := range routes {
		resp := tg.do(t, rt.method, rt.path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", rt.method, rt.path)
	}
	assert.Empty(t, tg.fake.Calls())
}

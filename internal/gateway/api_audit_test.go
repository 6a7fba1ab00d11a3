// ABOUTME: Tests for the audit listing endpoint
// ABOUTME: Checks filtering, query validation and the disabled-store response

package gateway

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dockgate/internal/store"
)

func TestListAudit(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)
	tg.do(t, http.MethodPost, "/docker/container/restart/local/abc123", token, nil, "")
	tg.login(t, "admin", "wrong-password")

	resp := tg.do(t, http.MethodGet, "/api/audit", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := decodeBody[[]store.AuditEntry](t, resp)
	require.Len(t, entries, 4)
	assert.Equal(t, store.AuditLoginFailed, entries[0].Action)
	assert.Equal(t, store.AuditContainerRestart, entries[1].Action)
	assert.Equal(t, store.AuditRegister, entries[3].Action)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.RemoteAddr)
	}
}

func TestListAudit_Filters(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)
	tg.do(t, http.MethodPost, "/docker/container/stop/local/abc123", token, nil, "")
	tg.do(t, http.MethodPost, "/docker/container/stop/local/def456", token, nil, "")

	tests := []struct {
		name  string
		query url.Values
		want  int
	}{
		{"by action", url.Values{"action": {"container_stop"}}, 2},
		{"by target", url.Values{"target_id": {"local/def456"}}, 1},
		{"by target type", url.Values{"target_type": {"user"}}, 2},
		{"by actor", url.Values{"actor": {"someone-else"}}, 0},
		{"limit", url.Values{"limit": {"1"}}, 1},
		{"since future", url.Values{"since": {time.Now().Add(time.Hour).UTC().Format(time.RFC3339)}}, 0},
		{"until future", url.Values{"until": {time.Now().Add(time.Hour).UTC().Format(time.RFC3339)}}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tg.do(t, http.MethodGet, "/api/audit?"+tt.query.Encode(), token, nil, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Len(t, decodeBody[[]store.AuditEntry](t, resp), tt.want)
		})
	}
}

func TestListAudit_BadQuery(t *testing.T) {
	tg := newTestGateway(t)
	token := tg.bootstrap(t)

	for _, q := range []string{"limit=abc", "limit=-1", "action=drop_tables", "since=yesterday"} {
		resp := tg.do(t, http.MethodGet, "/api/audit?"+q, token, nil, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestListAudit_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Path = ""
	tg := newTestGatewayWith(t, cfg)
	token := tg.bootstrap(t)

	resp := tg.do(t, http.MethodGet, "/api/audit", token, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Audit log disabled", decodeBody[map[string]string](t, resp)["detail"])

	resp = tg.do(t, http.MethodPost, "/docker/container/restart/local/abc123", token, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListAudit_RequiresAdminRole(t *testing.T) {
	tg := newTestGateway(t)
	tg.bootstrap(t)

	viewer, err := tg.gw.tokens.Issue("viewer", "viewer")
	require.NoError(t, err)

	resp := tg.do(t, http.MethodGet, "/api/audit", viewer, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = tg.do(t, http.MethodGet, "/docker/containers/local", viewer, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

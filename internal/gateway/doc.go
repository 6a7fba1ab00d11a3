// Package gateway orchestrates the dockgate server components.
//
// # Overview
//
// The gateway owns the HTTP server and wires together the user store, the
// auth service, the runtime node registry, the audit store and the WebSocket
// log relay. New builds everything from a config.Config; Run serves until
// the context is canceled and then shuts down gracefully.
//
// # HTTP API
//
// Public:
//
//	GET    /                                   {"status":"healthy"}
//	GET    /health                             liveness
//	GET    /health/ready                       pings every node
//	POST   /auth/register                      first admin only
//	POST   /auth/login                         form or JSON credentials
//	GET    /docker/nodes                       node names
//
// Bearer token required:
//
//	GET    /docker/containers/{node}
//	GET    /docker/images/{node}
//	POST   /docker/image/pull/{node}           {"image": "nginx:1.27"}
//	DELETE /docker/image/remove/{node}/{image...}
//	GET    /docker/stats/{node}/{container_id}
//	POST   /docker/container/restart/{node}/{container_id}
//	POST   /docker/container/stop/{node}/{container_id}
//	POST   /docker/container/remove/{node}/{container_id}
//	GET    /api/audit                (admin role)
//
// Token in the query string:
//
//	GET    /ws/logs/{node}/{container_id}?token=...
//
// Errors are returned as {"detail": "..."}.
//
// # Listeners
//
// The server listens on server.http_addr, or joins a tailnet via tsnet when
// tailscale.enabled is set, optionally with HTTPS or Funnel.
package gateway

// Package logstream relays container logs to WebSocket clients.
//
// Each connection authenticates once with a token query parameter, resolves
// a node from the runtime registry and then forwards log lines as text
// frames until the source ends, the peer disconnects or a write stalls.
// Failures are reported through application close codes in the 4xxx range.
package logstream

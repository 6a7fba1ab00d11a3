// ABOUTME: Named registry of container runtime clients
// ABOUTME: Built from configuration and injected into the gateway and log relay

package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Registry maps node names to clients. It is read-only after construction.
type Registry struct {
	clients map[string]Client
	names   []string
}

// NewRegistry creates a registry over clients. The map is copied.
func NewRegistry(clients map[string]Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for name, c := range clients {
		r.clients[name] = c
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// Get returns the client registered as name.
func (r *Registry) Get(name string) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// Names returns the node names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Ping checks every node and returns the failures by node name.
func (r *Registry) Ping(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, name := range r.names {
		if err := r.clients[name].Ping(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}

// Close closes every client.
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.names {
		if err := r.clients[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Package runtime is dockgate's narrow view of a container engine.
//
// A Client covers exactly what the gateway exposes: container and image
// inventory, container lifecycle actions, image pull/remove, one-shot resource
// statistics and a followed log stream. Nodes are named Clients held in a
// Registry that is built from configuration and passed to its consumers.
//
// Failures are tagged rather than raised:
//
//	stats, err := client.Stats(ctx, id)
//	switch {
//	case errors.Is(err, runtime.ErrNotFound):   // 404
//	case errors.As(err, &upstream):             // 500, upstream.Err has detail
//	}
//
// DockerClient talks to a Docker Engine; Fake is an in-memory Client for tests.
package runtime

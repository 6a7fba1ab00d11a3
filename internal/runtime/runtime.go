// ABOUTME: Container runtime client interface, result types and tagged errors
// ABOUTME: Defines the surface the gateway and log relay call for each node

package runtime

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every error for a missing container or image.
var ErrNotFound = errors.New("not found")

// UpstreamError reports a failure inside the container engine.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("runtime %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// notFound builds an ErrNotFound error naming the resource.
func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// Container is a container summary.
type Container struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Image  []string `json:"image"`
	Status string   `json:"status"`
}

// Image is an image summary.
type Image struct {
	ID       string   `json:"id"`
	RepoTags []string `json:"repo_tags"`
	Size     int64    `json:"size"`
}

// Stats is a resource usage sample for one container. Memory is in MiB,
// network totals are formatted KiB strings.
type Stats struct {
	CPU         float64 `json:"cpu"`
	MemoryUsage float64 `json:"memory_usage"`
	MemoryLimit float64 `json:"memory_limit"`
	NetworkRx   string  `json:"network_rx"`
	NetworkTx   string  `json:"network_tx"`
}

// LogOptions selects which log lines a LogStream yields.
type LogOptions struct {
	// Tail is the number of recent lines to replay; zero or less replays all.
	Tail int
	// Follow keeps the stream open for new lines.
	Follow bool
}

// LogStream yields log lines in the order the engine produced them.
type LogStream interface {
	// Next blocks until a line is available. It returns io.EOF when the
	// stream ends normally.
	Next() (string, error)
	// Close releases the underlying connection and unblocks Next.
	Close() error
}

// Client is the set of container engine operations for one node.
type Client interface {
	ListContainers(ctx context.Context) ([]Container, error)
	ListImages(ctx context.Context) ([]Image, error)
	Stats(ctx context.Context, containerID string) (Stats, error)
	Restart(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	PullImage(ctx context.Context, ref string) error
	RemoveImage(ctx context.Context, imageID string) error
	Logs(ctx context.Context, containerID string, opts LogOptions) (LogStream, error)
	Ping(ctx context.Context) error
	Close() error
}

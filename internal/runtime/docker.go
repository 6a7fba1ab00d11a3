// ABOUTME: Docker Engine implementation of the runtime Client
// ABOUTME: Maps SDK calls onto dockgate types and tags not-found and upstream errors

package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerClient is a Client backed by a Docker Engine API endpoint.
type DockerClient struct {
	cli    *client.Client
	host   string
	logger *slog.Logger
}

// NewDockerClient connects to host (e.g. "unix:///var/run/docker.sock" or
// "tcp://10.0.0.5:2375"). An empty host uses DOCKER_HOST and the platform
// default. The API version is negotiated on first use.
func NewDockerClient(host string, logger *slog.Logger) (*DockerClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &DockerClient{
		cli:    cli,
		host:   cli.DaemonHost(),
		logger: logger.With("component", "docker", "host", cli.DaemonHost()),
	}, nil
}

// wrapErr tags engine errors. Context cancellation passes through untouched.
func wrapErr(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errdefs.IsNotFound(err) {
		return notFound(kind, id)
	}
	return &UpstreamError{Op: op, Err: err}
}

func (d *DockerClient) ListContainers(ctx context.Context) ([]Container, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, wrapErr("list containers", "node", d.host, err)
	}

	tags := d.imageTags(ctx)

	out := make([]Container, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		images := tags[c.ImageID]
		if len(images) == 0 && c.Image != "" {
			images = []string{c.Image}
		}
		out = append(out, Container{
			ID:     c.ID,
			Name:   name,
			Image:  images,
			Status: c.State,
		})
	}
	return out, nil
}

// imageTags maps image IDs to their repo tags. A failed lookup yields an
// empty map and containers fall back to the reference they were created from.
func (d *DockerClient) imageTags(ctx context.Context) map[string][]string {
	list, err := d.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		d.logger.Warn("image tag lookup failed", "error", err)
		return nil
	}
	tags := make(map[string][]string, len(list))
	for _, img := range list {
		if len(img.RepoTags) > 0 {
			tags[img.ID] = img.RepoTags
		}
	}
	return tags
}

func (d *DockerClient) ListImages(ctx context.Context) ([]Image, error) {
	list, err := d.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, wrapErr("list images", "node", d.host, err)
	}

	out := make([]Image, 0, len(list))
	for _, img := range list {
		out = append(out, Image{
			ID:       img.ID,
			RepoTags: img.RepoTags,
			Size:     img.Size,
		})
	}
	return out, nil
}

// Stats takes a non-streaming sample; the engine waits for a second reading
// so the CPU deltas are populated.
func (d *DockerClient) Stats(ctx context.Context, containerID string) (Stats, error) {
	resp, err := d.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return Stats{}, wrapErr("container stats", "container", containerID, err)
	}
	defer resp.Body.Close()

	var raw rawStats
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Stats{}, &UpstreamError{Op: "decode stats", Err: err}
	}
	return computeStats(raw), nil
}

func (d *DockerClient) Restart(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRestart(ctx, containerID, container.StopOptions{})
	return wrapErr("restart container", "container", containerID, err)
}

func (d *DockerClient) Stop(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{})
	return wrapErr("stop container", "container", containerID, err)
}

func (d *DockerClient) Remove(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	return wrapErr("remove container", "container", containerID, err)
}

// PullImage pulls ref and waits for the pull to finish. Progress messages are
// discarded; an error reported inside the progress stream fails the pull.
func (d *DockerClient) PullImage(ctx context.Context, ref string) error {
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return wrapErr("pull image", "image", ref, err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg struct {
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				d.logger.Debug("image pulled", "ref", ref)
				return nil
			}
			return wrapErr("pull image", "image", ref, err)
		}
		if msg.Error != "" {
			return &UpstreamError{Op: "pull image", Err: errors.New(msg.Error)}
		}
	}
}

func (d *DockerClient) RemoveImage(ctx context.Context, imageID string) error {
	_, err := d.cli.ImageRemove(ctx, imageID, image.RemoveOptions{Force: true, PruneChildren: true})
	return wrapErr("remove image", "image", imageID, err)
}

// Logs opens the container's combined stdout/stderr. Non-TTY containers use
// the multiplexed stream format, which is demultiplexed before splitting lines.
// Cancelling ctx or calling Close on the stream releases the connection.
func (d *DockerClient) Logs(ctx context.Context, containerID string, opts LogOptions) (LogStream, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, wrapErr("inspect container", "container", containerID, err)
	}

	tail := "all"
	if opts.Tail > 0 {
		tail = strconv.Itoa(opts.Tail)
	}

	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       tail,
	})
	if err != nil {
		return nil, wrapErr("container logs", "container", containerID, err)
	}

	if info.Config != nil && info.Config.Tty {
		return newReaderLogStream(rc, rc), nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return newReaderLogStream(pr, rc, pr), nil
}

func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return &UpstreamError{Op: "ping", Err: err}
	}
	return nil
}

func (d *DockerClient) Close() error {
	return d.cli.Close()
}

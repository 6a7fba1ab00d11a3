// ABOUTME: In-memory runtime Client for tests
// ABOUTME: Records calls, simulates lifecycle changes and feeds log streams on demand

package runtime

import (
	"context"
	"io"
	"sync"
)

// Fake is an in-memory Client. The exported fields may be set before use;
// afterwards use the methods, which are safe for concurrent callers.
type Fake struct {
	mu sync.Mutex

	Containers []Container
	Images     []Image
	StatsByID  map[string]Stats
	// LogLines holds the replayed lines for containers without a LogStreams entry.
	LogLines map[string][]string
	// LogStreams overrides Logs for specific container IDs.
	LogStreams map[string]*FakeLogStream
	// Err, when set, fails every call with an UpstreamError wrapping it.
	Err error
	// PingErr fails Ping only.
	PingErr error

	calls    []string
	logOpens int
	closed   bool
}

var _ Client = (*Fake)(nil)

func (f *Fake) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.Err != nil {
		return &UpstreamError{Op: call, Err: f.Err}
	}
	return nil
}

// Calls returns the operations invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// LogOpens returns how many log streams were successfully opened.
func (f *Fake) LogOpens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logOpens
}

func (f *Fake) indexOf(id string) int {
	for i, c := range f.Containers {
		if c.ID == id || c.Name == id {
			return i
		}
	}
	return -1
}

func (f *Fake) ListContainers(ctx context.Context) ([]Container, error) {
	if err := f.record("list_containers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Container{}, f.Containers...), nil
}

func (f *Fake) ListImages(ctx context.Context) ([]Image, error) {
	if err := f.record("list_images"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Image{}, f.Images...), nil
}

func (f *Fake) Stats(ctx context.Context, containerID string) (Stats, error) {
	if err := f.record("stats " + containerID); err != nil {
		return Stats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexOf(containerID) < 0 {
		return Stats{}, notFound("container", containerID)
	}
	return f.StatsByID[containerID], nil
}

func (f *Fake) setStatus(op, containerID, status string) error {
	if err := f.record(op + " " + containerID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(containerID)
	if i < 0 {
		return notFound("container", containerID)
	}
	f.Containers[i].Status = status
	return nil
}

func (f *Fake) Restart(ctx context.Context, containerID string) error {
	return f.setStatus("restart", containerID, "running")
}

func (f *Fake) Stop(ctx context.Context, containerID string) error {
	return f.setStatus("stop", containerID, "exited")
}

func (f *Fake) Remove(ctx context.Context, containerID string) error {
	if err := f.record("remove " + containerID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(containerID)
	if i < 0 {
		return notFound("container", containerID)
	}
	f.Containers = append(f.Containers[:i], f.Containers[i+1:]...)
	return nil
}

func (f *Fake) PullImage(ctx context.Context, ref string) error {
	if err := f.record("pull " + ref); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Images = append(f.Images, Image{ID: "sha256:" + ref, RepoTags: []string{ref}})
	return nil
}

func (f *Fake) RemoveImage(ctx context.Context, imageID string) error {
	if err := f.record("remove_image " + imageID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, img := range f.Images {
		if img.ID == imageID || containsString(img.RepoTags, imageID) {
			f.Images = append(f.Images[:i], f.Images[i+1:]...)
			return nil
		}
	}
	return notFound("image", imageID)
}

func (f *Fake) Logs(ctx context.Context, containerID string, opts LogOptions) (LogStream, error) {
	if err := f.record("logs " + containerID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.LogStreams[containerID]; ok {
		f.logOpens++
		return s, nil
	}
	if f.indexOf(containerID) < 0 {
		return nil, notFound("container", containerID)
	}

	lines := f.LogLines[containerID]
	if opts.Tail > 0 && len(lines) > opts.Tail {
		lines = lines[len(lines)-opts.Tail:]
	}
	s := NewFakeLogStream(len(lines))
	for _, l := range lines {
		s.Push(l)
	}
	s.Finish(nil)
	f.logOpens++
	return s, nil
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FakeLogStream is a LogStream fed by the test through Push and Finish.
type FakeLogStream struct {
	lines chan string
	done  chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewFakeLogStream creates a stream whose Push buffers up to buffer lines
// before blocking.
func NewFakeLogStream(buffer int) *FakeLogStream {
	return &FakeLogStream{
		lines: make(chan string, buffer),
		done:  make(chan struct{}),
	}
}

// Push queues a line. It returns false if the stream was closed by the reader.
func (s *FakeLogStream) Push(line string) bool {
	select {
	case s.lines <- line:
		return true
	case <-s.done:
		return false
	}
}

// Finish ends the stream after the queued lines. A nil err ends with io.EOF.
// Push must not be called after Finish.
func (s *FakeLogStream) Finish(err error) {
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.lines)
}

func (s *FakeLogStream) Next() (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			s.mu.Lock()
			defer s.mu.Unlock()
			return "", s.err
		}
		return line, nil
	case <-s.done:
		return "", io.ErrClosedPipe
	}
}

func (s *FakeLogStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Done is closed once the reader has closed the stream.
func (s *FakeLogStream) Done() <-chan struct{} {
	return s.done
}

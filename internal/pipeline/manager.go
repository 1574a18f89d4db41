package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/capture"
)

var (
	// ErrNotRunning is returned when stopping a camera that has no pipeline.
	ErrNotRunning = errors.New("camera is not running")
	// ErrSessionMismatch is returned when a camera is already recording
	// attendance for another session.
	ErrSessionMismatch = errors.New("camera is running for another session")
)

// OpenFunc opens the capture source for a device.
type OpenFunc func(ctx context.Context, device string) (capture.Source, error)

// RunInfo describes a running camera pipeline.
type RunInfo struct {
	ID          string    `json:"id"`
	Device      string    `json:"device"`
	Session     string    `json:"session"`
	StartedAt   time.Time `json:"started_at"`
	Frames      uint64    `json:"frames"`
	Identified  uint64    `json:"identified"`
	Viewers     int       `json:"viewers"`
	AutoStarted bool      `json:"auto_started"`
}

// Failure describes the capture error that ended the last run on a device.
type Failure struct {
	Device string    `json:"device"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

type run struct {
	id        string
	device    string
	session   attendance.Session
	startedAt time.Time
	hub       *Hub
	cancel    context.CancelFunc

	ready   chan struct{} // closed once the source is open or failed to open
	openErr error
	done    chan struct{} // closed when the loop has exited and the device is released

	frames     atomic.Uint64
	identified atomic.Uint64

	errMu   sync.Mutex
	exitErr error

	// guarded by Manager.mu
	viewers int
	auto    bool
}

// Manager owns the camera pipelines of the process, at most one per device.
type Manager struct {
	pipeline *Pipeline
	open     OpenFunc

	mu       sync.Mutex
	runs     map[string]*run
	failures map[string]Failure
}

// NewManager creates a manager running p over sources opened by open.
func NewManager(p *Pipeline, open OpenFunc) *Manager {
	return &Manager{
		pipeline: p,
		open:     open,
		runs:     make(map[string]*run),
		failures: make(map[string]Failure),
	}
}

// Start runs the pipeline on device for session. A camera auto-started by a
// viewer for the same session is kept running after its viewers leave once
// Start is called for it.
func (m *Manager) Start(device string, session attendance.Session) (RunInfo, error) {
	m.mu.Lock()
	if r, ok := m.runs[device]; ok {
		if !r.auto {
			m.mu.Unlock()
			return RunInfo{}, fmt.Errorf("%w: %s", capture.ErrDeviceBusy, device)
		}
		if r.session.ID() != session.ID() {
			m.mu.Unlock()
			return RunInfo{}, fmt.Errorf("%w: %s records %s", ErrSessionMismatch, device, r.session.ID())
		}
		r.auto = false
		m.mu.Unlock()
		<-r.ready
		if r.openErr != nil {
			return RunInfo{}, r.openErr
		}
		return m.info(r), nil
	}
	r, err := m.launchLocked(device, session, false)
	m.mu.Unlock()
	if err != nil {
		return RunInfo{}, err
	}

	<-r.ready
	if r.openErr != nil {
		return RunInfo{}, r.openErr
	}
	return m.info(r), nil
}

// launchLocked claims device, registers the run and opens the source in the
// background. m.mu must be held.
func (m *Manager) launchLocked(device string, session attendance.Session, auto bool) (*run, error) {
	id := uuid.NewString()
	release, err := capture.Acquire(device, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        id,
		device:    device,
		session:   session,
		startedAt: time.Now(),
		hub:       NewHub(),
		cancel:    cancel,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		auto:      auto,
	}
	m.runs[device] = r
	delete(m.failures, device)

	go func() {
		src, err := m.open(ctx, device)
		if err != nil {
			r.openErr = fmt.Errorf("%w: open %s: %w", ErrCaptureFailed, device, err)
			m.finish(r, r.openErr, release)
			cancel()
			close(r.ready)
			close(r.done)
			return
		}
		close(r.ready)
		slog.Info("camera started", "device", device, "run_id", id, "session", session.ID(), "auto", auto)
		m.loop(ctx, r, src, release)
	}()
	return r, nil
}

func (m *Manager) loop(ctx context.Context, r *run, src capture.Source, release func()) {
	defer close(r.done)
	defer r.cancel()

	err := m.pipeline.Run(ctx, src, r.session, func(res *Result) {
		r.frames.Add(1)
		for _, d := range res.Detections {
			if d.Match.Identified {
				r.identified.Add(1)
			}
		}
		r.hub.Publish(res.JPEG)
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		slog.Error("camera pipeline failed", "device", r.device, "run_id", r.id, "error", err)
	} else {
		slog.Info("camera stopped", "device", r.device, "run_id", r.id, "frames", r.frames.Load())
	}
	m.finish(r, err, release)
}

// finish releases the device, unregisters r and ends its viewers' streams.
// The device is released under m.mu so a concurrent Start either sees the run
// or finds the device free.
func (m *Manager) finish(r *run, err error, release func()) {
	r.errMu.Lock()
	r.exitErr = err
	r.errMu.Unlock()

	m.mu.Lock()
	release()
	if m.runs[r.device] == r {
		delete(m.runs, r.device)
	}
	if err != nil {
		m.failures[r.device] = Failure{Device: r.device, Error: err.Error(), At: time.Now()}
	}
	m.mu.Unlock()
	r.hub.Close()
}

func (r *run) err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.exitErr
}

// Stop cancels the pipeline on device and waits until the device is released.
func (m *Manager) Stop(device string) error {
	m.mu.Lock()
	r, ok := m.runs[device]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, device)
	}
	r.cancel()
	<-r.done
	return nil
}

// StopAll stops every camera.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runs := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	for _, r := range runs {
		r.cancel()
	}
	for _, r := range runs {
		<-r.done
	}
}

// Subscription is one viewer of a camera run.
type Subscription struct {
	// Frames delivers the latest annotated JPEG frames. It is closed when the
	// camera stops.
	Frames <-chan []byte

	run   *run
	once  sync.Once
	leave func()
}

// Close detaches the viewer. The camera is stopped when the last viewer of an
// auto-started camera leaves.
func (s *Subscription) Close() {
	s.once.Do(s.leave)
}

// Err returns the error that ended the camera run: nil while it is running or
// after end of stream or Stop, ErrCaptureFailed when the device failed.
func (s *Subscription) Err() error {
	return s.run.err()
}

// Subscribe attaches a viewer to the annotated frames of device, starting the
// camera for session when it is not running. Joining a camera that records
// another session fails with ErrSessionMismatch.
func (m *Manager) Subscribe(device string, session attendance.Session) (*Subscription, error) {
	m.mu.Lock()
	r, ok := m.runs[device]
	if ok && r.session.ID() != session.ID() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s records %s", ErrSessionMismatch, device, r.session.ID())
	}
	if !ok {
		var err error
		r, err = m.launchLocked(device, session, true)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}
	r.viewers++
	m.mu.Unlock()

	<-r.ready
	if r.openErr != nil {
		m.leave(r)
		return nil, r.openErr
	}

	frames, unsubscribe := r.hub.Subscribe()
	return &Subscription{
		Frames: frames,
		run:    r,
		leave: func() {
			unsubscribe()
			m.leave(r)
		},
	}, nil
}

func (m *Manager) leave(r *run) {
	m.mu.Lock()
	r.viewers--
	stop := r.auto && r.viewers == 0 && m.runs[r.device] == r
	m.mu.Unlock()
	if stop {
		slog.Info("last viewer left, stopping camera", "device", r.device)
		r.cancel()
	}
}

func (m *Manager) info(r *run) RunInfo {
	m.mu.Lock()
	viewers, auto := r.viewers, r.auto
	m.mu.Unlock()
	return RunInfo{
		ID:          r.id,
		Device:      r.device,
		Session:     r.session.ID(),
		StartedAt:   r.startedAt,
		Frames:      r.frames.Load(),
		Identified:  r.identified.Load(),
		Viewers:     viewers,
		AutoStarted: auto,
	}
}

// List returns the running cameras ordered by device.
func (m *Manager) List() []RunInfo {
	m.mu.Lock()
	runs := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	out := make([]RunInfo, 0, len(runs))
	for _, r := range runs {
		out = append(out, m.info(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Get returns the running camera on device.
func (m *Manager) Get(device string) (RunInfo, bool) {
	m.mu.Lock()
	r, ok := m.runs[device]
	m.mu.Unlock()
	if !ok {
		return RunInfo{}, false
	}
	return m.info(r), true
}

// Failures returns the devices whose last run ended with a capture error,
// ordered by device. A device's failure is cleared when it is started again.
func (m *Manager) Failures() []Failure {
	m.mu.Lock()
	out := make([]Failure, 0, len(m.failures))
	for _, f := range m.failures {
		out = append(out, f)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

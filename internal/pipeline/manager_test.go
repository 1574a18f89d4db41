package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/capture"
)

func newTestManager(t *testing.T, open OpenFunc) *Manager {
	t.Helper()
	f := newFixture(t)
	m := NewManager(f.pipeline, open)
	t.Cleanup(m.StopAll)
	return m
}

func liveOpener(c color.Color) OpenFunc {
	return func(context.Context, string) (capture.Source, error) {
		return &liveSource{img: solid(c)}, nil
	}
}

func failureFor(m *Manager, device string) (Failure, bool) {
	for _, f := range m.Failures() {
		if f.Device == device {
			return f, true
		}
	}
	return Failure{}, false
}

// waitClosed drains frames until the camera closes the stream.
func waitClosed(t *testing.T, frames <-chan []byte) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("viewer stream was not closed")
		}
	}
}

// finiteSource yields n frames and then fails with err.
type finiteSource struct {
	img image.Image
	n   uint64
	err error
	seq atomic.Uint64
}

func (s *finiteSource) Next(ctx context.Context) (*capture.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	seq := s.seq.Add(1)
	if seq > s.n {
		return nil, s.err
	}
	return &capture.Frame{Seq: seq, Image: s.img, CapturedAt: time.Now()}, nil
}

func (s *finiteSource) Close() error { return nil }

func TestManager_StartAndStop(t *testing.T) {
	m := newTestManager(t, liveOpener(black))
	const device = "test://start-stop"

	info, err := m.Start(device, attendance.Daily())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.Device != device || info.ID == "" || info.AutoStarted {
		t.Fatalf("unexpected run info: %+v", info)
	}
	if owner, ok := capture.Owner(device); !ok || owner != info.ID {
		t.Fatalf("expected device owned by run %s, got %q", info.ID, owner)
	}

	if _, err := m.Start(device, attendance.Daily()); !errors.Is(err, capture.ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy on second start, got %v", err)
	}

	if err := m.Stop(device); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := capture.Owner(device); ok {
		t.Fatal("expected device released after stop")
	}
	if err := m.Stop(device); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if f, ok := failureFor(m, device); ok {
		t.Fatalf("expected clean stop, got %+v", f)
	}
}

func TestManager_OpenFailure(t *testing.T) {
	m := newTestManager(t, func(context.Context, string) (capture.Source, error) {
		return nil, errors.New("no such device")
	})
	const device = "test://open-failure"

	if _, err := m.Start(device, attendance.Daily()); !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if _, ok := m.Get(device); ok {
		t.Fatal("expected no run after failed open")
	}
	if _, ok := capture.Owner(device); ok {
		t.Fatal("expected device released after failed open")
	}
	f, ok := failureFor(m, device)
	if !ok || f.Device != device || !strings.Contains(f.Error, "no such device") {
		t.Fatalf("expected last error recorded, got %+v", f)
	}
	if failures := m.Failures(); len(failures) != 1 || failures[0].Device != device {
		t.Fatalf("unexpected failures %+v", failures)
	}
}

func TestManager_SubscribeAutoStartsAndStops(t *testing.T) {
	m := newTestManager(t, liveOpener(red))
	const device = "test://auto"

	sub, err := m.Subscribe(device, attendance.Daily())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	select {
	case jpeg := <-sub.Frames:
		if len(jpeg) == 0 {
			t.Fatal("expected an encoded frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	info, ok := m.Get(device)
	if !ok || !info.AutoStarted || info.Viewers != 1 {
		t.Fatalf("unexpected run info: %+v", info)
	}

	sub.Close()
	waitClosed(t, sub.Frames)
	if _, ok := m.Get(device); ok {
		t.Fatal("expected auto-started camera to stop after last viewer left")
	}
	if err := sub.Err(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestManager_StartPinsAutoStartedCamera(t *testing.T) {
	m := newTestManager(t, liveOpener(black))
	const device = "test://pin"

	sub, err := m.Subscribe(device, attendance.Daily())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	info, err := m.Start(device, attendance.Daily())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.AutoStarted {
		t.Fatal("expected Start to pin the camera")
	}

	sub.Close()
	if _, ok := m.Get(device); !ok {
		t.Fatal("expected pinned camera to keep running without viewers")
	}

	if err := m.Stop(device); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestManager_StopEndsViewerStreams(t *testing.T) {
	m := newTestManager(t, liveOpener(black))
	const device = "test://viewers"

	if _, err := m.Start(device, attendance.Daily()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sub, err := m.Subscribe(device, attendance.Daily())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := m.Stop(device); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitClosed(t, sub.Frames)
	if err := sub.Err(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestManager_List(t *testing.T) {
	m := newTestManager(t, liveOpener(black))

	for _, d := range []string{"test://list-b", "test://list-a"} {
		if _, err := m.Start(d, attendance.Session{Code: "CS101"}); err != nil {
			t.Fatalf("Start %s: %v", d, err)
		}
	}
	runs := m.List()
	if len(runs) != 2 || runs[0].Device != "test://list-a" || runs[1].Session != "CS101" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestManager_StartRejectsOtherSession(t *testing.T) {
	m := newTestManager(t, liveOpener(black))
	const device = "test://session-start"

	sub, err := m.Subscribe(device, attendance.Daily())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := m.Start(device, attendance.Session{Code: "MATH101"}); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
	info, ok := m.Get(device)
	if !ok || info.Session != "DAILY" || !info.AutoStarted {
		t.Fatalf("expected the daily camera left untouched, got %+v", info)
	}
}

func TestManager_SubscribeRejectsOtherSession(t *testing.T) {
	m := newTestManager(t, liveOpener(black))
	const device = "test://session-subscribe"

	if _, err := m.Start(device, attendance.Session{Code: "MATH101"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Subscribe(device, attendance.Daily()); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
	if info, _ := m.Get(device); info.Viewers != 0 {
		t.Fatalf("expected no viewer attached, got %+v", info)
	}

	sub, err := m.Subscribe(device, attendance.Session{Code: "MATH101"})
	if err != nil {
		t.Fatalf("Subscribe same session: %v", err)
	}
	sub.Close()
}

func TestManager_CaptureFailureReachesViewer(t *testing.T) {
	tests := []struct {
		name    string
		srcErr  error
		wantErr bool
	}{
		{name: "device failure", srcErr: errors.New("usb disconnected"), wantErr: true},
		{name: "end of stream", srcErr: capture.ErrEndOfStream, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, func(context.Context, string) (capture.Source, error) {
				return &finiteSource{img: solid(black), n: 3, err: tt.srcErr}, nil
			})
			device := "test://terminal-" + strings.ReplaceAll(tt.name, " ", "-")

			sub, err := m.Subscribe(device, attendance.Daily())
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			defer sub.Close()
			waitClosed(t, sub.Frames)

			err = sub.Err()
			if tt.wantErr != errors.Is(err, ErrCaptureFailed) {
				t.Fatalf("unexpected terminal error %v", err)
			}
			_, failed := failureFor(m, device)
			if failed != tt.wantErr {
				t.Fatalf("expected recorded failure %v, got %v", tt.wantErr, failed)
			}
		})
	}
}

func TestManager_DeviceFreeOnceStreamCloses(t *testing.T) {
	var opened atomic.Int32
	m := newTestManager(t, func(context.Context, string) (capture.Source, error) {
		if opened.Add(1) == 1 {
			return &finiteSource{img: solid(black), n: 1, err: capture.ErrEndOfStream}, nil
		}
		return &liveSource{img: solid(black)}, nil
	})
	const device = "test://restart"

	sub, err := m.Subscribe(device, attendance.Daily())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitClosed(t, sub.Frames)
	sub.Close()

	if _, err := m.Start(device, attendance.Daily()); err != nil {
		t.Fatalf("expected device free after the stream closed, got %v", err)
	}
}

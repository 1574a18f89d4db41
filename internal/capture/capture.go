// Package capture provides camera frame sources.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"time"
)

var (
	// ErrEndOfStream is returned by Next when the source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
	// ErrDeviceBusy is returned when a device is already owned by another pipeline.
	ErrDeviceBusy = errors.New("device busy")
)

// Frame is one decoded camera frame.
type Frame struct {
	Seq        uint64
	Image      image.Image
	CapturedAt time.Time
}

// Source yields frames until it ends or is closed.
type Source interface {
	// Next blocks until the next frame is available.
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// Open picks a source for device: an http(s) URL is read as an MJPEG stream,
// an existing directory is replayed, anything else is opened as a V4L2 device.
func Open(ctx context.Context, device string) (Source, error) {
	return open(ctx, device, 0)
}

// Opener returns an Open func that replays directories at one frame per interval.
func Opener(interval time.Duration) func(ctx context.Context, device string) (Source, error) {
	return func(ctx context.Context, device string) (Source, error) {
		return open(ctx, device, interval)
	}
}

func open(ctx context.Context, device string, interval time.Duration) (Source, error) {
	switch {
	case device == "":
		return nil, fmt.Errorf("no capture device configured")
	case strings.HasPrefix(device, "http://"), strings.HasPrefix(device, "https://"):
		s, err := OpenMJPEGStream(ctx, device)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if fi, err := os.Stat(device); err == nil && fi.IsDir() {
		d, err := OpenDirectory(device, interval)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	w, err := OpenWebcam(device)
	if err != nil {
		return nil, err
	}
	return w, nil
}

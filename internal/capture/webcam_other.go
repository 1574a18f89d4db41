//go:build !linux

package capture

import (
	"context"

	"github.com/pkg/errors"
)

// Webcam is unavailable outside linux.
type Webcam struct{}

// OpenWebcam always fails: V4L2 exists only on linux.
func OpenWebcam(device string) (*Webcam, error) {
	return nil, errors.Errorf("cannot open %s: V4L2 capture requires linux", device)
}

func (c *Webcam) Next(context.Context) (*Frame, error) { return nil, ErrEndOfStream }

func (c *Webcam) Close() error { return nil }

//go:build linux

package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

const (
	preferredWidth  = 1280
	frameWaitSecond = 1
)

// Webcam reads MJPEG frames from a V4L2 device.
type Webcam struct {
	device string
	cam    *webcam.Webcam
	seq    uint64

	mu     sync.Mutex
	closed bool
}

// OpenWebcam opens device and starts streaming MJPEG.
func OpenWebcam(device string) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, errors.Wrap(err, "can not open device "+device)
	}

	format, ok := findMJPEG(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return nil, errors.Errorf("%s does not support MJPEG", device)
	}

	width, height := pickFrameSize(cam.GetSupportedFrameSizes(format))
	_, w, h, err := cam.SetImageFormat(format, width, height)
	if err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "can not set image format")
	}
	slog.Info("webcam opened", "device", device, "width", w, "height", h)

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "can not start streaming")
	}
	return &Webcam{device: device, cam: cam}, nil
}

func findMJPEG(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	for f, desc := range formats {
		d := strings.ToLower(desc)
		if strings.Contains(d, "mjpeg") || strings.Contains(d, "motion-jpeg") || strings.Contains(d, "jpeg") {
			return f, true
		}
	}
	return 0, false
}

// pickFrameSize chooses the widest size not exceeding preferredWidth.
func pickFrameSize(sizes []webcam.FrameSize) (uint32, uint32) {
	var w, h uint32 = 640, 480
	for _, s := range sizes {
		if s.MaxWidth <= preferredWidth && s.MaxWidth > w {
			w, h = s.MaxWidth, s.MaxHeight
		}
	}
	return w, h
}

// Next waits for and decodes the next frame.
func (c *Webcam) Next(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.isClosed() {
			return nil, ErrEndOfStream
		}

		err := c.cam.WaitForFrame(frameWaitSecond)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, errors.Wrap(err, "frame wait failed")
		}

		raw, err := c.cam.ReadFrame()
		if err != nil {
			return nil, errors.Wrap(err, "read frame failed")
		}
		if len(raw) == 0 {
			continue
		}

		img, err := imaging.DecodeBytes(raw)
		if err != nil {
			slog.Debug("skipping undecodable frame", "device", c.device, "error", err)
			continue
		}
		c.seq++
		return &Frame{Seq: c.seq, Image: img, CapturedAt: time.Now()}, nil
	}
}

func (c *Webcam) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops streaming and releases the device.
func (c *Webcam) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.cam.StopStreaming(); err != nil {
		slog.Warn("stop streaming failed", "device", c.device, "error", err)
	}
	return errors.Wrap(c.cam.Close(), "close device")
}

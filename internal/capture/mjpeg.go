package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

// MJPEGStream reads a multipart/x-mixed-replace stream served by an IP camera.
type MJPEGStream struct {
	url    string
	body   io.ReadCloser
	reader *multipart.Reader
	cancel context.CancelFunc
	seq    uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenMJPEGStream connects to url. The stream stays open until Close or until ctx ends.
func OpenMJPEGStream(ctx context.Context, url string) (*MJPEGStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("connect to %s: status %d", url, resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%s is not an MJPEG stream (content type %q)", url, resp.Header.Get("Content-Type"))
	}

	return &MJPEGStream{
		url:    url,
		body:   resp.Body,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
		cancel: cancel,
		closed: make(chan struct{}),
	}, nil
}

// Next reads and decodes the next JPEG part. Parts that do not decode are
// skipped.
func (s *MJPEGStream) Next(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, err := s.reader.NextPart()
		if err != nil {
			if s.isClosed() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrEndOfStream
			}
			return nil, fmt.Errorf("read stream part: %w", err)
		}

		img, err := imaging.Decode(part)
		part.Close()
		if err != nil {
			if s.isClosed() {
				return nil, ErrEndOfStream
			}
			slog.Debug("skipping undecodable frame", "url", s.url, "error", err)
			continue
		}
		s.seq++
		return &Frame{Seq: s.seq, Image: img, CapturedAt: time.Now()}, nil
	}
}

func (s *MJPEGStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close aborts the HTTP request.
func (s *MJPEGStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		err = s.body.Close()
	})
	return err
}

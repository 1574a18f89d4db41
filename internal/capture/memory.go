package capture

import (
	"context"
	"image"
	"sync"
	"time"
)

// MemorySource serves a fixed list of images. Used by tests and by single
// image classification.
type MemorySource struct {
	mu     sync.Mutex
	images []image.Image
	next   int
	closed bool
}

// NewMemorySource creates a source over images.
func NewMemorySource(images ...image.Image) *MemorySource {
	return &MemorySource{images: images}
}

func (m *MemorySource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.next >= len(m.images) {
		return nil, ErrEndOfStream
	}
	img := m.images[m.next]
	m.next++
	return &Frame{Seq: uint64(m.next), Image: img, CapturedAt: time.Now()}, nil
}

func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemorySource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

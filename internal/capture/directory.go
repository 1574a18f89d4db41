package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

// Directory replays the image files of a directory in name order.
type Directory struct {
	files    []string
	interval time.Duration
	next     int
	last     time.Time
}

// OpenDirectory lists the frames in dir. A non-zero interval paces the replay.
func OpenDirectory(dir string, interval time.Duration) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return &Directory{files: files, interval: interval}, nil
}

// Len returns the number of frames in the directory.
func (d *Directory) Len() int {
	return len(d.files)
}

// Next decodes the next file. Unreadable files are skipped.
func (d *Directory) Next(ctx context.Context) (*Frame, error) {
	for d.next < len(d.files) {
		if err := d.wait(ctx); err != nil {
			return nil, err
		}
		path := d.files[d.next]
		d.next++

		f, err := os.Open(path)
		if err != nil {
			continue
		}
		img, err := imaging.Decode(f)
		f.Close()
		if err != nil {
			continue
		}
		d.last = time.Now()
		return &Frame{Seq: uint64(d.next), Image: img, CapturedAt: d.last}, nil
	}
	return nil, ErrEndOfStream
}

func (d *Directory) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.interval <= 0 || d.last.IsZero() {
		return nil
	}
	delay := time.Until(d.last.Add(d.interval))
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Directory) Close() error {
	d.next = len(d.files)
	return nil
}

package gallery

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/renameio"
)

const snapshotVersion = 1

// snapshotFile is the on-disk layout of a gallery.
type snapshotFile struct {
	Version int
	Vectors [][]float32
	Labels  []string
	BuiltAt time.Time
}

// Save writes the gallery to path. The file is replaced atomically so a reader
// never observes a partial snapshot.
func Save(g *Gallery, path string) error {
	if g == nil {
		g = Empty()
	}
	if !g.valid() {
		return fmt.Errorf("save gallery: %d vectors but %d labels", len(g.Vectors), len(g.Labels))
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshotFile{
		Version: snapshotVersion,
		Vectors: g.Vectors,
		Labels:  g.Labels,
		BuiltAt: g.BuiltAt,
	}); err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}

	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write gallery %s: %w", path, err)
	}
	return nil
}

// Load reads a gallery from path. The returned gallery is never nil: a missing or
// unreadable file yields an empty gallery together with ErrSnapshotMissing or
// ErrSnapshotCorrupt, which callers should report as a warning.
func Load(path string) (*Gallery, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), fmt.Errorf("%w: %s", ErrSnapshotMissing, path)
	}
	if err != nil {
		return Empty(), fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	var snap snapshotFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return Empty(), fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if snap.Version != snapshotVersion {
		return Empty(), fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, snap.Version)
	}
	if len(snap.Vectors) != len(snap.Labels) {
		return Empty(), fmt.Errorf("%w: %d vectors but %d labels", ErrSnapshotCorrupt, len(snap.Vectors), len(snap.Labels))
	}

	return &Gallery{
		Vectors: snap.Vectors,
		Labels:  snap.Labels,
		BuiltAt: snap.BuiltAt,
	}, nil
}

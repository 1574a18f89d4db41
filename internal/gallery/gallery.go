// Package gallery builds, persists and serves the enrolled face vectors that
// recognition compares against.
package gallery

import (
	"errors"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/facematch"
)

var (
	// ErrCorpusMissing is returned when the enrollment corpus root does not exist.
	ErrCorpusMissing = errors.New("enrollment corpus not found")
	// ErrSnapshotMissing is a load warning: no gallery file has been written yet.
	ErrSnapshotMissing = errors.New("gallery snapshot not found")
	// ErrSnapshotCorrupt is a load warning: the gallery file could not be decoded.
	ErrSnapshotCorrupt = errors.New("gallery snapshot corrupt")
	// ErrProviderUnavailable is returned when every image in a rebuild failed at the face provider.
	ErrProviderUnavailable = errors.New("face provider failed for every image")
)

// Entry is one enrolled face sample.
type Entry struct {
	Vector    []float32
	SubjectID string
}

// Gallery holds enrolled vectors and their labels as two index aligned columns.
// A Gallery is never modified after it has been published to a Store.
type Gallery struct {
	Vectors [][]float32
	Labels  []string
	BuiltAt time.Time

	index *Index
}

// Empty returns a gallery with no entries.
func Empty() *Gallery {
	return &Gallery{}
}

// FromEntries builds a gallery preserving entry order.
func FromEntries(entries []Entry, builtAt time.Time) *Gallery {
	g := &Gallery{
		Vectors: make([][]float32, 0, len(entries)),
		Labels:  make([]string, 0, len(entries)),
		BuiltAt: builtAt,
	}
	for _, e := range entries {
		g.Vectors = append(g.Vectors, e.Vector)
		g.Labels = append(g.Labels, e.SubjectID)
	}
	return g
}

// Len returns the number of entries.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Vectors)
}

// Subjects returns the distinct subject ids in first-enrolled order.
func (g *Gallery) Subjects() []string {
	if g == nil {
		return nil
	}
	seen := make(map[string]bool, len(g.Labels))
	var out []string
	for _, l := range g.Labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// Entries returns the gallery as a slice of entries.
func (g *Gallery) Entries() []Entry {
	out := make([]Entry, g.Len())
	for i := range out {
		out[i] = Entry{Vector: g.Vectors[i], SubjectID: g.Labels[i]}
	}
	return out
}

// Dim returns the vector dimension of the first entry, 0 for an empty gallery.
func (g *Gallery) Dim() int {
	if g.Len() == 0 {
		return 0
	}
	return len(g.Vectors[0])
}

// Indexed reports whether lookups are served from an HNSW index.
func (g *Gallery) Indexed() bool {
	return g != nil && g.index != nil
}

// Classify matches a query vector against the gallery.
func (g *Gallery) Classify(query []float32, tolerance float64) facematch.MatchResult {
	if g == nil {
		return facematch.Classify(nil, nil, query, tolerance)
	}
	if g.index != nil {
		return g.index.Classify(g, query, tolerance)
	}
	return facematch.Classify(g.Vectors, g.Labels, query, tolerance)
}

func (g *Gallery) valid() bool {
	return len(g.Vectors) == len(g.Labels)
}

package gallery

import (
	"log/slog"
	"sync/atomic"
)

// Store publishes the current gallery snapshot. Readers take a snapshot once per
// decision; a rebuild swaps in a fully built gallery atomically.
type Store struct {
	current       atomic.Pointer[Gallery]
	hnswThreshold int
}

// NewStore creates a store serving g. Galleries with at least hnswThreshold
// entries get an HNSW index when published (0 disables indexing).
func NewStore(g *Gallery, hnswThreshold int) *Store {
	s := &Store{hnswThreshold: hnswThreshold}
	s.Swap(g)
	return s
}

// Current returns the published snapshot. It is never nil.
func (s *Store) Current() *Gallery {
	if g := s.current.Load(); g != nil {
		return g
	}
	return Empty()
}

// Swap publishes g and returns the previous snapshot.
func (s *Store) Swap(g *Gallery) *Gallery {
	if g == nil {
		g = Empty()
	}
	if s.hnswThreshold > 0 && g.Len() >= s.hnswThreshold && g.index == nil {
		idx, err := BuildIndex(g)
		if err != nil {
			slog.Warn("gallery index disabled, using exact scan", "error", err, "entries", g.Len())
		} else {
			g.index = idx
		}
	}
	return s.current.Swap(g)
}

package gallery

import (
	"errors"
	"fmt"
	"math"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
)

// HNSW graph parameters.
const (
	hnswMaxNeighbors = 16
	hnswEfSearch     = 64
)

// Index serves approximate nearest neighbor candidates for large galleries.
// Candidates are re-ranked with exact distances so tolerance and tie-break rules
// still apply to whatever the graph returns.
type Index struct {
	graph *hnsw.Graph[int]
}

// BuildIndex builds an HNSW graph over the gallery vectors. Node keys are gallery positions.
func BuildIndex(g *Gallery) (*Index, error) {
	if g.Len() == 0 {
		return nil, errors.New("empty gallery")
	}
	dim := g.Dim()

	graph := hnsw.NewGraph[int]()
	graph.M = hnswMaxNeighbors
	graph.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	graph.EfSearch = hnswEfSearch
	graph.Distance = hnsw.EuclideanDistance

	for i, v := range g.Vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("entry %d has dimension %d, expected %d", i, len(v), dim)
		}
		graph.Add(hnsw.MakeNode(i, v))
	}
	return &Index{graph: graph}, nil
}

// Classify searches the graph and applies the exact match rules to the candidates.
func (x *Index) Classify(g *Gallery, query []float32, tolerance float64) facematch.MatchResult {
	if len(query) != g.Dim() {
		return facematch.Classify(g.Vectors, g.Labels, query, tolerance)
	}

	best, bestDist := -1, math.Inf(1)
	for _, n := range x.graph.Search(query, constants.HNSWCandidates) {
		d := facematch.EuclideanDistance(g.Vectors[n.Key], query)
		if d < bestDist || (d == bestDist && n.Key < best) {
			best, bestDist = n.Key, d
		}
	}

	if best < 0 {
		return facematch.Classify(g.Vectors, g.Labels, query, tolerance)
	}
	if bestDist > tolerance {
		return facematch.Unknown(bestDist, best)
	}
	return facematch.MatchResult{
		Identified: true,
		SubjectID:  g.Labels[best],
		Distance:   bestDist,
		Index:      best,
	}
}

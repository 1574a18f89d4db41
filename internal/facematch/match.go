// Package facematch classifies face vectors against an enrolled gallery.
package facematch

import (
	"math"
)

// MatchResult is the outcome of classifying one query vector.
// A zero MatchResult is Unknown. Distance is 0 when the gallery was empty.
type MatchResult struct {
	Identified bool    `json:"identified"`
	SubjectID  string  `json:"subject_id,omitempty"`
	Distance   float64 `json:"distance"`
	Index      int     `json:"index"` // gallery position of the nearest entry, -1 for an empty gallery
}

// Unknown returns the result for a face that is not in the gallery.
func Unknown(distance float64, index int) MatchResult {
	return MatchResult{Distance: distance, Index: index}
}

// EuclideanDistance returns the L2 distance between two vectors.
// Vectors of different length are compared over the shorter prefix plus the
// squared tail of the longer one.
func EuclideanDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	for _, v := range a[n:] {
		sum += float64(v) * float64(v)
	}
	for _, v := range b[n:] {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Nearest returns the index and distance of the gallery vector closest to query.
// Ties resolve to the lowest index. Returns -1 for an empty gallery.
func Nearest(vectors [][]float32, query []float32) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, v := range vectors {
		d := EuclideanDistance(v, query)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Classify finds the nearest gallery vector and identifies the query when the
// distance is within tolerance (inclusive). labels must be index aligned with vectors.
func Classify(vectors [][]float32, labels []string, query []float32, tolerance float64) MatchResult {
	idx, dist := Nearest(vectors, query)
	if idx < 0 {
		return Unknown(0, -1)
	}
	if dist > tolerance || idx >= len(labels) {
		return Unknown(dist, idx)
	}
	return MatchResult{
		Identified: true,
		SubjectID:  labels[idx],
		Distance:   dist,
		Index:      idx,
	}
}

package facematch

import (
	"math"
	"math/rand"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit step", []float32{0, 0}, []float32{0, 1}, 1},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 5},
		{"length mismatch", []float32{0, 0}, []float32{0, 0, 2}, 2},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestClassify_EmptyGalleryIsUnknown(t *testing.T) {
	result := Classify(nil, nil, []float32{0.1, 0.2}, 10)
	if result.Identified {
		t.Fatalf("expected Unknown for empty gallery, got %+v", result)
	}
	if result.Index != -1 {
		t.Errorf("expected index -1, got %d", result.Index)
	}
}

func TestClassify_ToleranceIsInclusive(t *testing.T) {
	vectors := [][]float32{{0, 0}}
	labels := []string{"6401"}
	query := []float32{0, 0.5}

	if r := Classify(vectors, labels, query, 0.5); !r.Identified || r.SubjectID != "6401" {
		t.Errorf("distance equal to tolerance should identify, got %+v", r)
	}
	if r := Classify(vectors, labels, query, 0.4999); r.Identified {
		t.Errorf("distance above tolerance should be Unknown, got %+v", r)
	}
}

func TestClassify_TieGoesToLowestIndex(t *testing.T) {
	vectors := [][]float32{{1, 0}, {-1, 0}, {0, 1}}
	labels := []string{"A", "B", "C"}

	result := Classify(vectors, labels, []float32{0, 0}, 2)
	if !result.Identified {
		t.Fatalf("expected match, got %+v", result)
	}
	if result.SubjectID != "A" || result.Index != 0 {
		t.Errorf("expected first inserted entry to win tie, got %+v", result)
	}
}

func TestClassify_MultipleEntriesPerSubject(t *testing.T) {
	vectors := [][]float32{{0, 0}, {5, 5}, {10, 10}}
	labels := []string{"A", "B", "A"}

	result := Classify(vectors, labels, []float32{9.9, 10}, 0.5)
	if result.SubjectID != "A" || result.Index != 2 {
		t.Errorf("expected second sample of A, got %+v", result)
	}
}

func TestClassify_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const dim = 16

	randVec := func() []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = rng.Float32()
		}
		return v
	}

	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(30)
		vectors := make([][]float32, n)
		labels := make([]string, n)
		for i := 0; i < n; i++ {
			vectors[i] = randVec()
			labels[i] = string(rune('a' + i%26))
		}
		query := randVec()
		tolerance := rng.Float64() * 2

		result := Classify(vectors, labels, query, tolerance)

		bestIdx, bestDist := -1, math.Inf(1)
		for i, v := range vectors {
			if d := EuclideanDistance(v, query); d < bestDist {
				bestIdx, bestDist = i, d
			}
		}

		switch {
		case bestIdx == -1:
			if result.Identified {
				t.Fatalf("trial %d: identified against empty gallery", trial)
			}
		case bestDist <= tolerance:
			if !result.Identified || result.Index != bestIdx || result.SubjectID != labels[bestIdx] {
				t.Fatalf("trial %d: got %+v, want index %d", trial, result, bestIdx)
			}
		default:
			if result.Identified {
				t.Fatalf("trial %d: expected Unknown at distance %v > %v", trial, bestDist, tolerance)
			}
		}
	}
}

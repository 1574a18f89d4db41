// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// EmbeddingDim is the dimension of the face vectors produced by the encoder
	EmbeddingDim = 128

	// HNSWCandidates is the number of approximate neighbors re-ranked exactly
	// when the gallery is served from the HNSW index
	HNSWCandidates = 16
)

// Attendance policy constants
const (
	// DailySession is the session identifier used when no subject session is active
	DailySession = "DAILY"
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for gallery rebuilds
	WorkerPoolSize = 4

	// DefaultDownsample is the scale applied to frames before face detection
	DefaultDownsample = 0.25

	// JPEGQuality is the quality used for annotated frames and uploads to the face server
	JPEGQuality = 85

	// FaceOverlapThreshold is the IoU above which two detections are treated as the same face
	FaceOverlapThreshold = 0.5
)

// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// DefaultAttendancePageSize is the max number of records returned by the attendance list endpoint
	DefaultAttendancePageSize = 500

	// DefaultStudentSearchLimit is the default number of students returned by a name search
	DefaultStudentSearchLimit = 50
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)

// Stream constants
const (
	// StreamBoundary is the multipart boundary of the MJPEG video feed
	StreamBoundary = "frame"

	// StreamStatusTrailer is the trailer reporting how the video feed ended
	StreamStatusTrailer = "X-Stream-Status"
)

package database

import (
	"context"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
)

// StudentReader provides read-only access to the student directory
type StudentReader interface {
	// GetStudent retrieves a student by id, returns nil if not found
	GetStudent(ctx context.Context, id string) (*Student, error)
	// ListStudents returns all students ordered by classroom and roll number
	ListStudents(ctx context.Context) ([]Student, error)
	// SearchStudents finds students whose Thai or English name contains the query.
	// Names are normalized before comparison (lowercase, no Latin diacritics).
	SearchStudents(ctx context.Context, query string, limit int) ([]Student, error)
}

// StudentWriter provides write access to the local student table
type StudentWriter interface {
	StudentReader

	// UpsertStudent creates or replaces a student
	UpsertStudent(ctx context.Context, s Student) error
	// DeleteStudent removes a student; attendance history is kept
	DeleteStudent(ctx context.Context, id string) error
}

// SubjectReader provides read-only access to scheduled subjects
type SubjectReader interface {
	// GetSubject retrieves a subject by code, returns nil if not found
	GetSubject(ctx context.Context, code string) (*Subject, error)
	// ListSubjects returns all subjects ordered by start time
	ListSubjects(ctx context.Context) ([]Subject, error)
}

// SubjectWriter provides write access to subjects
type SubjectWriter interface {
	SubjectReader

	// UpsertSubject creates or replaces a subject
	UpsertSubject(ctx context.Context, s Subject) error
}

// GalleryMirror keeps a queryable copy of the published gallery
type GalleryMirror interface {
	// ReplaceGallery swaps the mirrored entries for the given ones in a single transaction
	ReplaceGallery(ctx context.Context, entries []gallery.Entry) error
	// NearestEntries returns the closest mirrored entries by Euclidean distance
	NearestEntries(ctx context.Context, query []float32, limit int) ([]StoredGalleryEntry, error)
	// CountGalleryEntries returns the number of mirrored entries
	CountGalleryEntries(ctx context.Context) (int, error)
}

// AttendanceStore persists attendance records
type AttendanceStore = attendance.Store

// SettingsStore persists live policy settings
type SettingsStore = attendance.SettingsStore

package database

import (
	"time"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
)

// Student is an enrolled person. ID matches the corpus directory name.
type Student struct {
	ID         string    `json:"id"`
	NameTH     string    `json:"name_th"`
	NameEN     string    `json:"name_en"`
	Classroom  string    `json:"classroom"`
	RollNumber int       `json:"roll_number,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayName returns the Thai name, falling back to the English name and then the id.
func (s *Student) DisplayName() string {
	switch {
	case s == nil:
		return ""
	case s.NameTH != "":
		return s.NameTH
	case s.NameEN != "":
		return s.NameEN
	default:
		return s.ID
	}
}

// Subject is a scheduled class attendance can be taken for.
type Subject struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	StartTime string    `json:"start_time,omitempty"` // HH:MM, empty when unscheduled
	CreatedAt time.Time `json:"created_at"`
}

// Session converts the subject into an attendance session.
func (s *Subject) Session() (attendance.Session, error) {
	session := attendance.Session{Code: s.Code, Name: s.Name}
	if s.StartTime == "" {
		return session, nil
	}
	start, err := attendance.ParseClock(s.StartTime)
	if err != nil {
		return attendance.Session{}, err
	}
	session.Start = &start
	return session, nil
}

// StoredGalleryEntry is a gallery entry mirrored into the database.
type StoredGalleryEntry struct {
	Position  int       `json:"position"`
	SubjectID string    `json:"subject_id"`
	Embedding []float32 `json:"-"`
	Distance  float64   `json:"distance"`
}

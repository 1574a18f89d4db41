// Package attendance decides and records once-per-session attendance.
package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/constants"
)

var (
	// ErrRecordNotFound is returned when a status correction targets an unknown record.
	ErrRecordNotFound = errors.New("attendance record not found")
	// ErrInvalidStatus is returned for an unrecognized status value.
	ErrInvalidStatus = errors.New("invalid attendance status")
	// ErrInvalidManualStatus is returned when a manual entry uses a recognition-only status.
	ErrInvalidManualStatus = errors.New("manual entries must be absent, sick leave or personal leave")
	// ErrEmptySubject is returned when no subject id is given.
	ErrEmptySubject = errors.New("subject id is required")
)

// DateLayout is the calendar date format used in attendance keys.
const DateLayout = "2006-01-02"

// Status is the attendance state of a record.
type Status string

const (
	StatusPresent       Status = "present"
	StatusLate          Status = "late"
	StatusAbsent        Status = "absent"
	StatusSickLeave     Status = "sick_leave"
	StatusPersonalLeave Status = "personal_leave"
)

var statusLabels = map[Status]string{
	StatusPresent:       "มาเรียน",
	StatusLate:          "สาย",
	StatusAbsent:        "ขาด",
	StatusSickLeave:     "ลาป่วย",
	StatusPersonalLeave: "ลากิจ",
}

// Label returns the Thai display label used on the dashboard and reports.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Manual reports whether s may be entered by staff without a recognition event.
func (s Status) Manual() bool {
	return s == StatusAbsent || s == StatusSickLeave || s == StatusPersonalLeave
}

// ParseStatus accepts a status code ("late") or its Thai label ("สาย").
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	code := Status(strings.ToLower(strings.ReplaceAll(s, "-", "_")))
	if code.Valid() {
		return code, nil
	}
	for status, label := range statusLabels {
		if label == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return Clock{}, fmt.Errorf("invalid time of day %q", s)
}

// MustParseClock is ParseClock for constants.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// On returns the instant of the clock time on the calendar day of t, in t's location.
func (c Clock) On(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, t.Location())
}

func (c Clock) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Session is the context attendance is taken in: a scheduled subject with a
// start time, or the daily check-in when Code is empty.
type Session struct {
	Code  string
	Name  string
	Start *Clock
}

// Daily returns the daily check-in session.
func Daily() Session {
	return Session{}
}

// ID returns the session identifier stored in attendance keys.
func (s Session) ID() string {
	if s.Code == "" {
		return constants.DailySession
	}
	return s.Code
}

// Key identifies the single allowed record per subject, date and session.
type Key struct {
	SubjectID string `json:"student_id"`
	Date      string `json:"date"`
	Session   string `json:"session"`
}

// Record source values.
const (
	SourceCamera = "camera"
	SourceManual = "manual"
	SourceAPI    = "api"
)

// Record is one stored attendance event.
type Record struct {
	ID int64 `json:"id"`
	Key
	ObservedAt *time.Time `json:"observed_at,omitempty"`
	Status     Status     `json:"status"`
	Source     string     `json:"source"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Outcome is the result of a record attempt.
type Outcome struct {
	Created bool   `json:"created"`
	Record  Record `json:"record"`
}

// AlreadyRecorded reports whether the key already had a record.
func (o Outcome) AlreadyRecorded() bool {
	return !o.Created
}

// Filter narrows a record listing. Empty fields match everything.
type Filter struct {
	Date      string
	Session   string
	SubjectID string
	Limit     int
}

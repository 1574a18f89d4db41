package postgres

import "github.com/kozaktomas/attendance-cam/internal/database"

// NewBackend bundles the PostgreSQL repositories sharing pool.
func NewBackend(pool *Pool) *database.Backend {
	b := &database.Backend{
		Name:       "postgres",
		Students:   NewStudentRepository(pool),
		Subjects:   NewSubjectRepository(pool),
		Attendance: NewAttendanceRepository(pool),
		Settings:   NewSettingsRepository(pool),
		Gallery:    NewGalleryRepository(pool),
	}
	b.AddCloser(pool.Close)
	return b
}

package mariadb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
)

// The SIS keeps names split into first and last name columns.
const directoryQuery = `
	SELECT student_code,
		TRIM(CONCAT(COALESCE(first_name_th, ''), ' ', COALESCE(last_name_th, ''))),
		TRIM(CONCAT(COALESCE(first_name_en, ''), ' ', COALESCE(last_name_en, ''))),
		COALESCE(classroom, ''),
		COALESCE(roll_no, 0)
	FROM sis_students
	WHERE active = 1`

// StudentDirectory is a read-only database.StudentReader over the SIS.
type StudentDirectory struct {
	pool *Pool
}

// NewStudentDirectory creates a directory reader.
func NewStudentDirectory(pool *Pool) *StudentDirectory {
	return &StudentDirectory{pool: pool}
}

func scanStudent(row interface{ Scan(...any) error }) (database.Student, error) {
	var s database.Student
	err := row.Scan(&s.ID, &s.NameTH, &s.NameEN, &s.Classroom, &s.RollNumber)
	return s, err
}

// GetStudent retrieves a student by SIS code, returns nil if not found
func (d *StudentDirectory) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s, err := scanStudent(d.pool.db.QueryRowContext(ctx, directoryQuery+` AND student_code = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get SIS student: %w", err)
	}
	return &s, nil
}

// ListStudents returns active students ordered by classroom and roll number
func (d *StudentDirectory) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := d.pool.db.QueryContext(ctx, directoryQuery+` ORDER BY classroom, roll_no, student_code`)
	if err != nil {
		return nil, fmt.Errorf("list SIS students: %w", err)
	}
	defer rows.Close()

	var out []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan SIS student: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate SIS students: %w", err)
	}
	return out, nil
}

// SearchStudents finds active students by normalized name
func (d *StudentDirectory) SearchStudents(ctx context.Context, query string, limit int) ([]database.Student, error) {
	all, err := d.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.Student
	for _, s := range all {
		if facematch.NameMatches(query, s.NameTH, s.NameEN, s.ID) {
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

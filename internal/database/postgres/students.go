package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
)

// StudentRepository provides PostgreSQL-backed student storage
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `id, name_th, name_en, classroom, roll_number, created_at`

func scanStudent(row interface{ Scan(...any) error }) (database.Student, error) {
	var s database.Student
	err := row.Scan(&s.ID, &s.NameTH, &s.NameEN, &s.Classroom, &s.RollNumber, &s.CreatedAt)
	return s, err
}

// GetStudent retrieves a student by id, returns nil if not found
func (r *StudentRepository) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s, err := scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &s, nil
}

// ListStudents returns all students ordered by classroom and roll number
func (r *StudentRepository) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY classroom, roll_number, id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// SearchStudents finds students by normalized name
func (r *StudentRepository) SearchStudents(ctx context.Context, query string, limit int) ([]database.Student, error) {
	all, err := r.ListStudents(ctx)
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

// UpsertStudent creates or replaces a student
func (r *StudentRepository) UpsertStudent(ctx context.Context, s database.Student) error {
	query := `
		INSERT INTO students (id, name_th, name_en, classroom, roll_number)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name_th = EXCLUDED.name_th,
			name_en = EXCLUDED.name_en,
			classroom = EXCLUDED.classroom,
			roll_number = EXCLUDED.roll_number
	`
	if _, err := r.pool.Exec(ctx, query, s.ID, s.NameTH, s.NameEN, s.Classroom, s.RollNumber); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// DeleteStudent removes a student; attendance history is kept
func (r *StudentRepository) DeleteStudent(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM students WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

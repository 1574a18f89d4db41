package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/attendance-cam/internal/database"
)

// SubjectRepository provides PostgreSQL-backed subject storage
type SubjectRepository struct {
	pool *Pool
}

// NewSubjectRepository creates a new PostgreSQL subject repository
func NewSubjectRepository(pool *Pool) *SubjectRepository {
	return &SubjectRepository{pool: pool}
}

// GetSubject retrieves a subject by code, returns nil if not found
func (r *SubjectRepository) GetSubject(ctx context.Context, code string) (*database.Subject, error) {
	var s database.Subject
	err := r.pool.QueryRow(ctx, `SELECT code, name, start_time, created_at FROM subjects WHERE code = $1`, code).
		Scan(&s.Code, &s.Name, &s.StartTime, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &s, nil
}

// ListSubjects returns all subjects ordered by start time
func (r *SubjectRepository) ListSubjects(ctx context.Context) ([]database.Subject, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, start_time, created_at FROM subjects ORDER BY start_time, code`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []database.Subject
	for rows.Next() {
		var s database.Subject
		if err := rows.Scan(&s.Code, &s.Name, &s.StartTime, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

// UpsertSubject creates or replaces a subject
func (r *SubjectRepository) UpsertSubject(ctx context.Context, s database.Subject) error {
	query := `
		INSERT INTO subjects (code, name, start_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			start_time = EXCLUDED.start_time
	`
	if _, err := r.pool.Exec(ctx, query, s.Code, s.Name, s.StartTime); err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}
	return nil
}

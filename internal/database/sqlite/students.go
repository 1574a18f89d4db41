package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
)

const studentColumns = `id, name_th, name_en, classroom, roll_number, created_at`

func scanStudent(row interface{ Scan(...any) error }) (database.Student, error) {
	var (
		st      database.Student
		created string
	)
	if err := row.Scan(&st.ID, &st.NameTH, &st.NameEN, &st.Classroom, &st.RollNumber, &created); err != nil {
		return st, err
	}
	st.CreatedAt = parseTimestamp(created)
	return st, nil
}

func (s *Store) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &st, nil
}

func (s *Store) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY classroom, roll_number, id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []database.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) SearchStudents(ctx context.Context, query string, limit int) ([]database.Student, error) {
	all, err := s.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.Student
	for _, st := range all {
		if !facematch.NameMatches(query, st.NameTH, st.NameEN, st.ID) {
			continue
		}
		out = append(out, st)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpsertStudent(ctx context.Context, st database.Student) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name_th, name_en, classroom, roll_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name_th = excluded.name_th,
			name_en = excluded.name_en,
			classroom = excluded.classroom,
			roll_number = excluded.roll_number`,
		st.ID, st.NameTH, st.NameEN, st.Classroom, st.RollNumber, s.timestamp())
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, code string) (*database.Subject, error) {
	var (
		sub     database.Subject
		created string
	)
	err := s.db.QueryRowContext(ctx, `SELECT code, name, start_time, created_at FROM subjects WHERE code = ?`, code).
		Scan(&sub.Code, &sub.Name, &sub.StartTime, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	sub.CreatedAt = parseTimestamp(created)
	return &sub, nil
}

func (s *Store) ListSubjects(ctx context.Context) ([]database.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name, start_time, created_at FROM subjects ORDER BY start_time, code`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []database.Subject
	for rows.Next() {
		var (
			sub     database.Subject
			created string
		)
		if err := rows.Scan(&sub.Code, &sub.Name, &sub.StartTime, &created); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		sub.CreatedAt = parseTimestamp(created)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSubject(ctx context.Context, sub database.Subject) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (code, name, start_time, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			start_time = excluded.start_time`,
		sub.Code, sub.Name, sub.StartTime, s.timestamp())
	if err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}
	return nil
}

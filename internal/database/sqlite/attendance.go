package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
)

const recordColumns = `id, student_id, date, session_id, observed_at, status, source, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (attendance.Record, error) {
	var (
		rec      attendance.Record
		observed sql.NullString
		status   string
		updated  string
	)
	if err := row.Scan(&rec.ID, &rec.SubjectID, &rec.Date, &rec.Session, &observed, &status, &rec.Source, &updated); err != nil {
		return rec, err
	}
	rec.Status = attendance.Status(status)
	rec.UpdatedAt = parseTimestamp(updated)
	if observed.Valid {
		t := parseTimestamp(observed.String)
		rec.ObservedAt = &t
	}
	return rec, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, rec attendance.Record) (attendance.Record, bool, error) {
	var observed any
	if rec.ObservedAt != nil {
		observed = rec.ObservedAt.Format(time.RFC3339Nano)
	}
	now := s.timestamp()

	stored, err := scanRecord(s.db.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, date, session_id, observed_at, status, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, date, session_id) DO NOTHING
		RETURNING `+recordColumns,
		rec.SubjectID, rec.Date, rec.Session, observed, string(rec.Status), rec.Source, now, now))
	if err == nil {
		return stored, true, nil
	}
	if err != sql.ErrNoRows {
		return attendance.Record{}, false, fmt.Errorf("insert attendance: %w", err)
	}

	existing, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendance WHERE student_id = ? AND date = ? AND session_id = ?`,
		rec.SubjectID, rec.Date, rec.Session))
	if err != nil {
		return attendance.Record{}, false, fmt.Errorf("get existing attendance: %w", err)
	}
	return existing, false, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status attendance.Status) (attendance.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`UPDATE attendance SET status = ?, updated_at = ? WHERE id = ? RETURNING `+recordColumns,
		string(status), s.timestamp(), id))
	if err == sql.ErrNoRows {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	if err != nil {
		return attendance.Record{}, fmt.Errorf("update attendance status: %w", err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Session != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.Session)
	}
	if filter.SubjectID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, filter.SubjectID)
	}

	query := `SELECT ` + recordColumns + ` FROM attendance`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY observed_at IS NULL, observed_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

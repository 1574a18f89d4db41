package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const recordColumns = `id, student_id, TO_CHAR(date, 'YYYY-MM-DD'), session_id, observed_at, status, source, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (attendance.Record, error) {
	var (
		rec      attendance.Record
		observed sql.NullTime
		status   string
	)
	err := row.Scan(&rec.ID, &rec.SubjectID, &rec.Date, &rec.Session, &observed, &status, &rec.Source, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	rec.Status = attendance.Status(status)
	if observed.Valid {
		t := observed.Time
		rec.ObservedAt = &t
	}
	return rec, nil
}

// InsertIfAbsent stores rec unless a record with the same key exists.
// The unique constraint makes this safe under concurrent callers.
func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, rec attendance.Record) (attendance.Record, bool, error) {
	query := `
		INSERT INTO attendance (student_id, date, session_id, observed_at, status, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT attendance_key DO NOTHING
		RETURNING ` + recordColumns

	stored, err := scanRecord(r.pool.QueryRow(ctx, query,
		rec.SubjectID, rec.Date, rec.Session, rec.ObservedAt, string(rec.Status), rec.Source))
	if err == nil {
		return stored, true, nil
	}
	if err != sql.ErrNoRows {
		return attendance.Record{}, false, fmt.Errorf("insert attendance: %w", err)
	}

	existing, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM attendance WHERE student_id = $1 AND date = $2 AND session_id = $3`,
		rec.SubjectID, rec.Date, rec.Session))
	if err != nil {
		return attendance.Record{}, false, fmt.Errorf("get existing attendance: %w", err)
	}
	return existing, false, nil
}

// UpdateStatus overwrites the status of a record
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id int64, status attendance.Status) (attendance.Record, error) {
	query := `UPDATE attendance SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + recordColumns
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id, string(status)))
	if err == sql.ErrNoRows {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	if err != nil {
		return attendance.Record{}, fmt.Errorf("update attendance status: %w", err)
	}
	return rec, nil
}

// List returns records matching the filter
func (r *AttendanceRepository) List(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Date != "" {
		add("date = $%d", filter.Date)
	}
	if filter.Session != "" {
		add("session_id = $%d", filter.Session)
	}
	if filter.SubjectID != "" {
		add("student_id = $%d", filter.SubjectID)
	}

	query := `SELECT ` + recordColumns + ` FROM attendance`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY observed_at NULLS LAST, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

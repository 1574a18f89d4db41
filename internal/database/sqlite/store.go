// Package sqlite is the single-file storage backend used when no PostgreSQL
// URL is configured.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/database"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id          TEXT PRIMARY KEY,
	name_th     TEXT NOT NULL DEFAULT '',
	name_en     TEXT NOT NULL DEFAULT '',
	classroom   TEXT NOT NULL DEFAULT '',
	roll_number INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subjects (
	code       TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	start_time TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id  TEXT NOT NULL,
	date        TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	observed_at TEXT,
	status      TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT 'camera',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	UNIQUE (student_id, date, session_id)
);

CREATE INDEX IF NOT EXISTS idx_attendance_date_session ON attendance (date, session_id);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gallery_entries (
	position   INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL,
	embedding  BLOB NOT NULL
);
`

// Store implements every repository of the backend on one SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)", "synchronous(NORMAL)"},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection serializes inserts for the attendance key.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Backend bundles the store as a database backend.
func (s *Store) Backend() *database.Backend {
	b := &database.Backend{
		Name:       "sqlite",
		Students:   s,
		Subjects:   s,
		Attendance: s,
		Settings:   s,
		Gallery:    s,
	}
	b.AddCloser(s.Close)
	return b
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/config"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestStudentRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewStudentRepository(pool)

	students := []database.Student{
		{ID: "s002", NameTH: "สมหญิง ใจดี", NameEN: "Somying Jaidee", Classroom: "M.1/1", RollNumber: 2},
		{ID: "s001", NameTH: "สมชาย รักเรียน", NameEN: "Somchai Rakrian", Classroom: "M.1/1", RollNumber: 1},
	}
	for _, s := range students {
		if err := repo.UpsertStudent(ctx, s); err != nil {
			t.Fatalf("Failed to upsert student: %v", err)
		}
	}

	t.Run("Get", func(t *testing.T) {
		got, err := repo.GetStudent(ctx, "s001")
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if got == nil || got.NameEN != "Somchai Rakrian" {
			t.Errorf("Expected Somchai Rakrian, got %+v", got)
		}

		missing, err := repo.GetStudent(ctx, "nobody")
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if missing != nil {
			t.Errorf("Expected nil for unknown student, got %+v", missing)
		}
	})

	t.Run("ListOrder", func(t *testing.T) {
		list, err := repo.ListStudents(ctx)
		if err != nil {
			t.Fatalf("Failed to list students: %v", err)
		}
		if len(list) != 2 || list[0].ID != "s001" {
			t.Errorf("Expected s001 first, got %+v", list)
		}
	})

	t.Run("Search", func(t *testing.T) {
		found, err := repo.SearchStudents(ctx, "somying", 10)
		if err != nil {
			t.Fatalf("Failed to search students: %v", err)
		}
		if len(found) != 1 || found[0].ID != "s002" {
			t.Errorf("Expected s002, got %+v", found)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteStudent(ctx, "s002"); err != nil {
			t.Fatalf("Failed to delete student: %v", err)
		}
		got, _ := repo.GetStudent(ctx, "s002")
		if got != nil {
			t.Error("Expected student to be deleted")
		}
	})
}

func TestSubjectRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSubjectRepository(pool)

	if err := repo.UpsertSubject(ctx, database.Subject{Code: "MATH101", Name: "Mathematics", StartTime: "10:10"}); err != nil {
		t.Fatalf("Failed to upsert subject: %v", err)
	}
	if err := repo.UpsertSubject(ctx, database.Subject{Code: "ENG101", Name: "English", StartTime: "08:30"}); err != nil {
		t.Fatalf("Failed to upsert subject: %v", err)
	}

	got, err := repo.GetSubject(ctx, "MATH101")
	if err != nil {
		t.Fatalf("Failed to get subject: %v", err)
	}
	if got == nil || got.StartTime != "10:10" {
		t.Fatalf("Expected start time 10:10, got %+v", got)
	}

	list, err := repo.ListSubjects(ctx)
	if err != nil {
		t.Fatalf("Failed to list subjects: %v", err)
	}
	if len(list) != 2 || list[0].Code != "ENG101" {
		t.Errorf("Expected ENG101 first, got %+v", list)
	}
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewAttendanceRepository(pool)
	observed := time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)

	rec := attendance.Record{
		Key:        attendance.Key{SubjectID: "s001", Date: "2026-03-02", Session: "MATH101"},
		ObservedAt: &observed,
		Status:     attendance.StatusPresent,
		Source:     attendance.SourceCamera,
	}

	t.Run("InsertOnce", func(t *testing.T) {
		first, created, err := repo.InsertIfAbsent(ctx, rec)
		if err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
		if !created {
			t.Fatal("Expected first insert to create a record")
		}
		if first.Date != "2026-03-02" {
			t.Errorf("Expected date 2026-03-02, got %s", first.Date)
		}

		later := observed.Add(time.Hour)
		dup := rec
		dup.ObservedAt = &later
		dup.Status = attendance.StatusLate
		second, created, err := repo.InsertIfAbsent(ctx, dup)
		if err != nil {
			t.Fatalf("Failed to insert duplicate: %v", err)
		}
		if created {
			t.Error("Expected duplicate insert not to create a record")
		}
		if second.ID != first.ID || second.Status != attendance.StatusPresent {
			t.Errorf("Expected existing record untouched, got %+v", second)
		}
		if second.ObservedAt == nil || !second.ObservedAt.Equal(observed) {
			t.Errorf("Expected observed_at %v, got %v", observed, second.ObservedAt)
		}
	})

	t.Run("ConcurrentInsert", func(t *testing.T) {
		key := attendance.Key{SubjectID: "s009", Date: "2026-03-02", Session: "DAILY"}
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := repo.InsertIfAbsent(ctx, attendance.Record{Key: key, ObservedAt: &observed, Status: attendance.StatusPresent, Source: attendance.SourceCamera})
				if err != nil {
					t.Errorf("Insert failed: %v", err)
					return
				}
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if created != 1 {
			t.Errorf("Expected exactly one created record, got %d", created)
		}
	})

	t.Run("ManualWithoutObservation", func(t *testing.T) {
		got, created, err := repo.InsertIfAbsent(ctx, attendance.Record{
			Key:    attendance.Key{SubjectID: "s002", Date: "2026-03-02", Session: "MATH101"},
			Status: attendance.StatusSickLeave,
			Source: attendance.SourceManual,
		})
		if err != nil || !created {
			t.Fatalf("Failed to insert manual record: created=%v err=%v", created, err)
		}
		if got.ObservedAt != nil {
			t.Errorf("Expected nil observed_at, got %v", got.ObservedAt)
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		list, err := repo.List(ctx, attendance.Filter{SubjectID: "s001"})
		if err != nil || len(list) != 1 {
			t.Fatalf("Expected one record for s001, got %d (err=%v)", len(list), err)
		}
		updated, err := repo.UpdateStatus(ctx, list[0].ID, attendance.StatusLate)
		if err != nil {
			t.Fatalf("Failed to update status: %v", err)
		}
		if updated.Status != attendance.StatusLate {
			t.Errorf("Expected late, got %s", updated.Status)
		}

		if _, err := repo.UpdateStatus(ctx, 999999, attendance.StatusLate); err != attendance.ErrRecordNotFound {
			t.Errorf("Expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("ListFilter", func(t *testing.T) {
		list, err := repo.List(ctx, attendance.Filter{Date: "2026-03-02", Session: "MATH101"})
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(list) != 2 {
			t.Errorf("Expected 2 records, got %d", len(list))
		}
		limited, _ := repo.List(ctx, attendance.Filter{Limit: 1})
		if len(limited) != 1 {
			t.Errorf("Expected limit 1, got %d", len(limited))
		}
	})
}

func TestSettingsRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSettingsRepository(pool)

	if err := repo.SaveSettings(ctx, map[string]string{"match_tolerance": "0.45", "grace_minutes": "10"}); err != nil {
		t.Fatalf("Failed to save settings: %v", err)
	}
	if err := repo.SaveSettings(ctx, map[string]string{"grace_minutes": "20"}); err != nil {
		t.Fatalf("Failed to overwrite setting: %v", err)
	}

	values, err := repo.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if values["match_tolerance"] != "0.45" || values["grace_minutes"] != "20" {
		t.Errorf("Unexpected settings: %v", values)
	}
}

func TestGalleryRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewGalleryRepository(pool)

	vector := func(v float32) []float32 {
		out := make([]float32, 128)
		for i := range out {
			out[i] = v
		}
		return out
	}
	entries := []gallery.Entry{
		{Vector: vector(0.1), SubjectID: "alice"},
		{Vector: vector(0.5), SubjectID: "bob"},
		{Vector: vector(0.9), SubjectID: "carol"},
	}
	if err := repo.ReplaceGallery(ctx, entries); err != nil {
		t.Fatalf("Failed to replace gallery: %v", err)
	}

	count, err := repo.CountGalleryEntries(ctx)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3, got %d", count)
	}

	nearest, err := repo.NearestEntries(ctx, vector(0.55), 2)
	if err != nil {
		t.Fatalf("Failed to query nearest: %v", err)
	}
	if len(nearest) != 2 || nearest[0].SubjectID != "bob" {
		t.Errorf("Expected bob first, got %+v", nearest)
	}
	for i := 1; i < len(nearest); i++ {
		if nearest[i].Distance < nearest[i-1].Distance {
			t.Error("Distances not sorted")
		}
	}

	// Replacing drops the previous entries.
	if err := repo.ReplaceGallery(ctx, entries[:1]); err != nil {
		t.Fatalf("Failed to replace gallery: %v", err)
	}
	count, _ = repo.CountGalleryEntries(ctx)
	if count != 1 {
		t.Errorf("Expected 1 after replace, got %d", count)
	}
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_create_students.sql",
		"002_create_subjects.sql",
		"003_create_attendance.sql",
		"004_create_settings.sql",
		"005_create_gallery_entries.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Re-running is a no-op.
	if err := pool.Migrate(ctx); err != nil {
		t.Errorf("Second migrate failed: %v", err)
	}
}

// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
)

// MockStudentStore is a mock implementation of database.StudentWriter
type MockStudentStore struct {
	mu       sync.RWMutex
	students map[string]database.Student

	// Error injection
	GetError    error
	ListError   error
	SearchError error
	UpsertError error
	DeleteError error
}

// NewMockStudentStore creates a new mock student store
func NewMockStudentStore(students ...database.Student) *MockStudentStore {
	m := &MockStudentStore{students: make(map[string]database.Student)}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return m
}

// GetStudent retrieves a student by id
func (m *MockStudentStore) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// ListStudents returns all students ordered by classroom, roll number and id
func (m *MockStudentStore) ListStudents(ctx context.Context) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Classroom != out[j].Classroom {
			return out[i].Classroom < out[j].Classroom
		}
		if out[i].RollNumber != out[j].RollNumber {
			return out[i].RollNumber < out[j].RollNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SearchStudents finds students by normalized name
func (m *MockStudentStore) SearchStudents(ctx context.Context, query string, limit int) ([]database.Student, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	all, err := m.ListStudents(ctx)
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
func (m *MockStudentStore) UpsertStudent(ctx context.Context, s database.Student) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

// DeleteStudent removes a student
func (m *MockStudentStore) DeleteStudent(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.students, id)
	return nil
}

// MockSubjectStore is a mock implementation of database.SubjectWriter
type MockSubjectStore struct {
	mu       sync.RWMutex
	subjects map[string]database.Subject

	// Error injection
	GetError    error
	ListError   error
	UpsertError error
}

// NewMockSubjectStore creates a new mock subject store
func NewMockSubjectStore(subjects ...database.Subject) *MockSubjectStore {
	m := &MockSubjectStore{subjects: make(map[string]database.Subject)}
	for _, s := range subjects {
		m.subjects[s.Code] = s
	}
	return m
}

// GetSubject retrieves a subject by code
func (m *MockSubjectStore) GetSubject(ctx context.Context, code string) (*database.Subject, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[code]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// ListSubjects returns all subjects ordered by start time
func (m *MockSubjectStore) ListSubjects(ctx context.Context) ([]database.Subject, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// UpsertSubject creates or replaces a subject
func (m *MockSubjectStore) UpsertSubject(ctx context.Context, s database.Subject) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.Code] = s
	return nil
}

// MockAttendanceStore wraps an in-memory store with error injection
type MockAttendanceStore struct {
	*attendance.MemoryStore

	// Error injection
	InsertError error
	UpdateError error
	ListError   error
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{MemoryStore: attendance.NewMemoryStore()}
}

// InsertIfAbsent stores rec unless its key exists
func (m *MockAttendanceStore) InsertIfAbsent(ctx context.Context, rec attendance.Record) (attendance.Record, bool, error) {
	if m.InsertError != nil {
		return attendance.Record{}, false, m.InsertError
	}
	return m.MemoryStore.InsertIfAbsent(ctx, rec)
}

// UpdateStatus overwrites the status of a record
func (m *MockAttendanceStore) UpdateStatus(ctx context.Context, id int64, status attendance.Status) (attendance.Record, error) {
	if m.UpdateError != nil {
		return attendance.Record{}, m.UpdateError
	}
	return m.MemoryStore.UpdateStatus(ctx, id, status)
}

// List returns records matching the filter
func (m *MockAttendanceStore) List(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.MemoryStore.List(ctx, filter)
}

// MockGalleryMirror is a mock implementation of database.GalleryMirror
type MockGalleryMirror struct {
	mu      sync.RWMutex
	entries []gallery.Entry

	// Call tracking
	ReplaceCalls int

	// Error injection
	ReplaceError error
	NearestError error
	CountError   error
}

// NewMockGalleryMirror creates a new mock gallery mirror
func NewMockGalleryMirror() *MockGalleryMirror {
	return &MockGalleryMirror{}
}

// ReplaceGallery swaps the mirrored entries
func (m *MockGalleryMirror) ReplaceGallery(ctx context.Context, entries []gallery.Entry) error {
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplaceCalls++
	m.entries = append([]gallery.Entry(nil), entries...)
	return nil
}

// NearestEntries returns the closest mirrored entries
func (m *MockGalleryMirror) NearestEntries(ctx context.Context, query []float32, limit int) ([]database.StoredGalleryEntry, error) {
	if m.NearestError != nil {
		return nil, m.NearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredGalleryEntry, 0, len(m.entries))
	for i, e := range m.entries {
		out = append(out, database.StoredGalleryEntry{
			Position:  i,
			SubjectID: e.SubjectID,
			Embedding: e.Vector,
			Distance:  facematch.EuclideanDistance(e.Vector, query),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountGalleryEntries returns the number of mirrored entries
func (m *MockGalleryMirror) CountGalleryEntries(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// NewBackend returns a backend made of mocks and in-memory stores
func NewBackend() *database.Backend {
	return &database.Backend{
		Name:       "mock",
		Students:   NewMockStudentStore(),
		Subjects:   NewMockSubjectStore(),
		Attendance: NewMockAttendanceStore(),
		Settings:   attendance.NewMemorySettings(nil),
		Gallery:    NewMockGalleryMirror(),
	}
}

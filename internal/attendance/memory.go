package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[Key]*Record
	byID    map[int64]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Key]*Record),
		byID:    make(map[int64]*Record),
		now:     time.Now,
	}
}

func (m *MemoryStore) InsertIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[rec.Key]; ok {
		return *existing, false, nil
	}
	m.nextID++
	rec.ID = m.nextID
	rec.UpdatedAt = m.now()
	stored := rec
	m.records[rec.Key] = &stored
	m.byID[rec.ID] = &stored
	return stored, true, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id int64, status Status) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	rec.Status = status
	rec.UpdatedAt = m.now()
	return *rec, nil
}

func (m *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, rec := range m.records {
		if filter.Date != "" && rec.Date != filter.Date {
			continue
		}
		if filter.Session != "" && rec.Session != filter.Session {
			continue
		}
		if filter.SubjectID != "" && rec.SubjectID != filter.SubjectID {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// MemorySettings is an in-process SettingsStore.
type MemorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemorySettings creates a settings store with optional initial values.
func NewMemorySettings(initial map[string]string) *MemorySettings {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MemorySettings{values: values}
}

func (m *MemorySettings) LoadSettings(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *MemorySettings) SaveSettings(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

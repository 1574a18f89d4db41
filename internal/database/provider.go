package database

import (
	"errors"
	"fmt"
	"sync"
)

// Backend bundles the repositories of one storage backend.
type Backend struct {
	Name       string
	Students   StudentWriter
	Directory  StudentReader // student lookups; differs from Students when an external directory is configured
	Subjects   SubjectWriter
	Attendance AttendanceStore
	Settings   SettingsStore
	Gallery    GalleryMirror

	closers []func() error
}

// AddCloser registers a function run by Close, in reverse order.
func (b *Backend) AddCloser(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close releases every resource held by the backend.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

var (
	active   *Backend
	activeMu sync.RWMutex
)

// RegisterBackend sets the active backend.
// This is called by cmd after opening postgres or sqlite to avoid import cycles.
func RegisterBackend(b *Backend) {
	activeMu.Lock()
	defer activeMu.Unlock()
	if b.Directory == nil {
		b.Directory = b.Students
	}
	active = b
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active != nil
}

// GetBackend returns the active backend
func GetBackend() (*Backend, error) {
	activeMu.RLock()
	defer activeMu.RUnlock()
	if active == nil {
		return nil, fmt.Errorf("database backend not initialized: set DATABASE_URL or SQLITE_PATH")
	}
	return active, nil
}

// GetGalleryMirror returns the gallery mirror of the active backend
func GetGalleryMirror() (GalleryMirror, error) {
	b, err := GetBackend()
	if err != nil {
		return nil, err
	}
	if b.Gallery == nil {
		return nil, fmt.Errorf("%s backend has no gallery mirror", b.Name)
	}
	return b.Gallery, nil
}

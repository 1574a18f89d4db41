package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/config"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/database/mariadb"
	"github.com/kozaktomas/attendance-cam/internal/database/postgres"
	"github.com/kozaktomas/attendance-cam/internal/database/sqlite"
	"github.com/kozaktomas/attendance-cam/internal/engine"
	"github.com/kozaktomas/attendance-cam/internal/faceapi"
	"github.com/kozaktomas/attendance-cam/internal/notify"
)

// openBackend opens PostgreSQL when DATABASE_URL is set and the SQLite file
// otherwise, attaches the optional MariaDB student directory and registers
// the result as the active backend.
func openBackend(ctx context.Context, cfg *config.Config) (*database.Backend, error) {
	var backend *database.Backend
	if cfg.Database.UsesPostgres() {
		fmt.Printf("Connecting to PostgreSQL database...\n")
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		backend = postgres.NewBackend(pool)
	} else {
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database %s: %w", cfg.Database.SQLitePath, err)
		}
		backend = store.Backend()
	}

	if cfg.Directory.DSN != "" {
		pool, err := mariadb.NewPool(ctx, cfg.Directory.DSN)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("failed to connect to student directory: %w", err)
		}
		backend.Directory = mariadb.NewStudentDirectory(pool)
		backend.AddCloser(pool.Close)
		fmt.Printf("Student directory: MariaDB\n")
	}

	database.RegisterBackend(backend)
	fmt.Printf("Using %s backend\n", backend.Name)
	return backend, nil
}

// openAnalyzer returns the configured face provider and a function releasing it.
func openAnalyzer(cfg *config.Config) (faceapi.Analyzer, func() error, error) {
	switch cfg.FaceAPI.Provider {
	case "", "http":
		return faceapi.NewClient(cfg.FaceAPI.URL), func() error { return nil }, nil
	case "http-split":
		c := faceapi.NewClient(cfg.FaceAPI.URL)
		return faceapi.Compose(c, c), func() error { return nil }, nil
	case "dlib":
		d, err := faceapi.NewDlib(cfg.FaceAPI.ModelsDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load dlib models: %w", err)
		}
		return d, d.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown face provider %q (want http, http-split or dlib)", cfg.FaceAPI.Provider)
	}
}

// openNotifier connects to the MQTT broker when one is configured. The
// returned notifier is nil when notifications are disabled.
func openNotifier(cfg *config.Config) (*notify.MQTTNotifier, error) {
	if cfg.MQTT.Broker == "" {
		return nil, nil
	}
	n, err := notify.Connect(cfg.MQTT)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Publishing attendance events to %s/<session>\n", cfg.MQTT.Topic)
	return n, nil
}

// app is everything a command needs to work on the engine.
type app struct {
	cfg     *config.Config
	backend *database.Backend
	engine  *engine.Engine
	closers []func() error
}

// Close releases the engine, notifier, provider and backend.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}
}

// openApp wires the backend, face provider and notifier into an engine.
// withNotifier is false for commands that must not publish events.
func openApp(ctx context.Context, withNotifier bool) (*app, error) {
	cfg := config.Load()
	a := &app{cfg: cfg}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	a.closers = append(a.closers, backend.Close)

	analyzer, release, err := openAnalyzer(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, release)

	var notifier attendance.Notifier
	if withNotifier {
		n, err := openNotifier(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		if n != nil {
			notifier = n
			a.closers = append(a.closers, n.Close)
		}
	}

	e, err := engine.FromConfig(cfg, backend, analyzer, notifier)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = e
	return a, nil
}

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/capture"
	"github.com/kozaktomas/attendance-cam/internal/config"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/faceapi"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/pipeline"
)

// FromConfig assembles an engine over backend. The gallery snapshot is loaded
// from disk; a missing or corrupt snapshot starts an empty gallery with a
// warning. notifier may be nil.
func FromConfig(cfg *config.Config, backend *database.Backend, analyzer faceapi.Analyzer, notifier attendance.Notifier) (*Engine, error) {
	cutoff, err := attendance.ParseClock(cfg.Defaults.Policy.LateCutoff)
	if err != nil {
		return nil, fmt.Errorf("late cutoff: %w", err)
	}
	policy := attendance.NewStoredPolicy(backend.Settings, attendance.Policy{
		Tolerance:    cfg.Defaults.Policy.Tolerance,
		GraceMinutes: cfg.Defaults.Policy.GraceMinutes,
		LateCutoff:   cutoff,
	})

	opts := []attendance.Option{attendance.WithLocation(cfg.Location)}
	if notifier != nil {
		opts = append(opts, attendance.WithNotifier(notifier))
	}
	recorder := attendance.NewRecorder(backend.Attendance, policy, opts...)

	g, err := gallery.Load(cfg.Gallery.SnapshotPath)
	switch {
	case errors.Is(err, gallery.ErrSnapshotMissing):
		slog.Warn("no gallery snapshot yet, run a rebuild", "path", cfg.Gallery.SnapshotPath)
	case err != nil:
		slog.Warn("gallery snapshot unusable, starting empty", "error", err)
	default:
		slog.Info("gallery loaded", "entries", g.Len(), "built_at", g.BuiltAt)
	}
	store := gallery.NewStore(g, cfg.Gallery.HNSWThreshold)

	annotator, err := pipeline.NewAnnotator(cfg.Defaults.Overlay, cfg.Camera.FontPath)
	if err != nil {
		return nil, err
	}

	var directory database.StudentReader = backend.Directory
	if directory == nil {
		directory = backend.Students
	}

	p := pipeline.New(pipeline.Deps{
		Analyzer:  analyzer,
		Gallery:   store,
		Policy:    policy,
		Directory: directory,
		Recorder:  recorder,
		Annotator: annotator,
	}, pipeline.Options{
		Downsample:  cfg.Defaults.Camera.Downsample,
		JPEGQuality: cfg.Defaults.Camera.JPEGQuality,
	})

	interval := time.Duration(cfg.Defaults.Camera.FrameIntervalMs) * time.Millisecond
	manager := pipeline.NewManager(p, capture.Opener(interval))

	return New(Deps{
		Builder:  gallery.NewBuilder(analyzer, cfg.Gallery.Workers),
		Gallery:  store,
		Pipeline: p,
		Manager:  manager,
		Recorder: recorder,
		Policy:   policy,
		Students: directory,
		Subjects: backend.Subjects,
		Mirror:   backend.Gallery,
	}, Options{
		CorpusDir:    cfg.Gallery.CorpusDir,
		SnapshotPath: cfg.Gallery.SnapshotPath,
	}), nil
}

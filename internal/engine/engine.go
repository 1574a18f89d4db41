// Package engine exposes the operations of the attendance system to the CLI
// and the web API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
	"github.com/kozaktomas/attendance-cam/internal/pipeline"
)

var (
	// ErrRebuildInProgress is returned when a gallery rebuild is already running.
	ErrRebuildInProgress = errors.New("gallery rebuild already in progress")
	// ErrUnreadableImage is returned when an uploaded image cannot be decoded.
	ErrUnreadableImage = errors.New("unreadable image")
	// ErrUnknownSession is returned for a subject code that is not scheduled.
	ErrUnknownSession = errors.New("unknown session")
	// ErrStudentNotFound is returned when attendance is entered for an unknown student.
	ErrStudentNotFound = errors.New("student not found")
)

// Kind is the outcome of a one-shot classification.
type Kind string

const (
	KindIdentified Kind = "identified"
	KindUnknown    Kind = "unknown"
	KindNoFace     Kind = "no_face"
)

// Classification is the decision for the largest face of an uploaded image.
type Classification struct {
	Kind      Kind                `json:"result"`
	SubjectID string              `json:"subject_id,omitempty"`
	Distance  float64             `json:"distance,omitempty"`
	Box       *image.Rectangle    `json:"box,omitempty"`
	Faces     int                 `json:"faces"`
	Student   *database.Student   `json:"student,omitempty"`
	Outcome   *attendance.Outcome `json:"outcome,omitempty"`
}

// ClassifyOptions controls ClassifyOnce.
type ClassifyOptions struct {
	Record  bool   // record attendance for an identified face
	Session string // subject code, empty for the daily check-in
}

// GalleryInfo describes the published gallery.
type GalleryInfo struct {
	Entries  int       `json:"entries"`
	Subjects int       `json:"subjects"`
	Dim      int       `json:"dim"`
	Indexed  bool      `json:"indexed"`
	BuiltAt  time.Time `json:"built_at,omitzero"`
}

// Options are the file locations the engine works on.
type Options struct {
	CorpusDir    string
	SnapshotPath string // empty disables persisting rebuilt galleries
}

// Deps are the collaborators of the engine. Subjects, Mirror and Manager may be nil.
type Deps struct {
	Builder  *gallery.Builder
	Gallery  *gallery.Store
	Pipeline *pipeline.Pipeline
	Manager  *pipeline.Manager
	Recorder *attendance.Recorder
	Policy   *attendance.StoredPolicy
	Students database.StudentReader
	Subjects database.SubjectReader
	Mirror   database.GalleryMirror
}

// Engine wires recognition, the gallery and the attendance recorder together.
type Engine struct {
	deps Deps
	opts Options
	now  func() time.Time

	rebuildMu sync.Mutex
}

// New creates an engine.
func New(deps Deps, opts Options) *Engine {
	return &Engine{deps: deps, opts: opts, now: time.Now}
}

// Gallery returns a summary of the published gallery.
func (e *Engine) Gallery() GalleryInfo {
	g := e.deps.Gallery.Current()
	return GalleryInfo{
		Entries:  g.Len(),
		Subjects: len(g.Subjects()),
		Dim:      g.Dim(),
		Indexed:  g.Indexed(),
		BuiltAt:  g.BuiltAt,
	}
}

// RebuildGallery encodes the corpus into a new gallery, persists it and
// publishes it. On any failure the previous gallery stays in service.
// progress may be nil.
func (e *Engine) RebuildGallery(ctx context.Context, progress func(gallery.Progress)) (gallery.Stats, error) {
	if !e.rebuildMu.TryLock() {
		return gallery.Stats{}, ErrRebuildInProgress
	}
	defer e.rebuildMu.Unlock()

	g, stats, err := e.deps.Builder.Rebuild(ctx, e.opts.CorpusDir, progress)
	if err != nil {
		return stats, err
	}
	if e.opts.SnapshotPath != "" {
		if err := gallery.Save(g, e.opts.SnapshotPath); err != nil {
			return stats, fmt.Errorf("persist gallery: %w", err)
		}
	}
	e.deps.Gallery.Swap(g)
	slog.Info("gallery published", "entries", stats.Entries, "subjects", stats.Subjects,
		"unreadable", stats.Unreadable, "no_face", stats.NoFace, "duration", stats.Duration)

	if e.deps.Mirror != nil {
		if err := e.deps.Mirror.ReplaceGallery(ctx, g.Entries()); err != nil {
			slog.Warn("failed to mirror gallery", "error", err)
		}
	}
	return stats, nil
}

// ClassifyOnce decodes an image, detects its faces and classifies the largest
// one against the current gallery.
func (e *Engine) ClassifyOnce(ctx context.Context, data []byte, opts ClassifyOptions) (*Classification, error) {
	img, err := imaging.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableImage, err)
	}

	var session attendance.Session
	if opts.Record {
		if session, err = e.ResolveSession(ctx, opts.Session); err != nil {
			return nil, err
		}
	}

	detections, err := e.deps.Pipeline.DetectAt(ctx, img, 1)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(detections) == 0 {
		return &Classification{Kind: KindNoFace}, nil
	}

	boxes := make([]image.Rectangle, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
	}
	d := detections[facematch.Largest(boxes)]
	c := &Classification{
		Kind:     KindUnknown,
		Distance: d.Match.Distance,
		Box:      &d.Box,
		Faces:    len(detections),
	}
	if !d.Match.Identified {
		return c, nil
	}

	c.Kind = KindIdentified
	c.SubjectID = d.Match.SubjectID
	c.Student = e.lookup(ctx, d.Match.SubjectID)
	if opts.Record {
		out, err := e.deps.Recorder.RecordFrom(ctx, d.Match.SubjectID, session, e.now(), attendance.SourceAPI)
		if err != nil {
			return nil, fmt.Errorf("record attendance: %w", err)
		}
		c.Outcome = &out
	}
	return c, nil
}

func (e *Engine) lookup(ctx context.Context, id string) *database.Student {
	if e.deps.Students == nil {
		return nil
	}
	s, err := e.deps.Students.GetStudent(ctx, id)
	if err != nil {
		slog.Warn("student lookup failed", "student_id", id, "error", err)
		return nil
	}
	return s
}

// ResolveSession maps a subject code to its session. An empty code or the
// daily session id selects the daily check-in.
func (e *Engine) ResolveSession(ctx context.Context, code string) (attendance.Session, error) {
	if code == "" || code == constants.DailySession {
		return attendance.Daily(), nil
	}
	if e.deps.Subjects == nil {
		return attendance.Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, code)
	}
	subject, err := e.deps.Subjects.GetSubject(ctx, code)
	if err != nil {
		return attendance.Session{}, fmt.Errorf("get subject: %w", err)
	}
	if subject == nil {
		return attendance.Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, code)
	}
	return subject.Session()
}

// checkStudent rejects ids missing from the directory. Without a directory
// every id is accepted.
func (e *Engine) checkStudent(ctx context.Context, id string) error {
	if id == "" {
		return attendance.ErrEmptySubject
	}
	if e.deps.Students == nil {
		return nil
	}
	s, err := e.deps.Students.GetStudent(ctx, id)
	if err != nil {
		return fmt.Errorf("get student: %w", err)
	}
	if s == nil {
		return fmt.Errorf("%w: %s", ErrStudentNotFound, id)
	}
	return nil
}

// RecordAttendance records that a student was observed at observedAt. A zero
// observedAt means now.
func (e *Engine) RecordAttendance(ctx context.Context, studentID, sessionCode string, observedAt time.Time) (attendance.Outcome, error) {
	if err := e.checkStudent(ctx, studentID); err != nil {
		return attendance.Outcome{}, err
	}
	session, err := e.ResolveSession(ctx, sessionCode)
	if err != nil {
		return attendance.Outcome{}, err
	}
	if observedAt.IsZero() {
		observedAt = e.now()
	}
	return e.deps.Recorder.RecordFrom(ctx, studentID, session, observedAt, attendance.SourceAPI)
}

// RecordManual enters an absence or leave for a student on date.
func (e *Engine) RecordManual(ctx context.Context, studentID, sessionCode string, date time.Time, status attendance.Status) (attendance.Outcome, error) {
	if err := e.checkStudent(ctx, studentID); err != nil {
		return attendance.Outcome{}, err
	}
	session, err := e.ResolveSession(ctx, sessionCode)
	if err != nil {
		return attendance.Outcome{}, err
	}
	return e.deps.Recorder.RecordManual(ctx, studentID, date, status, session)
}

// Location returns the time zone calendar dates are kept in.
func (e *Engine) Location() *time.Location {
	return e.deps.Recorder.Location()
}

// CorrectStatus overwrites the status of a record.
func (e *Engine) CorrectStatus(ctx context.Context, id int64, status attendance.Status) (attendance.Record, error) {
	return e.deps.Recorder.UpdateStatus(ctx, id, status)
}

// ListAttendance returns records matching filter. An empty date lists today.
func (e *Engine) ListAttendance(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	if filter.Date == "" {
		filter.Date = e.deps.Recorder.Today(e.now())
	}
	if filter.Limit <= 0 {
		filter.Limit = constants.DefaultAttendancePageSize
	}
	return e.deps.Recorder.List(ctx, filter)
}

// Policy returns the live attendance policy.
func (e *Engine) Policy(ctx context.Context) (attendance.Policy, error) {
	return e.deps.Policy.Policy(ctx)
}

// UpdatePolicy stores a new policy; it applies to the next decision.
func (e *Engine) UpdatePolicy(ctx context.Context, p attendance.Policy) error {
	return e.deps.Policy.Update(ctx, p)
}

// Students returns the directory, filtered by name when query is set.
func (e *Engine) Students(ctx context.Context, query string, limit int) ([]database.Student, error) {
	if e.deps.Students == nil {
		return nil, nil
	}
	if query == "" {
		return e.deps.Students.ListStudents(ctx)
	}
	if limit <= 0 {
		limit = constants.DefaultStudentSearchLimit
	}
	return e.deps.Students.SearchStudents(ctx, query, limit)
}

// Student returns one student, nil when unknown.
func (e *Engine) Student(ctx context.Context, id string) (*database.Student, error) {
	if e.deps.Students == nil {
		return nil, nil
	}
	return e.deps.Students.GetStudent(ctx, id)
}

// StartCamera runs the recognition pipeline on device until StopCamera.
func (e *Engine) StartCamera(ctx context.Context, device, sessionCode string) (pipeline.RunInfo, error) {
	session, err := e.ResolveSession(ctx, sessionCode)
	if err != nil {
		return pipeline.RunInfo{}, err
	}
	return e.deps.Manager.Start(device, session)
}

// StopCamera stops the pipeline on device and waits for the device to be released.
func (e *Engine) StopCamera(device string) error {
	return e.deps.Manager.Stop(device)
}

// Cameras lists the running pipelines.
func (e *Engine) Cameras() []pipeline.RunInfo {
	return e.deps.Manager.List()
}

// FrameStream is one viewer's feed of annotated frames.
type FrameStream struct {
	frames <-chan []byte
	err    error
}

// Frames returns the annotated JPEG frames. The channel is closed when the
// viewer's context is canceled or the camera stops.
func (s *FrameStream) Frames() <-chan []byte {
	return s.frames
}

// Err returns the terminal status of the stream once Frames is closed. It is
// nil when the viewer left, the source ended or the camera was stopped, and
// wraps pipeline.ErrCaptureFailed when the device failed.
func (s *FrameStream) Err() error {
	return s.err
}

// StreamAnnotatedFrames returns the annotated JPEG frames of device for one
// viewer. The camera is started for sessionCode if it is not running; a
// camera recording another session is not joined. A slow reader skips frames
// instead of delaying the camera.
func (e *Engine) StreamAnnotatedFrames(ctx context.Context, device, sessionCode string) (*FrameStream, error) {
	session, err := e.ResolveSession(ctx, sessionCode)
	if err != nil {
		return nil, err
	}
	sub, err := e.deps.Manager.Subscribe(device, session)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte)
	stream := &FrameStream{frames: out}
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-sub.Frames:
				if !ok {
					stream.err = sub.Err()
					return
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return stream, nil
}

// CameraFailures lists the devices whose last run ended with a capture error.
func (e *Engine) CameraFailures() []pipeline.Failure {
	return e.deps.Manager.Failures()
}

// Close stops every camera.
func (e *Engine) Close() {
	if e.deps.Manager != nil {
		e.deps.Manager.StopAll()
	}
}

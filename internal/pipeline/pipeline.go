// Package pipeline runs face recognition over camera frames and records
// attendance for identified students.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/capture"
	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/faceapi"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

// ErrCaptureFailed is returned when the video source fails mid-run.
var ErrCaptureFailed = errors.New("capture device failure")

// UnknownLabel is drawn for faces that matched nobody.
const UnknownLabel = "Unknown"

// Recorder records attendance for an identified subject.
type Recorder interface {
	Record(ctx context.Context, subjectID string, session attendance.Session, observedAt time.Time) (attendance.Outcome, error)
}

// Options tunes frame processing.
type Options struct {
	Downsample  float64 // scale applied before detection, 1 disables
	JPEGQuality int
}

// Deps are the collaborators of a Pipeline. Directory and Recorder may be nil.
type Deps struct {
	Analyzer  faceapi.Analyzer
	Gallery   *gallery.Store
	Policy    attendance.PolicySource
	Directory database.StudentReader
	Recorder  Recorder
	Annotator *Annotator
}

// Detection is the decision for one face in a frame.
type Detection struct {
	Box     image.Rectangle       `json:"box"`
	Match   facematch.MatchResult `json:"match"`
	Student *database.Student     `json:"student,omitempty"`
	Outcome *attendance.Outcome   `json:"outcome,omitempty"`
}

// Result is one processed frame.
type Result struct {
	Seq        uint64      `json:"seq"`
	CapturedAt time.Time   `json:"captured_at"`
	Detections []Detection `json:"detections"`
	JPEG       []byte      `json:"-"`
}

// Pipeline turns frames into decisions and annotated JPEGs.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Downsample <= 0 || opts.Downsample > 1 {
		opts.Downsample = constants.DefaultDownsample
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = constants.JPEGQuality
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// Detect finds and classifies the faces of a camera frame without recording
// attendance. Boxes are returned in img's coordinates.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return p.DetectAt(ctx, img, p.opts.Downsample)
}

// DetectAt is Detect with an explicit downsample factor; 1 runs detection on
// the full image.
func (p *Pipeline) DetectAt(ctx context.Context, img image.Image, scale float64) ([]Detection, error) {
	policy, err := p.deps.Policy.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	small := imaging.Downsample(img, scale)
	faces, err := p.deps.Analyzer.Analyze(ctx, small)
	if err != nil {
		return nil, err
	}
	faces = suppressDuplicates(faces)

	snapshot := p.deps.Gallery.Current()
	origin := img.Bounds().Min
	detections := make([]Detection, 0, len(faces))
	for _, f := range faces {
		detections = append(detections, Detection{
			Box:   facematch.ScaleRect(f.Box, scale).Add(origin),
			Match: snapshot.Classify(f.Vector, policy.Tolerance),
		})
	}
	return detections, nil
}

// suppressDuplicates drops faces reported twice by the detector.
func suppressDuplicates(faces []faceapi.Face) []faceapi.Face {
	if len(faces) < 2 {
		return faces
	}
	boxes := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		boxes[i] = f.Box
	}
	remaining := map[image.Rectangle]int{}
	for _, b := range facematch.SuppressOverlaps(boxes, constants.FaceOverlapThreshold) {
		remaining[b]++
	}
	out := faces[:0:0]
	for _, f := range faces {
		if remaining[f.Box] > 0 {
			remaining[f.Box]--
			out = append(out, f)
		}
	}
	return out
}

// ProcessFrame runs recognition on frame, records attendance for identified
// students in session and renders the annotated JPEG.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame *capture.Frame, session attendance.Session) (*Result, error) {
	detections, err := p.Detect(ctx, frame.Image)
	if err != nil {
		return nil, err
	}

	for i := range detections {
		d := &detections[i]
		if !d.Match.Identified {
			continue
		}
		d.Student = p.lookup(ctx, d.Match.SubjectID)
		if p.deps.Recorder == nil {
			continue
		}
		out, err := p.deps.Recorder.Record(ctx, d.Match.SubjectID, session, p.now())
		if err != nil {
			slog.Error("failed to record attendance", "student_id", d.Match.SubjectID, "session", session.ID(), "error", err)
			continue
		}
		d.Outcome = &out
		if out.Created {
			slog.Info("attendance recorded", "student_id", d.Match.SubjectID, "session", session.ID(), "status", out.Record.Status)
		}
	}

	jpeg, err := p.Render(frame.Image, detections)
	if err != nil {
		return nil, err
	}
	return &Result{Seq: frame.Seq, CapturedAt: frame.CapturedAt, Detections: detections, JPEG: jpeg}, nil
}

func (p *Pipeline) lookup(ctx context.Context, subjectID string) *database.Student {
	if p.deps.Directory == nil {
		return nil
	}
	s, err := p.deps.Directory.GetStudent(ctx, subjectID)
	if err != nil {
		slog.Warn("student lookup failed", "student_id", subjectID, "error", err)
		return nil
	}
	return s
}

// Render draws detections on img and encodes it as JPEG.
func (p *Pipeline) Render(img image.Image, detections []Detection) ([]byte, error) {
	if p.deps.Annotator == nil {
		return imaging.EncodeJPEG(img, p.opts.JPEGQuality)
	}
	labels := make([]Label, len(detections))
	for i, d := range detections {
		labels[i] = Label{Box: d.Box, Text: p.labelText(d), Known: d.Match.Identified}
	}
	return imaging.EncodeJPEG(p.deps.Annotator.Draw(img, labels), p.opts.JPEGQuality)
}

func (p *Pipeline) labelText(d Detection) string {
	if !d.Match.Identified {
		return UnknownLabel
	}
	s := d.Student
	if s == nil {
		return d.Match.SubjectID
	}
	name := s.NameEN
	if p.deps.Annotator.Unicode() && s.NameTH != "" {
		name = s.NameTH
	}
	if name == "" {
		name = s.ID
	}
	if s.Classroom != "" {
		name += " " + s.Classroom
	}
	return name
}

// Run processes frames from src in capture order until the source ends or ctx
// is canceled, passing every result to emit. src is closed on return.
// End of stream returns nil; a source failure returns ErrCaptureFailed.
func (p *Pipeline) Run(ctx context.Context, src capture.Source, session attendance.Session, emit func(*Result)) (err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Warn("failed to close capture source", "error", cerr)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrEndOfStream):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		result, err := p.ProcessFrame(ctx, frame, session)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Provider trouble costs one frame, not the run.
			slog.Warn("frame recognition failed", "seq", frame.Seq, "error", err)
			jpeg, rerr := p.Render(frame.Image, nil)
			if rerr != nil {
				continue
			}
			result = &Result{Seq: frame.Seq, CapturedAt: frame.CapturedAt, JPEG: jpeg}
		}
		emit(result)
	}
}

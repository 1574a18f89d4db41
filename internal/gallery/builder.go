package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/faceapi"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

// Stats summarizes a rebuild.
type Stats struct {
	Images     int           `json:"images"`
	Entries    int           `json:"entries"`
	Subjects   int           `json:"subjects"`
	Unreadable int           `json:"unreadable"`
	NoFace     int           `json:"no_face"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Progress is reported after each processed image.
type Progress struct {
	Done      int
	Total     int
	SubjectID string
	Path      string
}

type sampleStatus int

const (
	sampleOK sampleStatus = iota
	sampleUnreadable
	sampleNoFace
	sampleFailed
)

type sampleResult struct {
	status  sampleStatus
	vectors [][]float32
}

// Builder turns an enrollment corpus into a gallery.
type Builder struct {
	analyzer faceapi.Analyzer
	workers  int
	now      func() time.Time
}

// NewBuilder creates a builder encoding up to workers images in parallel.
// workers below 1 selects the default pool size.
func NewBuilder(analyzer faceapi.Analyzer, workers int) *Builder {
	if workers < 1 {
		workers = constants.WorkerPoolSize
	}
	return &Builder{analyzer: analyzer, workers: workers, now: time.Now}
}

// Rebuild encodes every sample under root into a fresh gallery. Unreadable images
// and images without a face are counted and skipped. Entry order follows the
// corpus order regardless of worker scheduling. progress may be nil.
func (b *Builder) Rebuild(ctx context.Context, root string, progress func(Progress)) (*Gallery, Stats, error) {
	start := b.now()
	samples, err := ListSamples(root)
	if err != nil {
		return nil, Stats{}, err
	}

	results := make([]sampleResult, len(samples))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	sem := make(chan struct{}, b.workers)

	for i, s := range samples {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, s Sample) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() == nil {
				results[i] = b.processSample(ctx, s)
			}

			if progress != nil {
				mu.Lock()
				done++
				progress(Progress{Done: done, Total: len(samples), SubjectID: s.SubjectID, Path: s.Path})
				mu.Unlock()
			}
		}(i, s)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("rebuild canceled: %w", err)
	}

	stats := Stats{Images: len(samples)}
	var entries []Entry
	subjects := make(map[string]bool)
	for i, r := range results {
		switch r.status {
		case sampleUnreadable:
			stats.Unreadable++
		case sampleNoFace:
			stats.NoFace++
		case sampleFailed:
			stats.Failed++
		case sampleOK:
			for _, v := range r.vectors {
				entries = append(entries, Entry{Vector: v, SubjectID: samples[i].SubjectID})
			}
			subjects[samples[i].SubjectID] = true
		}
	}

	if stats.Images > 0 && stats.Failed == stats.Images {
		return nil, stats, ErrProviderUnavailable
	}

	stats.Entries = len(entries)
	stats.Subjects = len(subjects)
	stats.Duration = b.now().Sub(start)
	return FromEntries(entries, start), stats, nil
}

func (b *Builder) processSample(ctx context.Context, s Sample) sampleResult {
	f, err := os.Open(s.Path)
	if err != nil {
		slog.Warn("skipping unreadable image", "path", s.Path, "error", err)
		return sampleResult{status: sampleUnreadable}
	}
	img, err := imaging.Decode(f)
	f.Close()
	if err != nil {
		slog.Warn("skipping unreadable image", "path", s.Path, "error", err)
		return sampleResult{status: sampleUnreadable}
	}

	faces, err := b.analyzer.Analyze(ctx, img)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("face provider failed", "path", s.Path, "error", err)
		}
		return sampleResult{status: sampleFailed}
	}
	if len(faces) == 0 {
		slog.Info("no face found in enrollment image", "path", s.Path, "subject", s.SubjectID)
		return sampleResult{status: sampleNoFace}
	}

	vectors := make([][]float32, len(faces))
	for i, face := range faces {
		vectors[i] = face.Vector
	}
	return sampleResult{status: sampleOK, vectors: vectors}
}

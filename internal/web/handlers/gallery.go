package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/attendance-cam/internal/engine"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
)

// GalleryHandler handles gallery inspection and rebuilds
type GalleryHandler struct {
	engine     *engine.Engine
	jobManager *JobManager
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(e *engine.Engine, jm *JobManager) *GalleryHandler {
	return &GalleryHandler{engine: e, jobManager: jm}
}

// Info returns a summary of the published gallery
func (h *GalleryHandler) Info(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Gallery())
}

// Rebuild starts a gallery rebuild. With ?wait=true the rebuild runs in the
// request and the stats are returned; otherwise a job is started and 202 returned.
func (h *GalleryHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		stats, err := h.engine.RebuildGallery(r.Context(), nil)
		if err != nil {
			respondEngineError(w, err, "failed to rebuild gallery")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"stats":   stats,
			"gallery": h.engine.Gallery(),
		})
		return
	}

	// The job outlives the request.
	ctx, cancel := context.WithCancel(context.Background())
	job := h.jobManager.CreateJob(uuid.New().String(), cancel)
	go h.runRebuildJob(ctx, job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

func (h *GalleryHandler) runRebuildJob(ctx context.Context, job *RebuildJob) {
	defer job.cancel()

	job.mu.Lock()
	if job.Status == JobStatusPending {
		job.Status = JobStatusRunning
	}
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started"})

	stats, err := h.engine.RebuildGallery(ctx, func(p gallery.Progress) {
		job.mu.Lock()
		job.Total = p.Total
		job.Processed = p.Done
		job.mu.Unlock()
		job.SendEvent(JobEvent{Type: "progress", Data: map[string]any{
			"done":       p.Done,
			"total":      p.Total,
			"subject_id": p.SubjectID,
		}})
	})

	now := time.Now()
	job.mu.Lock()
	job.CompletedAt = &now
	switch {
	case job.Status == JobStatusCancelled:
	case err != nil:
		job.Status = JobStatusFailed
		job.Error = err.Error()
	default:
		job.Status = JobStatusCompleted
		job.Result = &stats
	}
	status := job.Status
	job.mu.Unlock()

	switch {
	case status == JobStatusCancelled:
	case err != nil:
		job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
	default:
		job.SendEvent(JobEvent{Type: "completed", Data: stats})
	}
}

// Status returns the status of a rebuild job
func (h *GalleryHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// Events streams rebuild progress via SSE
func (h *GalleryHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*RebuildJob).View()
		},
	)
}

// Cancel cancels a running rebuild job
func (h *GalleryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": string(JobStatusCancelled)})
}

// Refresh rebuilds the gallery and redirects to the live view.
func (h *GalleryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.RebuildGallery(r.Context(), nil); err != nil && !errors.Is(err, engine.ErrRebuildInProgress) {
		respondEngineError(w, err, "failed to rebuild gallery")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

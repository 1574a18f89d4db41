package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/capture"
	"github.com/kozaktomas/attendance-cam/internal/engine"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/pipeline"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine and domain errors to HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, engine.ErrStudentNotFound),
		errors.Is(err, attendance.ErrRecordNotFound),
		errors.Is(err, pipeline.ErrNotRunning):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrUnknownSession),
		errors.Is(err, engine.ErrUnreadableImage),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidManualStatus),
		errors.Is(err, attendance.ErrEmptySubject):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrRebuildInProgress),
		errors.Is(err, capture.ErrDeviceBusy),
		errors.Is(err, pipeline.ErrSessionMismatch):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gallery.ErrCorpusMissing):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pipeline.ErrCaptureFailed),
		errors.Is(err, gallery.ErrProviderUnavailable):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

// HealthHandler reports liveness together with the gallery state.
type HealthHandler struct {
	engine *engine.Engine
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(e *engine.Engine) *HealthHandler {
	return &HealthHandler{engine: e}
}

// HealthCheck handles the health check endpoint.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"gallery":         h.engine.Gallery(),
		"cameras":         len(h.engine.Cameras()),
		"camera_failures": h.engine.CameraFailures(),
	})
}

package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/engine"
	"github.com/kozaktomas/attendance-cam/internal/pipeline"
)

const errCameraNotAllowed = "camera is not configured"

// CamerasHandler handles camera pipelines and the MJPEG video feed
type CamerasHandler struct {
	engine  *engine.Engine
	devices []string
}

// NewCamerasHandler creates a new cameras handler. Requests may only name one
// of devices; the first one is used when a request names no camera.
func NewCamerasHandler(e *engine.Engine, devices []string) *CamerasHandler {
	return &CamerasHandler{engine: e, devices: devices}
}

// device resolves the requested camera against the configured devices.
func (h *CamerasHandler) device(requested string) (string, bool) {
	if len(h.devices) == 0 {
		return "", false
	}
	if requested == "" {
		return h.devices[0], true
	}
	if slices.Contains(h.devices, requested) {
		return requested, true
	}
	return "", false
}

// CamerasResponse lists running cameras and the capture failures that ended
// previous runs.
type CamerasResponse struct {
	Running  []pipeline.RunInfo `json:"running"`
	Failures []pipeline.Failure `json:"failures"`
}

// List returns the running cameras
func (h *CamerasHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, CamerasResponse{
		Running:  h.engine.Cameras(),
		Failures: h.engine.CameraFailures(),
	})
}

// CameraStartRequest represents a camera start request
type CameraStartRequest struct {
	Device  string `json:"device"`
	Session string `json:"session"`
}

// Start runs the recognition pipeline on a camera until it is stopped
func (h *CamerasHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req CameraStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	device, ok := h.device(req.Device)
	if !ok {
		respondError(w, http.StatusBadRequest, errCameraNotAllowed)
		return
	}

	info, err := h.engine.StartCamera(r.Context(), device, req.Session)
	if err != nil {
		respondEngineError(w, err, "failed to start camera")
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

// Stop stops the camera run with the given id
func (h *CamerasHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, run := range h.engine.Cameras() {
		if run.ID != id {
			continue
		}
		if err := h.engine.StopCamera(run.Device); err != nil {
			respondEngineError(w, err, "failed to stop camera")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondError(w, http.StatusNotFound, "camera not running")
}

// VideoFeed streams annotated frames as multipart/x-mixed-replace JPEGs. The
// camera is started on the first viewer and stopped after the last one leaves
// unless it was started explicitly. How the stream ended is reported in the
// X-Stream-Status trailer.
func (h *CamerasHandler) VideoFeed(w http.ResponseWriter, r *http.Request) {
	device, ok := h.device(r.URL.Query().Get("camera"))
	if !ok {
		respondError(w, http.StatusBadRequest, errCameraNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := h.engine.StreamAnnotatedFrames(r.Context(), device, r.URL.Query().Get("session"))
	if err != nil {
		respondEngineError(w, err, "failed to open video feed")
		return
	}

	w.Header().Set("Trailer", constants.StreamStatusTrailer)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+constants.StreamBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Info("video viewer connected", "camera", sanitizeForLog(device), "remote", r.RemoteAddr)
	defer slog.Info("video viewer disconnected", "camera", sanitizeForLog(device), "remote", r.RemoteAddr)

	for frame := range stream.Frames() {
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", constants.StreamBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}

	if r.Context().Err() != nil {
		return
	}
	status := "ended"
	if err := stream.Err(); err != nil {
		slog.Warn("video feed ended by camera failure", "camera", sanitizeForLog(device), "error", err)
		status = "error: " + err.Error()
	}
	w.Header().Set(constants.StreamStatusTrailer, status)
}

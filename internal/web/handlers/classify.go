package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/engine"
)

// ClassifyHandler handles one-shot recognition of uploaded images
type ClassifyHandler struct {
	engine *engine.Engine
}

// NewClassifyHandler creates a new classify handler
func NewClassifyHandler(e *engine.Engine) *ClassifyHandler {
	return &ClassifyHandler{engine: e}
}

// Classify identifies the largest face of the multipart "image" field. With
// record=true attendance is recorded for the session form value.
func (h *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	record, _ := strconv.ParseBool(r.FormValue("record"))
	result, err := h.engine.ClassifyOnce(r.Context(), data, engine.ClassifyOptions{
		Record:  record,
		Session: r.FormValue("session"),
	})
	if err != nil {
		respondEngineError(w, err, "failed to classify image")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

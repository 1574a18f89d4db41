package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/engine"
)

// AttendanceHandler handles attendance endpoints
type AttendanceHandler struct {
	engine *engine.Engine
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(e *engine.Engine) *AttendanceHandler {
	return &AttendanceHandler{engine: e}
}

// RecordRequest represents a request to record an observation
type RecordRequest struct {
	StudentID  string     `json:"student_id"`
	Session    string     `json:"session"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// ManualRequest represents a manual absence or leave entry
type ManualRequest struct {
	StudentID string `json:"student_id"`
	Session   string `json:"session"`
	Date      string `json:"date"` // YYYY-MM-DD, defaults to today
	Status    string `json:"status"`
}

// StatusRequest represents a status correction
type StatusRequest struct {
	Status string `json:"status"`
}

// outcomeStatus is 201 for a new record and 200 when the key was already taken.
func outcomeStatus(out attendance.Outcome) int {
	if out.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// Record records an observation of a student
func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.StudentID == "" {
		respondError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	var observedAt time.Time
	if req.ObservedAt != nil {
		observedAt = *req.ObservedAt
	}
	out, err := h.engine.RecordAttendance(r.Context(), req.StudentID, req.Session, observedAt)
	if err != nil {
		respondEngineError(w, err, "failed to record attendance")
		return
	}

	respondJSON(w, outcomeStatus(out), out)
}

// Manual enters an absence or leave
func (h *AttendanceHandler) Manual(w http.ResponseWriter, r *http.Request) {
	var req ManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.StudentID == "" {
		respondError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	date := time.Now()
	if req.Date != "" {
		if date, err = time.ParseInLocation(attendance.DateLayout, req.Date, h.engine.Location()); err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	out, err := h.engine.RecordManual(r.Context(), req.StudentID, req.Session, date, status)
	if err != nil {
		respondEngineError(w, err, "failed to record attendance")
		return
	}

	respondJSON(w, outcomeStatus(out), out)
}

// UpdateStatus corrects the status of a record
func (h *AttendanceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.engine.CorrectStatus(r.Context(), id, status)
	if err != nil {
		respondEngineError(w, err, "failed to update attendance")
		return
	}

	slog.Info("attendance corrected", "id", id, "status", status)
	respondJSON(w, http.StatusOK, rec)
}

// List returns attendance records filtered by date, session and student
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := attendance.Filter{
		Date:      q.Get("date"),
		Session:   q.Get("session"),
		SubjectID: q.Get("student_id"),
	}
	if filter.Date != "" {
		if _, err := time.Parse(attendance.DateLayout, filter.Date); err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	records, err := h.engine.ListAttendance(r.Context(), filter)
	if err != nil {
		respondEngineError(w, err, "failed to list attendance")
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}

	respondJSON(w, http.StatusOK, records)
}

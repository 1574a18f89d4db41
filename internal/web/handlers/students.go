package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/engine"
)

// StudentsHandler handles student directory endpoints
type StudentsHandler struct {
	engine *engine.Engine
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(e *engine.Engine) *StudentsHandler {
	return &StudentsHandler{engine: e}
}

// List returns all students, or those whose name matches ?q=
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	students, err := h.engine.Students(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		respondEngineError(w, err, "failed to list students")
		return
	}
	if students == nil {
		students = []database.Student{}
	}
	respondJSON(w, http.StatusOK, students)
}

// Get returns a single student by id
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	student, err := h.engine.Student(r.Context(), id)
	if err != nil {
		respondEngineError(w, err, "failed to get student")
		return
	}
	if student == nil {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	respondJSON(w, http.StatusOK, student)
}

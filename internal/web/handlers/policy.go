package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/engine"
)

// PolicyHandler handles the live attendance policy
type PolicyHandler struct {
	engine *engine.Engine
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(e *engine.Engine) *PolicyHandler {
	return &PolicyHandler{engine: e}
}

// Get returns the current policy
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Policy(r.Context())
	if err != nil {
		respondEngineError(w, err, "failed to load policy")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// PolicyUpdateRequest represents a partial policy update
type PolicyUpdateRequest struct {
	Tolerance    *float64          `json:"tolerance,omitempty"`
	GraceMinutes *int              `json:"grace_minutes,omitempty"`
	LateCutoff   *attendance.Clock `json:"late_cutoff,omitempty"`
}

// Update applies a partial policy update; the change is used by the next decision
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req PolicyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	p, err := h.engine.Policy(r.Context())
	if err != nil {
		respondEngineError(w, err, "failed to load policy")
		return
	}
	if req.Tolerance != nil {
		p.Tolerance = *req.Tolerance
	}
	if req.GraceMinutes != nil {
		p.GraceMinutes = *req.GraceMinutes
	}
	if req.LateCutoff != nil {
		p.LateCutoff = *req.LateCutoff
	}
	if err := p.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.UpdatePolicy(r.Context(), p); err != nil {
		respondEngineError(w, err, "failed to save policy")
		return
	}

	slog.Info("policy updated", "tolerance", p.Tolerance, "grace_minutes", p.GraceMinutes, "late_cutoff", p.LateCutoff.String())
	respondJSON(w, http.StatusOK, p)
}

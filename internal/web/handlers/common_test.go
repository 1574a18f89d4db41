package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/capture"
	"github.com/kozaktomas/attendance-cam/internal/engine"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/pipeline"
)

var errTest = errors.New("database is down")

func TestRespondEngineError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: x", engine.ErrStudentNotFound), http.StatusNotFound},
		{attendance.ErrRecordNotFound, http.StatusNotFound},
		{pipeline.ErrNotRunning, http.StatusNotFound},
		{engine.ErrUnknownSession, http.StatusBadRequest},
		{engine.ErrUnreadableImage, http.StatusBadRequest},
		{attendance.ErrInvalidManualStatus, http.StatusBadRequest},
		{engine.ErrRebuildInProgress, http.StatusConflict},
		{fmt.Errorf("%w: /dev/video0", capture.ErrDeviceBusy), http.StatusConflict},
		{gallery.ErrCorpusMissing, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: usb", pipeline.ErrCaptureFailed), http.StatusBadGateway},
		{gallery.ErrProviderUnavailable, http.StatusBadGateway},
		{errTest, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		recorder := httptest.NewRecorder()
		respondEngineError(recorder, tt.err, "operation failed")
		if recorder.Code != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, recorder.Code)
		}
	}

	recorder := httptest.NewRecorder()
	respondEngineError(recorder, errTest, "operation failed")
	assertJSONError(t, recorder, "operation failed")
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("cam\r\nINFO forged"); got != "camINFO forged" {
		t.Errorf("unexpected sanitized value %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	env.rebuild(t)
	handler := NewHealthHandler(env.engine)

	recorder := httptest.NewRecorder()
	handler.HealthCheck(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var body struct {
		Status  string             `json:"status"`
		Gallery engine.GalleryInfo `json:"gallery"`
		Cameras int                `json:"cameras"`
	}
	parseJSONResponse(t, recorder, &body)
	if body.Status != "ok" || body.Gallery.Entries != 2 || body.Cameras != 0 {
		t.Errorf("unexpected health %+v", body)
	}
}

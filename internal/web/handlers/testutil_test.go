package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/capture"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/database/mock"
	"github.com/kozaktomas/attendance-cam/internal/engine"
	"github.com/kozaktomas/attendance-cam/internal/faceapi"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/kozaktomas/attendance-cam/internal/pipeline"
)

var (
	red   = color.RGBA{200, 0, 0, 255}
	blue  = color.RGBA{0, 0, 200, 255}
	green = color.RGBA{0, 200, 0, 255}
	black = color.RGBA{0, 0, 0, 255}
)

// colorAnalyzer reports one face covering the image, encoded as the color of
// the top-left pixel. Black images have no face.
type colorAnalyzer struct{}

func (colorAnalyzer) Analyze(ctx context.Context, img image.Image) ([]faceapi.Face, error) {
	r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)
	if r8 < 20 && g8 < 20 && b8 < 20 {
		return nil, nil
	}
	return []faceapi.Face{{
		Box:    img.Bounds(),
		Vector: []float32{float32(r8) / 255, float32(g8) / 255, float32(b8) / 255},
	}}, nil
}

// unpluggedDevice fails after its first frame.
const unpluggedDevice = "test://unplugged"

// loopSource yields a red frame until its context is canceled, or fails with
// failErr after failAfter frames when that is set.
type loopSource struct {
	failAfter uint64
	failErr   error
	seq       atomic.Uint64
}

func (s *loopSource) Next(ctx context.Context) (*capture.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	seq := s.seq.Add(1)
	if s.failAfter > 0 && seq > s.failAfter {
		return nil, s.failErr
	}
	return &capture.Frame{Seq: seq, Image: solidImage(red), CapturedAt: time.Now()}, nil
}

func (s *loopSource) Close() error { return nil }

func solidImage(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(c)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// testEnv is an engine over mocks and a two student corpus (alice red, bob blue).
type testEnv struct {
	engine   *engine.Engine
	corpus   string
	records  *mock.MockAttendanceStore
	students *mock.MockStudentStore
	subjects *mock.MockSubjectStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		corpus:  filepath.Join(dir, "images_db"),
		records: mock.NewMockAttendanceStore(),
		students: mock.NewMockStudentStore(
			database.Student{ID: "alice", NameTH: "อลิซ", NameEN: "Alice", Classroom: "M.5/1"},
			database.Student{ID: "bob", NameEN: "Bob", Classroom: "M.5/2"},
		),
		subjects: mock.NewMockSubjectStore(database.Subject{Code: "CS101", Name: "Computing", StartTime: "09:00"}),
	}
	for id, c := range map[string]color.Color{"alice": red, "bob": blue} {
		path := filepath.Join(env.corpus, id, id+"_1.png")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, pngBytes(t, c), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	policy := attendance.NewStoredPolicy(attendance.NewMemorySettings(nil), attendance.Policy{
		Tolerance:    0.3,
		GraceMinutes: 15,
		LateCutoff:   attendance.MustParseClock("08:30"),
	})
	recorder := attendance.NewRecorder(env.records, policy, attendance.WithLocation(time.UTC))
	store := gallery.NewStore(gallery.Empty(), 0)
	p := pipeline.New(pipeline.Deps{
		Analyzer:  colorAnalyzer{},
		Gallery:   store,
		Policy:    policy,
		Directory: env.students,
		Recorder:  recorder,
	}, pipeline.Options{Downsample: 1})
	manager := pipeline.NewManager(p, func(_ context.Context, device string) (capture.Source, error) {
		if device == unpluggedDevice {
			return &loopSource{failAfter: 1, failErr: errors.New("usb disconnected")}, nil
		}
		return &loopSource{}, nil
	})
	t.Cleanup(manager.StopAll)

	env.engine = engine.New(engine.Deps{
		Builder:  gallery.NewBuilder(colorAnalyzer{}, 1),
		Gallery:  store,
		Pipeline: p,
		Manager:  manager,
		Recorder: recorder,
		Policy:   policy,
		Students: env.students,
		Subjects: env.subjects,
	}, engine.Options{CorpusDir: env.corpus, SnapshotPath: filepath.Join(dir, "encodings.gob")})
	return env
}

func (env *testEnv) rebuild(t *testing.T) {
	t.Helper()
	if _, err := env.engine.RebuildGallery(context.Background(), nil); err != nil {
		t.Fatalf("RebuildGallery: %v", err)
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a multipart upload with an "image" file and extra fields
func multipartRequest(t *testing.T, path string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if image != nil {
		fw, err := mw.CreateFormFile("image", "face.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(image)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

package faceapi

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: uint8(x + y)})
		}
	}
	return img
}

func newFaceServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/detect/face", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"boxes": [][]float64{{1, 2, 11, 12}, {5, 5, 5, 5}},
		})
	})
	mux.HandleFunc("/encode/face", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("bbox"); got != "1,2,11,12" {
			t.Errorf("unexpected bbox %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"dim": 3, "embedding": []float32{0.1, 0.2, 0.3}})
	})
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(FaceResponse{
			FacesCount: 1,
			Faces: []FaceDetection{
				{FaceIndex: 0, Dim: 2, Embedding: []float32{1, 2}, BBox: []float64{3, 4, 13, 14}, DetScore: 0.9},
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestClient_DetectSkipsEmptyBoxes(t *testing.T) {
	srv := newFaceServer(t)
	defer srv.Close()

	boxes, err := NewClient(srv.URL).Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 1 || boxes[0] != image.Rect(1, 2, 11, 12) {
		t.Errorf("unexpected boxes %v", boxes)
	}
}

func TestClient_Encode(t *testing.T) {
	srv := newFaceServer(t)
	defer srv.Close()

	vec, err := NewClient(srv.URL+"/").Encode(context.Background(), testImage(), image.Rect(1, 2, 11, 12))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vec))
	}
}

func TestClient_Analyze(t *testing.T) {
	srv := newFaceServer(t)
	defer srv.Close()

	faces, err := NewClient(srv.URL).Analyze(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(faces))
	}
	if faces[0].Box != image.Rect(3, 4, 13, 14) {
		t.Errorf("unexpected box %v", faces[0].Box)
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Detect(context.Background(), testImage()); err == nil {
		t.Error("expected error for 503 response")
	}
}

type fakeDetector struct {
	boxes []image.Rectangle
	err   error
}

func (f fakeDetector) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return f.boxes, f.err
}

type fakeEncoder struct {
	calls []image.Rectangle
}

func (f *fakeEncoder) Encode(_ context.Context, _ image.Image, box image.Rectangle) ([]float32, error) {
	f.calls = append(f.calls, box)
	return []float32{float32(box.Min.X)}, nil
}

func TestCompose_DetectThenEncode(t *testing.T) {
	enc := &fakeEncoder{}
	boxes := []image.Rectangle{image.Rect(0, 0, 4, 4), image.Rect(10, 0, 14, 4)}

	faces, err := Compose(fakeDetector{boxes: boxes}, enc).Analyze(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(faces) != 2 || faces[1].Vector[0] != 10 {
		t.Errorf("unexpected faces %+v", faces)
	}
	if len(enc.calls) != 2 {
		t.Errorf("expected 2 encode calls, got %d", len(enc.calls))
	}
}

func TestCompose_DetectorError(t *testing.T) {
	boom := errors.New("boom")
	enc := &fakeEncoder{}

	_, err := Compose(fakeDetector{err: boom}, enc).Analyze(context.Background(), testImage())
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped detector error, got %v", err)
	}
	if len(enc.calls) != 0 {
		t.Error("encoder must not run when detection fails")
	}
}

package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func createTestImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDownsample(t *testing.T) {
	img := createTestImage(640, 480, color.White)

	small := Downsample(img, 0.25)
	if small.Bounds().Dx() != 160 || small.Bounds().Dy() != 120 {
		t.Errorf("expected 160x120, got %v", small.Bounds())
	}

	if same := Downsample(img, 1); same != image.Image(img) {
		t.Error("factor 1 should return the input image")
	}
	if same := Downsample(img, 0); same != image.Image(img) {
		t.Error("factor 0 should return the input image")
	}
}

func TestResizeToFit(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		max   int
		wantW int
		wantH int
	}{
		{"landscape", 2000, 1000, 1000, 1000, 500},
		{"portrait", 1000, 2000, 500, 250, 500},
		{"already small", 100, 50, 500, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResizeToFit(createTestImage(tt.w, tt.h, color.Black), tt.max)
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("got %v, want %dx%d", got.Bounds(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestEncodeDecodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(createTestImage(32, 16, color.RGBA{200, 10, 10, 255}), 80)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	if DetectMIMEType(data) != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", DetectMIMEType(data))
	}

	img, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 16 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}
}

func TestDecode_PNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(4, 4, color.White)); err != nil {
		t.Fatal(err)
	}
	if DetectMIMEType(buf.Bytes()) != "image/png" {
		t.Errorf("expected image/png")
	}
	if _, err := DecodeBytes(buf.Bytes()); err != nil {
		t.Errorf("DecodeBytes failed: %v", err)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := DecodeBytes([]byte("definitely not an image")); err == nil {
		t.Error("expected error for garbage input")
	}
	if DetectMIMEType([]byte("abc")) != "application/octet-stream" {
		t.Error("expected octet-stream for short input")
	}
}

func TestToRGBA_RebasesOrigin(t *testing.T) {
	img := createTestImage(10, 10, color.White)
	sub := img.SubImage(image.Rect(5, 5, 10, 10))

	rgba := ToRGBA(sub)
	if rgba.Bounds().Min != (image.Point{}) || rgba.Bounds().Dx() != 5 {
		t.Errorf("unexpected bounds %v", rgba.Bounds())
	}
}

package pipeline

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/kozaktomas/attendance-cam/internal/config"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#00c800", color.RGBA{0, 200, 0, 255}, false},
		{"dc0000", color.RGBA{220, 0, 0, 255}, false},
		{"#fff", color.RGBA{}, true},
		{"#zzzzzz", color.RGBA{}, true},
	}
	for _, tt := range tests {
		got, err := parseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAnnotatorDraw(t *testing.T) {
	a, err := NewAnnotator(config.OverlayDefaults{KnownColor: "#00c800", UnknownColor: "#dc0000"}, "")
	if err != nil {
		t.Fatalf("NewAnnotator: %v", err)
	}
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))

	out := a.Draw(src, []Label{
		{Box: image.Rect(10, 10, 60, 60), Text: "Alice", Known: true},
		{Box: image.Rect(70, 10, 95, 40), Text: UnknownLabel},
		{Box: image.Rect(200, 200, 300, 300), Text: "off frame"},
	})

	if got := out.RGBAAt(10, 20); got != (color.RGBA{0, 200, 0, 255}) {
		t.Errorf("expected known box edge, got %v", got)
	}
	if got := out.RGBAAt(70, 20); got != (color.RGBA{220, 0, 0, 255}) {
		t.Errorf("expected unknown box edge, got %v", got)
	}
	if got := out.RGBAAt(30, 30); got != (color.RGBA{}) {
		t.Errorf("expected box interior untouched, got %v", got)
	}
	if got := src.RGBAAt(10, 20); got != (color.RGBA{}) {
		t.Error("expected the source image to be left unchanged")
	}
}

func TestNewAnnotatorMissingFont(t *testing.T) {
	_, err := NewAnnotator(config.OverlayDefaults{KnownColor: "#00c800", UnknownColor: "#dc0000"}, "/nonexistent/font.ttf")
	if err == nil {
		t.Fatal("expected error for missing font file")
	}
}

func TestAnnotatorDraw_ConcurrentWithFont(t *testing.T) {
	fontPath := filepath.Join(t.TempDir(), "goregular.ttf")
	if err := os.WriteFile(fontPath, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := NewAnnotator(config.OverlayDefaults{KnownColor: "#00c800", UnknownColor: "#dc0000", FontSize: 14}, fontPath)
	if err != nil {
		t.Fatalf("NewAnnotator: %v", err)
	}
	if !a.Unicode() {
		t.Fatal("expected the loaded font to be used")
	}

	src := image.NewRGBA(image.Rect(0, 0, 120, 120))
	labels := []Label{
		{Box: image.Rect(5, 5, 115, 115), Text: "Alice", Known: true},
		{Box: image.Rect(10, 10, 60, 60), Text: UnknownLabel},
	}
	want := a.Draw(src, labels)

	var wg sync.WaitGroup
	for iter := 0; iter < 4; iter++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for iter2 := 0; iter2 < 50; iter2++ {
				got := a.Draw(src, labels)
				if string(got.Pix) != string(want.Pix) {
					t.Error("concurrent draw produced a different frame")
					return
				}
			}
		}()
	}
	wg.Wait()
}

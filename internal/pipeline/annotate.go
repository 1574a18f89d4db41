package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/attendance-cam/internal/config"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

const boxThickness = 2

// Label is one box to draw.
type Label struct {
	Box   image.Rectangle
	Text  string
	Known bool
}

// Annotator draws face boxes and name bands onto frames.
type Annotator struct {
	known       color.RGBA
	unknown     color.RGBA
	labelHeight int
	unicode     bool

	// opentype faces rasterize glyphs into shared state; cameras draw
	// concurrently through one Annotator.
	faceMu sync.Mutex
	face   font.Face
}

// NewAnnotator builds an annotator. Without fontPath the built-in ASCII font is
// used and non-Latin names cannot be rendered.
func NewAnnotator(cfg config.OverlayDefaults, fontPath string) (*Annotator, error) {
	known, err := parseHexColor(cfg.KnownColor)
	if err != nil {
		return nil, fmt.Errorf("known_color: %w", err)
	}
	unknown, err := parseHexColor(cfg.UnknownColor)
	if err != nil {
		return nil, fmt.Errorf("unknown_color: %w", err)
	}

	a := &Annotator{known: known, unknown: unknown, labelHeight: cfg.LabelHeight, face: basicfont.Face7x13}
	if fontPath == "" {
		return a, nil
	}

	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", fontPath, err)
	}
	size := cfg.FontSize
	if size <= 0 {
		size = 24
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	a.face = face
	a.unicode = true
	return a, nil
}

// Unicode reports whether a font able to render Thai names is loaded.
func (a *Annotator) Unicode() bool {
	return a.unicode
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Draw returns a copy of img with labels drawn on it.
func (a *Annotator) Draw(img image.Image, labels []Label) *image.RGBA {
	dst := imaging.ToRGBA(img)
	offset := img.Bounds().Min
	for _, l := range labels {
		c := a.unknown
		if l.Known {
			c = a.known
		}
		box := l.Box.Sub(offset).Intersect(dst.Bounds())
		if box.Empty() {
			continue
		}
		a.drawBox(dst, box, c)
		a.drawBand(dst, box, c, l.Text)
	}
	return dst
}

func (a *Annotator) drawBox(dst *image.RGBA, box image.Rectangle, c color.RGBA) {
	src := image.NewUniform(c)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+t),
		image.Rect(box.Min.X, box.Max.Y-t, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+t, box.Max.Y),
		image.Rect(box.Max.X-t, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawBand fills a strip along the bottom edge of box and writes text into it.
func (a *Annotator) drawBand(dst *image.RGBA, box image.Rectangle, c color.RGBA, text string) {
	a.faceMu.Lock()
	defer a.faceMu.Unlock()

	metrics := a.face.Metrics()
	height := a.labelHeight
	if height <= 0 {
		height = metrics.Height.Ceil() + 8
	}
	band := image.Rect(box.Min.X, box.Max.Y-height, box.Max.X, box.Max.Y).Intersect(dst.Bounds())
	if band.Empty() {
		return
	}
	draw.Draw(dst, band, image.NewUniform(c), image.Point{}, draw.Src)

	baseline := band.Max.Y - (band.Dy()-metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2 - metrics.Descent.Ceil()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: a.face,
		Dot:  fixed.P(band.Min.X+6, baseline),
	}
	d.DrawString(text)
}

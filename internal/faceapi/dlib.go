//go:build dlib

package faceapi

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/imaging"
)

// DlibAvailable reports whether this binary was built with the dlib provider.
const DlibAvailable = true

// Dlib runs detection and encoding in-process with dlib models via go-face.
type Dlib struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlib loads the dlib models from modelsDir. The directory must contain
// shape_predictor_5_face_landmarks.dat and dlib_face_recognition_resnet_model_v1.dat.
func NewDlib(modelsDir string) (*Dlib, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	return &Dlib{rec: rec}, nil
}

// Analyze detects and encodes all faces in img.
func (d *Dlib) Analyze(ctx context.Context, img image.Image) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := imaging.EncodeJPEG(img, constants.JPEGQuality)
	if err != nil {
		return nil, err
	}

	// The recognizer is not safe for concurrent use.
	d.mu.Lock()
	found, err := d.rec.Recognize(data)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	faces := make([]Face, 0, len(found))
	for _, f := range found {
		vec := make([]float32, len(f.Descriptor))
		copy(vec, f.Descriptor[:])
		faces = append(faces, Face{Box: f.Rectangle.Add(img.Bounds().Min), Vector: vec})
	}
	return faces, nil
}

// Close releases the recognizer resources.
func (d *Dlib) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}

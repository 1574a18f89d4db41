// Package faceapi talks to face detection and encoding providers.
package faceapi

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrEmptyEmbedding is returned when the provider answers without a vector.
var ErrEmptyEmbedding = errors.New("empty embedding returned")

// Face is one detected face with its feature vector. Box is in the coordinates
// of the image that was analyzed.
type Face struct {
	Box    image.Rectangle
	Vector []float32
}

// Detector locates faces in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// Encoder computes the feature vector for one face region.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, box image.Rectangle) ([]float32, error)
}

// Analyzer detects faces and encodes each of them.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image) ([]Face, error)
}

// Compose builds an Analyzer from a separate detector and encoder. Faces are
// detected first and then encoded one by one in detection order.
func Compose(d Detector, e Encoder) Analyzer {
	return composed{detector: d, encoder: e}
}

type composed struct {
	detector Detector
	encoder  Encoder
}

func (c composed) Analyze(ctx context.Context, img image.Image) ([]Face, error) {
	boxes, err := c.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	faces := make([]Face, 0, len(boxes))
	for _, box := range boxes {
		vec, err := c.encoder.Encode(ctx, img, box)
		if err != nil {
			return nil, fmt.Errorf("encode face %v: %w", box, err)
		}
		faces = append(faces, Face{Box: box, Vector: vec})
	}
	return faces, nil
}

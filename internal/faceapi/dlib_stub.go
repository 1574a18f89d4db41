//go:build !dlib

package faceapi

import (
	"context"
	"errors"
	"image"
)

// DlibAvailable reports whether this binary was built with the dlib provider.
const DlibAvailable = false

// ErrDlibUnavailable is returned by NewDlib in binaries built without the dlib tag.
var ErrDlibUnavailable = errors.New("dlib provider not compiled in (build with -tags dlib)")

// Dlib is a placeholder for builds without cgo dlib bindings.
type Dlib struct{}

// NewDlib always fails in builds without the dlib tag.
func NewDlib(string) (*Dlib, error) {
	return nil, ErrDlibUnavailable
}

func (d *Dlib) Analyze(context.Context, image.Image) ([]Face, error) {
	return nil, ErrDlibUnavailable
}

func (d *Dlib) Close() error { return nil }

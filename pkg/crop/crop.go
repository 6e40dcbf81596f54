// Package crop computes crop rectangles around faces and applies them to images.
package crop

import (
	"math"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

// DefaultPadding expands a face box by 30% of its size on every side.
const DefaultPadding = 0.3

// Rect is a crop region in source-image pixel units.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AroundFace returns face expanded by padding (a fraction of the face size)
// on each side, clipped to the image. imageW and imageH must be positive.
func AroundFace(imageW, imageH float64, face detection.BoundingBox, padding float64) Rect {
	x := math.Max(0, face.X-face.Width*padding)
	y := math.Max(0, face.Y-face.Height*padding)

	return Rect{
		X:      x,
		Y:      y,
		Width:  math.Min(imageW-x, face.Width*(1+2*padding)),
		Height: math.Min(imageH-y, face.Height*(1+2*padding)),
	}
}

// Center returns the largest centered square inside the image.
func Center(imageW, imageH float64) Rect {
	size := math.Min(imageW, imageH)
	return Rect{
		X:      (imageW - size) / 2,
		Y:      (imageH - size) / 2,
		Width:  size,
		Height: size,
	}
}

// Empty reports whether the rect has no positive area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

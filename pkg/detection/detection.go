// Package detection defines face detection results and primary-face selection.
package detection

import "math"

// BoundingBox is a face box in source-image pixel units.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box
func (b BoundingBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the area of the box
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Empty reports whether the box has no positive area.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Clip clamps the box into a imageW x imageH image.
// The result may be Empty if the box lies entirely outside.
func (b BoundingBox) Clip(imageW, imageH float64) BoundingBox {
	x0 := math.Max(0, b.X)
	y0 := math.Max(0, b.Y)
	x1 := math.Min(imageW, b.X+b.Width)
	y1 := math.Min(imageH, b.Y+b.Height)
	return BoundingBox{X: x0, Y: y0, Width: math.Max(0, x1-x0), Height: math.Max(0, y1-y0)}
}

// Scale multiplies every coordinate by s.
func (b BoundingBox) Scale(s float64) BoundingBox {
	return BoundingBox{X: b.X * s, Y: b.Y * s, Width: b.Width * s, Height: b.Height * s}
}

// Face is a single detected face.
type Face struct {
	Box        BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"` // 0-1
}

// Params are the thresholds handed to every detector invocation.
// Values are passed explicitly; there is no package-level mutable copy.
type Params struct {
	ConfidenceThreshold float64 // Minimum confidence to report a face
	IoUThreshold        float64 // Non-maximum suppression overlap threshold
	MaxDetections       int     // Upper bound on faces returned
}

// DefaultParams returns the production detector thresholds.
func DefaultParams() Params {
	return Params{
		ConfidenceThreshold: 0.5,
		IoUThreshold:        0.3,
		MaxDetections:       25,
	}
}

// Filter drops faces under the confidence threshold or with an empty box
// and caps the result at MaxDetections. Input order is preserved.
// The returned slice is never nil.
func (p Params) Filter(faces []Face) []Face {
	out := make([]Face, 0, len(faces))
	for _, f := range faces {
		if f.Confidence < p.ConfidenceThreshold || f.Box.Empty() {
			continue
		}
		out = append(out, f)
		if p.MaxDetections > 0 && len(out) == p.MaxDetections {
			break
		}
	}
	return out
}

// SelectPrimary returns the face with the highest confidence.
// Ties go to the earliest face in input order. faces must not be empty.
func SelectPrimary(faces []Face) Face {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}

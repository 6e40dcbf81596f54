package crop

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
)

// DefaultJPEGQuality matches the lossy payload the poster editor produces.
const DefaultJPEGQuality = 90

// pixelEpsilon absorbs float error such as 84.99999999999999 for 85.
const pixelEpsilon = 1e-6

// Bounds converts the rect to whole pixels. The start is floored and the end
// rounded, so a rect that fits the image in float space still fits here.
// A sub-pixel rect still yields at least one pixel, grown towards the origin
// so a rect touching the far edge stays inside the image.
func (r Rect) Bounds() image.Rectangle {
	x0, x1 := pixelSpan(r.X, r.Width)
	y0, y1 := pixelSpan(r.Y, r.Height)
	return image.Rect(x0, y0, x1, y1)
}

func pixelSpan(start, length float64) (lo, hi int) {
	lo = int(math.Floor(start + pixelEpsilon))
	hi = int(math.Round(start + length))
	if hi <= lo {
		lo = hi - 1
	}
	if lo < 0 {
		lo, hi = 0, max(hi, 1)
	}
	return lo, hi
}

// Size returns the width and height of img as floats.
func Size(img image.Image) (w, h float64) {
	b := img.Bounds()
	return float64(b.Dx()), float64(b.Dy())
}

// Image copies the region r of img into a new RGBA image whose origin is (0,0).
// r is relative to img's top-left corner and is clipped to img.
func Image(img image.Image, r Rect) image.Image {
	src := img.Bounds()
	rect := r.Bounds().Add(src.Min).Intersect(src)

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// EncodeJPEG encodes img as JPEG at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL wraps data as a base64 data URL with the given MIME type.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// JPEGDataURL encodes img as a JPEG data URL.
func JPEGDataURL(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return DataURL("image/jpeg", data), nil
}

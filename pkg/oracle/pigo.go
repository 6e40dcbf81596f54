package oracle

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/nfnt/resize"

	"github.com/teslashibe/go-posterface/pkg/debug"
	"github.com/teslashibe/go-posterface/pkg/detection"
)

const (
	// pigoMaxSide bounds the image handed to the cascade. Larger inputs are
	// downscaled first and the boxes scaled back.
	pigoMaxSide = 1024

	// pigoQualityPivot is the pigo quality score that maps to confidence 0.5.
	pigoQualityPivot = 5.0
)

// Pigo detects faces with the pure-Go pigo cascade classifier.
type Pigo struct {
	classifier *pigo.Pigo
	params     detection.Params
	logger     *slog.Logger
}

// NewPigo unpacks the facefinder cascade at cascadePath.
func NewPigo(cascadePath string, params detection.Params, logger *slog.Logger) (*Pigo, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read cascade: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}

	logger.Info("pigo cascade loaded", "path", cascadePath)
	return &Pigo{classifier: classifier, params: params, logger: logger}, nil
}

// Name returns "pigo".
func (p *Pigo) Name() string { return string(BackendPigo) }

// Close is a no-op.
func (p *Pigo) Close() error { return nil }

// Detect finds faces in a PNG or JPEG image.
func (p *Pigo) Detect(ctx context.Context, data []byte) ([]detection.Face, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrDetectorFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	origW, origH := src.Bounds().Dx(), src.Bounds().Dy()
	scale := 1.0
	if origW > pigoMaxSide || origH > pigoMaxSide {
		src = resize.Thumbnail(pigoMaxSide, pigoMaxSide, src, resize.Bilinear)
		scale = float64(origW) / float64(src.Bounds().Dx())
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), src, src.Bounds().Min, draw.Src)

	cols, rows := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	cParams := pigo.CascadeParams{
		MinSize:     20,
		MaxSize:     max(cols, rows),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(nrgba),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(cParams, 0)
	dets = p.classifier.ClusterDetections(dets, p.params.IoUThreshold)

	faces := make([]detection.Face, 0, len(dets))
	for _, d := range dets {
		half := float64(d.Scale) / 2
		box := detection.BoundingBox{
			X:      float64(d.Col) - half,
			Y:      float64(d.Row) - half,
			Width:  float64(d.Scale),
			Height: float64(d.Scale),
		}
		faces = append(faces, detection.Face{
			Box:        box.Scale(scale).Clip(float64(origW), float64(origH)),
			Confidence: pigoConfidence(float64(d.Q)),
		})
	}

	debug.Faces(p.logger, faces, "scale", scale)
	return p.params.Filter(faces), nil
}

// pigoConfidence maps pigo's unbounded quality score into [0,1).
func pigoConfidence(q float64) float64 {
	if q <= 0 {
		return 0
	}
	return q / (q + pigoQualityPivot)
}

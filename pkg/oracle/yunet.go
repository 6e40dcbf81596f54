package oracle

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-posterface/pkg/debug"
	"github.com/teslashibe/go-posterface/pkg/detection"
	"gocv.io/x/gocv"
)

// YuNet uses OpenCV's FaceDetectorYN for in-process face detection.
type YuNet struct {
	detector gocv.FaceDetectorYN
	params   detection.Params
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the YuNet ONNX model at modelPath.
func NewYuNet(modelPath string, params detection.Params, logger *slog.Logger) (*YuNet, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Initial input size is replaced per image
	detector := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"",
		image.Pt(320, 320),
		float32(params.ConfidenceThreshold),
		float32(params.IoUThreshold),
		params.MaxDetections,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	logger.Info("yunet model loaded", "path", modelPath)

	return &YuNet{
		detector: detector,
		params:   params,
		logger:   logger,
	}, nil
}

// Name returns "yunet".
func (d *YuNet) Name() string { return string(BackendYuNet) }

// Detect finds faces in a PNG or JPEG image.
func (d *YuNet) Detect(ctx context.Context, data []byte) ([]detection.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrDetectorFailed, err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDetectorFailed)
	}

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()

	d.detector.Detect(img, &out)

	faces := make([]detection.Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		faces = append(faces, detection.Face{
			Box: detection.BoundingBox{
				X:      float64(out.GetFloatAt(r, 0)),
				Y:      float64(out.GetFloatAt(r, 1)),
				Width:  float64(out.GetFloatAt(r, 2)),
				Height: float64(out.GetFloatAt(r, 3)),
			}.Clip(float64(img.Cols()), float64(img.Rows())),
			Confidence: float64(out.GetFloatAt(r, 14)),
		})
	}

	debug.Faces(d.logger, faces)
	return d.params.Filter(faces), nil
}

// Close releases the detector resources
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

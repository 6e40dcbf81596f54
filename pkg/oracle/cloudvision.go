package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

// CloudVision detects faces with the Google Cloud Vision API.
// The API applies its own suppression, so IoUThreshold is not forwarded.
type CloudVision struct {
	service *vision.Service
	params  detection.Params
	logger  *slog.Logger
}

// NewCloudVision creates a Cloud Vision client. With an empty apiKey the
// client uses application default credentials. Extra options are applied last.
func NewCloudVision(ctx context.Context, apiKey string, params detection.Params, logger *slog.Logger, opts ...option.ClientOption) (*CloudVision, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []option.ClientOption
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	} else if len(opts) == 0 {
		ts, err := google.DefaultTokenSource(ctx, vision.CloudVisionScope)
		if err != nil {
			return nil, fmt.Errorf("cloud vision credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	clientOpts = append(clientOpts, opts...)

	service, err := vision.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision service: %w", err)
	}

	return &CloudVision{service: service, params: params, logger: logger}, nil
}

// Name returns "cloudvision".
func (c *CloudVision) Name() string { return string(BackendCloudVision) }

// Close is a no-op.
func (c *CloudVision) Close() error { return nil }

// Detect sends image for FACE_DETECTION and converts the annotations.
func (c *CloudVision) Detect(ctx context.Context, image []byte) ([]detection.Face, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{{
				Type:       "FACE_DETECTION",
				MaxResults: int64(c.params.MaxDetections),
			}},
		}},
	}

	resp, err := c.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		c.logger.Warn("cloud vision request failed", "error", err)
		return nil, fmt.Errorf("cloud vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: empty annotate response", ErrMalformedOutput)
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return nil, fmt.Errorf("%w: %s", ErrDetectorFailed, r.Error.Message)
	}

	faces := make([]detection.Face, 0, len(r.FaceAnnotations))
	for _, fa := range r.FaceAnnotations {
		poly := fa.BoundingPoly
		if poly == nil || len(poly.Vertices) == 0 {
			poly = fa.FdBoundingPoly
		}
		box, ok := polyBox(poly)
		if !ok {
			continue
		}
		faces = append(faces, detection.Face{Box: box, Confidence: fa.DetectionConfidence})
	}

	return c.params.Filter(faces), nil
}

// polyBox returns the axis-aligned bounds of a polygon.
func polyBox(poly *vision.BoundingPoly) (detection.BoundingBox, bool) {
	if poly == nil || len(poly.Vertices) == 0 {
		return detection.BoundingBox{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range poly.Vertices {
		x, y := float64(v.X), float64(v.Y)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return detection.BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

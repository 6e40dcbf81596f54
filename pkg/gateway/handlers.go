package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-posterface/pkg/crop"
	"github.com/teslashibe/go-posterface/pkg/detection"
	"github.com/teslashibe/go-posterface/pkg/hub"
	"github.com/teslashibe/go-posterface/pkg/oracle"
)

// Response messages.
const (
	MessageNoImageURL  = "No image URL provided"
	MessageNoFaces     = "No faces detected."
	MessageUnavailable = "Face detection unavailable; returning original image."
)

// CropRequest is the body of POST /api/crop.
type CropRequest struct {
	ImageURL string `json:"imageUrl"`
}

// CropResponse is the 200 body of POST /api/crop.
type CropResponse struct {
	Success         bool             `json:"success"`
	Faces           []detection.Face `json:"faces"`
	CroppedImageURL string           `json:"croppedImageUrl"`
	Message         string           `json:"message"`
}

// ErrorResponse is the body of every 4xx/5xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DetectedMessage is the success message for n faces.
func DetectedMessage(n int) string {
	return fmt.Sprintf("Detected %d face(s).", n)
}

func (s *Server) handleCrop(c *fiber.Ctx) error {
	start := time.Now()
	reqID := requestID(c)
	logger := s.logger.With("request_id", reqID)

	ctx, span := s.tracer.Start(c.UserContext(), "gateway.crop",
		trace.WithAttributes(attribute.String("request.id", reqID)))
	defer span.End()

	var req CropRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
		span.SetStatus(codes.Error, "bad request")
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: MessageNoImageURL})
	}

	data, err := s.fetch(ctx, req.ImageURL)
	if err != nil {
		logger.Error("image fetch failed", "error", err)
		s.publish(reqID, OutcomeFetchError, 0, start)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	faces, err := s.detect(ctx, data)
	if err != nil {
		var pe *oracle.ProcessError
		switch {
		case errors.Is(err, oracle.ErrMalformedOutput):
			logger.Warn("detector output malformed", "error", err)
		case errors.As(err, &pe):
			logger.Warn("detector process failed", "exit_code", pe.ExitCode, "error", err)
		default:
			logger.Warn("detector failed", "error", err)
		}
		s.publish(reqID, OutcomeUnavailable, 0, start)
		return c.JSON(CropResponse{
			Success:         false,
			Faces:           []detection.Face{},
			CroppedImageURL: req.ImageURL,
			Message:         MessageUnavailable,
		})
	}

	if len(faces) == 0 {
		logger.Info("no faces detected", "latency", time.Since(start))
		s.publish(reqID, OutcomeNoFaces, 0, start)
		return c.JSON(CropResponse{
			Success:         false,
			Faces:           []detection.Face{},
			CroppedImageURL: req.ImageURL,
			Message:         MessageNoFaces,
		})
	}

	cropped := s.cropPrimary(ctx, data, faces, logger)
	if cropped == "" {
		cropped = req.ImageURL
	}

	logger.Info("faces detected", "faces", len(faces), "latency", time.Since(start))
	s.publish(reqID, OutcomeDetected, len(faces), start)
	return c.JSON(CropResponse{
		Success:         true,
		Faces:           faces,
		CroppedImageURL: cropped,
		Message:         DetectedMessage(len(faces)),
	})
}

func (s *Server) fetch(ctx context.Context, raw string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.fetch")
	defer span.End()

	data, err := s.fetcher.Fetch(ctx, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("image.bytes", len(data)))
	return data, nil
}

func (s *Server) detect(ctx context.Context, data []byte) ([]detection.Face, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.detect",
		trace.WithAttributes(attribute.String("oracle.backend", s.oracle.Name())))
	defer span.End()

	faces, err := s.oracle.Detect(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detect failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("faces.count", len(faces)))
	return faces, nil
}

// cropPrimary crops around the most confident face and returns a JPEG data
// URL, or "" if the image cannot be decoded or encoded.
func (s *Server) cropPrimary(ctx context.Context, data []byte, faces []detection.Face, logger *slog.Logger) string {
	_, span := s.tracer.Start(ctx, "gateway.crop_image")
	defer span.End()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Warn("cannot decode image for cropping, returning original", "error", err)
		span.RecordError(err)
		return ""
	}

	primary := detection.SelectPrimary(faces)
	w, h := crop.Size(img)
	box := primary.Box.Clip(w, h)
	if box.Empty() {
		logger.Warn("primary face lies outside the image, returning original", "box", primary.Box)
		return ""
	}
	rect := crop.AroundFace(w, h, box, s.padding)

	url, err := crop.JPEGDataURL(crop.Image(img, rect), s.jpegQuality)
	if err != nil {
		logger.Warn("cannot encode crop, returning original", "error", err)
		span.RecordError(err)
		return ""
	}
	span.SetAttributes(
		attribute.Float64("crop.width", rect.Width),
		attribute.Float64("crop.height", rect.Height))
	return url
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"oracle":  s.oracle.Name(),
		"clients": s.events.ClientCount(),
	})
}

func (s *Server) handleDetectionsWS(c *websocket.Conn) {
	hub.NewClient(s.events, c).Run()
}

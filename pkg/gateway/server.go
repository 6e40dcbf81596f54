// Package gateway serves the face detection and crop HTTP API.
//
// POST /api/crop takes {"imageUrl": ...}, runs the configured oracle on the
// image and answers with the detected faces plus a crop around the most
// confident one. Detector failures degrade to the original image with a 200;
// only bad input (400) and unreachable images (500) are errors.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-posterface/pkg/crop"
	"github.com/teslashibe/go-posterface/pkg/hub"
	"github.com/teslashibe/go-posterface/pkg/oracle"
)

const (
	// DefaultBodyLimit allows data URLs of large photographs.
	DefaultBodyLimit = 32 << 20

	shutdownTimeout = 10 * time.Second
	tracerName      = "github.com/teslashibe/go-posterface/pkg/gateway"
)

// Options configures a Server.
type Options struct {
	// Oracle detects faces. Required.
	Oracle oracle.Oracle

	// Fetcher resolves imageUrl values. Default: NewFetcher(PublicBaseURL)
	Fetcher *Fetcher

	// PublicBaseURL resolves root-relative image URLs.
	PublicBaseURL string

	// UploadDir stores uploads and is served under /uploads. Empty disables uploads.
	UploadDir string

	// Padding around the primary face. Default: crop.DefaultPadding
	Padding float64

	// JPEGQuality of the returned crop. Default: crop.DefaultJPEGQuality
	JPEGQuality int

	// BodyLimit caps request bodies. Default: DefaultBodyLimit
	BodyLimit int

	Logger *slog.Logger
}

// Server is the detection gateway.
type Server struct {
	app     *fiber.App
	oracle  oracle.Oracle
	fetcher *Fetcher
	events  *hub.Hub
	tracer  trace.Tracer
	logger  *slog.Logger

	uploadDir   string
	padding     float64
	jpegQuality int
}

// NewServer builds the fiber app and registers all routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher(opts.PublicBaseURL)
	}
	if opts.Padding <= 0 {
		opts.Padding = crop.DefaultPadding
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = crop.DefaultJPEGQuality
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}

	logger := opts.Logger.With("component", "gateway")
	s := &Server{
		oracle:      opts.Oracle,
		fetcher:     opts.Fetcher,
		events:      hub.New("detections", logger),
		tracer:      otel.Tracer(tracerName),
		logger:      logger,
		uploadDir:   opts.UploadDir,
		padding:     opts.Padding,
		jpegQuality: opts.JPEGQuality,
	}

	app := fiber.New(fiber.Config{
		AppName:               "posterface gateway",
		DisableStartupMessage: true,
		BodyLimit:             opts.BodyLimit,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(cors.New())
	app.Use(s.logRequests)

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Post("/crop", s.handleCrop)
	if s.uploadDir != "" {
		api.Post("/upload", s.handleUpload)
		app.Static("/uploads", s.uploadDir)
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/detections", websocket.New(s.handleDetectionsWS))

	s.app = app
	return s
}

// App returns the underlying fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Events returns the detection event hub.
func (s *Server) Events() *hub.Hub {
	return s.events
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.events.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "oracle", s.oracle.Name())
	return s.app.Listener(ln)
}

// handleError renders every unhandled error, panics included, as {"error": ...}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", requestID(c),
			"path", c.Path(),
			"error", err)
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"request_id", requestID(c),
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"latency", time.Since(start))
	return err
}

func requestID(c *fiber.Ctx) string {
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

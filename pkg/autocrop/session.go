// Package autocrop drives the client side of the crop pipeline: send the
// working image to the gateway, pick a face, crop, and replace the image.
package autocrop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"sync"

	"github.com/teslashibe/go-posterface/pkg/crop"
	"github.com/teslashibe/go-posterface/pkg/detection"
	"github.com/teslashibe/go-posterface/pkg/gateway"
)

// ErrNoImage is returned by AutoCrop when nothing has been loaded.
var ErrNoImage = errors.New("autocrop: no image loaded")

// Report messages, one per outcome.
const (
	MessageReal      = "Cropped around the detected face."
	MessageHeuristic = "Face detection unavailable; cropped around the estimated face position."
	MessageNone      = "No faces detected; used a centered square crop."
)

// State of a Session.
type State int

const (
	Idle State = iota
	Detecting
	Done
)

func (s State) String() string {
	switch s {
	case Detecting:
		return "detecting"
	case Done:
		return "done"
	default:
		return "idle"
	}
}

// Gateway is the detection service a Session talks to.
// *gateway.Client satisfies it.
type Gateway interface {
	Crop(ctx context.Context, imageURL string) (*gateway.CropResponse, error)
}

// Report describes a finished AutoCrop.
type Report struct {
	Outcome Kind
	Faces   []detection.Face // Faces considered; the heuristic face for Heuristic
	Crop    crop.Rect        // Region of the previous image that was kept
	Message string
}

// Session holds the working image for one poster.
type Session struct {
	gateway Gateway
	fetcher *gateway.Fetcher
	logger  *slog.Logger
	padding float64
	quality int

	mu      sync.Mutex
	img     image.Image
	state   State
	onState func(State)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithPadding overrides crop.DefaultPadding.
func WithPadding(p float64) Option {
	return func(s *Session) { s.padding = p }
}

// WithJPEGQuality sets the quality of the image sent to the gateway.
func WithJPEGQuality(q int) Option {
	return func(s *Session) { s.quality = q }
}

// WithFetcher sets how LoadURL resolves URLs, e.g. a fetcher with a base URL.
func WithFetcher(f *gateway.Fetcher) Option {
	return func(s *Session) { s.fetcher = f }
}

// NewSession creates an idle session with no image.
func NewSession(gw Gateway, opts ...Option) *Session {
	s := &Session{
		gateway: gw,
		padding: crop.DefaultPadding,
		quality: crop.DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "autocrop")
	if s.fetcher == nil {
		s.fetcher = gateway.NewFetcher("")
	}
	return s
}

// OnState registers fn to be called after every state change. Pass nil to clear.
func (s *Session) OnState(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Load replaces the working image.
func (s *Session) Load(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

// LoadBytes decodes a PNG or JPEG and makes it the working image.
func (s *Session) LoadBytes(data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	s.Load(img)
	return nil
}

// LoadURL fetches an image, typically the URL returned by the upload endpoint.
func (s *Session) LoadURL(ctx context.Context, url string) error {
	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	return s.LoadBytes(data)
}

// Image returns the working image, or nil.
func (s *Session) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AutoCrop detects the primary face, crops around it and replaces the
// working image. It only fails with ErrNoImage; every detection problem
// degrades to the heuristic or the center crop.
func (s *Session) AutoCrop(ctx context.Context) (Report, error) {
	img := s.Image()
	if img == nil {
		return Report{}, ErrNoImage
	}
	s.setState(Detecting)

	w, h := crop.Size(img)
	resp, err := s.detect(ctx, img)
	if err != nil {
		s.logger.Warn("gateway unavailable, estimating face position", "error", err)
	}

	det := Classify(resp, err, w, h)
	rect := s.cropRect(det, w, h)

	s.mu.Lock()
	s.img = crop.Image(img, rect)
	s.mu.Unlock()
	s.setState(Done)

	report := Report{
		Outcome: det.Kind,
		Faces:   det.Faces,
		Crop:    rect,
		Message: message(det.Kind),
	}
	s.logger.Info("autocrop finished",
		"outcome", det.Kind.String(),
		"faces", len(det.Faces),
		"crop_w", rect.Width,
		"crop_h", rect.Height)
	return report, nil
}

func (s *Session) detect(ctx context.Context, img image.Image) (*gateway.CropResponse, error) {
	url, err := crop.JPEGDataURL(img, s.quality)
	if err != nil {
		return nil, err
	}
	return s.gateway.Crop(ctx, url)
}

func (s *Session) cropRect(det Detection, w, h float64) crop.Rect {
	if det.Kind == None {
		return crop.Center(w, h)
	}
	box := detection.SelectPrimary(det.Faces).Box.Clip(w, h)
	if box.Empty() {
		return crop.Center(w, h)
	}
	return crop.AroundFace(w, h, box, s.padding)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	fn := s.onState
	s.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

func message(k Kind) string {
	switch k {
	case Real:
		return MessageReal
	case Heuristic:
		return MessageHeuristic
	default:
		return MessageNone
	}
}

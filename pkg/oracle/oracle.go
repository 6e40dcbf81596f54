// Package oracle runs face detectors behind a single-call interface.
//
// The gateway only sees Oracle. Backends are interchangeable:
//   - Process - spawns the external detector script per call (production default)
//   - YuNet - in-process OpenCV FaceDetectorYN via gocv
//   - Pigo - pure-Go pixel intensity cascade
//   - CloudVision - Google Cloud Vision FACE_DETECTION
//   - Mock - scripted results for tests
//
// Chain composes backends, trying each in order until one succeeds.
//
// Every backend returns pixel-unit boxes already filtered by detection.Params.
// A nil error means success; the face slice may then be empty but is never nil.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

// Oracle detects faces in an encoded image.
type Oracle interface {
	// Detect returns the faces found in image (PNG or JPEG bytes).
	Detect(ctx context.Context, image []byte) ([]detection.Face, error)

	// Name identifies the backend in logs and health output.
	Name() string

	// Close releases resources
	Close() error
}

// Backend names a detector implementation.
type Backend string

const (
	// BackendProcess runs the external detector script.
	BackendProcess Backend = "process"
	// BackendYuNet uses OpenCV's YuNet face detector.
	BackendYuNet Backend = "yunet"
	// BackendPigo uses the pigo cascade classifier.
	BackendPigo Backend = "pigo"
	// BackendCloudVision calls Google Cloud Vision.
	BackendCloudVision Backend = "cloudvision"
	// BackendMock never detects anything; for wiring tests.
	BackendMock Backend = "mock"
)

// Sentinel errors for common conditions.
var (
	// ErrMalformedOutput is returned when the detector ran but its output could not be parsed.
	ErrMalformedOutput = errors.New("oracle: malformed detector output")

	// ErrDetectorFailed is returned when the detector itself reported a failure.
	ErrDetectorFailed = errors.New("oracle: detector reported failure")

	// ErrTimeout is returned when the detector did not finish in time.
	ErrTimeout = errors.New("oracle: detector timed out")

	// ErrUnknownBackend is returned by New for an unrecognised backend name.
	ErrUnknownBackend = errors.New("oracle: unknown backend")
)

// ProcessError describes a detector process that could not run to a clean exit.
type ProcessError struct {
	// ExitCode is the process exit status, or -1 if it never exited normally.
	ExitCode int

	// Stderr is everything the process wrote to standard error.
	Stderr string

	// Err is the underlying cause when the process did not exit on its own.
	Err error
}

// Error returns the captured stderr text when there is any.
func (e *ProcessError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	if e.Err != nil {
		return fmt.Sprintf("detector process: %v", e.Err)
	}
	return fmt.Sprintf("detector process exited with status %d", e.ExitCode)
}

// Unwrap returns the underlying cause.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	// Backend to use. Default: "process"
	Backend Backend

	// Fallback backends tried in order when Backend fails. Default: none
	Fallback []Backend

	// Process backend
	Python  string        // Interpreter used to run Script
	Script  string        // Detector script path
	Timeout time.Duration // Upper bound on one invocation
	Stdin   bool          // Pipe the payload on stdin and pass "--image -"

	// YuNet backend
	YuNetModel string // Path to face_detection_yunet ONNX model

	// Pigo backend
	PigoCascade string // Path to the facefinder cascade file

	// CloudVision backend. Empty key means application default credentials.
	GoogleAPIKey string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendProcess,
		Python:      "python3",
		Script:      "face-detection/blazeface_detector.py",
		Timeout:     30 * time.Second,
		YuNetModel:  "models/face_detection_yunet.onnx",
		PigoCascade: "models/facefinder",
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	for _, b := range append([]Backend{c.Backend}, c.Fallback...) {
		if err := c.validateBackend(b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBackend(b Backend) error {
	switch b {
	case BackendProcess:
		if c.Python == "" || c.Script == "" {
			return fmt.Errorf("process backend needs python and script paths")
		}
		if c.Timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
		}
	case BackendYuNet:
		if c.YuNetModel == "" {
			return fmt.Errorf("yunet backend needs a model path")
		}
	case BackendPigo:
		if c.PigoCascade == "" {
			return fmt.Errorf("pigo backend needs a cascade path")
		}
	case BackendCloudVision, BackendMock:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, b)
	}
	return nil
}

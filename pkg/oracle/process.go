package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-posterface/pkg/debug"
	"github.com/teslashibe/go-posterface/pkg/detection"
)

// Process runs the external detector once per call.
//
// The image travels as base64 in "--image <payload>" (or on stdin with
// "--image -" when Stdin is set) followed by "--conf", "--iou" and
// "--max-det". The script answers with one JSON object on stdout:
//
//	{"success": true, "faces": [{"confidence": 0.9, "bounding_box": {"x":..,"y":..,"width":..,"height":..}}]}
//
// Nothing is shared between calls, so concurrent use is safe.
type Process struct {
	python  string
	script  string
	timeout time.Duration
	stdin   bool
	params  detection.Params
	logger  *slog.Logger
}

// NewProcess creates a process-backed oracle.
func NewProcess(cfg Config, params detection.Params, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Process{
		python:  cfg.Python,
		script:  cfg.Script,
		timeout: timeout,
		stdin:   cfg.Stdin,
		params:  params,
		logger:  logger,
	}
}

// Name returns "process".
func (p *Process) Name() string { return string(BackendProcess) }

// Close is a no-op; each call owns its own process.
func (p *Process) Close() error { return nil }

// Detect runs the detector on image and parses its report.
func (p *Process) Detect(ctx context.Context, image []byte) ([]detection.Face, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload := base64.StdEncoding.EncodeToString(image)

	cmd := exec.CommandContext(ctx, p.python, p.args(payload)...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if p.stdin {
		cmd.Stdin = strings.NewReader(payload)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause := ctxErr
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				cause = ErrTimeout
			}
			p.logger.Warn("detector did not finish",
				"timeout", p.timeout,
				"elapsed", elapsed,
				"error", ctxErr)
			return nil, &ProcessError{ExitCode: -1, Stderr: stderr.String(), Err: cause}
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Warn("detector exited with error",
				"code", exitErr.ExitCode(),
				"stderr", strings.TrimSpace(stderr.String()))
			return nil, &ProcessError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}

		p.logger.Error("detector failed to start", "python", p.python, "error", err)
		return nil, &ProcessError{ExitCode: -1, Err: err}
	}

	faces, err := parseReport(stdout.Bytes(), p.params)
	if err != nil {
		p.logger.Warn("detector output rejected", "error", err, "bytes", stdout.Len())
		return nil, err
	}

	debug.Faces(p.logger, faces, "elapsed", elapsed)
	return faces, nil
}

func (p *Process) args(payload string) []string {
	image := payload
	if p.stdin {
		image = "-"
	}
	return []string{
		p.script,
		"--image", image,
		"--conf", strconv.FormatFloat(p.params.ConfidenceThreshold, 'f', -1, 64),
		"--iou", strconv.FormatFloat(p.params.IoUThreshold, 'f', -1, 64),
		"--max-det", strconv.Itoa(p.params.MaxDetections),
	}
}

// report is the detector's stdout document.
type report struct {
	Success bool             `json:"success"`
	Faces   []detection.Face `json:"faces"`
	Count   int              `json:"count"`
	Error   string           `json:"error"`
}

func parseReport(out []byte, params detection.Params) ([]detection.Face, error) {
	var r report
	if err := json.Unmarshal(bytes.TrimSpace(out), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "no reason given"
		}
		return nil, fmt.Errorf("%w: %s", ErrDetectorFailed, msg)
	}
	return params.Filter(r.Faces), nil
}

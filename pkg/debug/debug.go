// Package debug holds the verbose detection logging switch set by
// the -debug-detection flag.
package debug

import (
	"log/slog"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

// Detection controls whether per-face detector output is logged.
// It is very verbose; leave it off outside of tuning sessions.
var Detection bool

// Faces logs each face a backend produced.
// args are extra attributes for the summary line, e.g. "elapsed", d.
func Faces(logger *slog.Logger, faces []detection.Face, args ...any) {
	if !Detection {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("detector output", append([]any{"count", len(faces)}, args...)...)
	for i, f := range faces {
		logger.Info("face",
			"index", i,
			"x", f.Box.X,
			"y", f.Box.Y,
			"w", f.Box.Width,
			"h", f.Box.Height,
			"confidence", f.Confidence)
	}
}

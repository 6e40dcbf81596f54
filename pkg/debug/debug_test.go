package debug

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

func TestFaces(t *testing.T) {
	faces := []detection.Face{
		{Box: detection.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}, Confidence: 0.9},
		{Box: detection.BoundingBox{X: 5, Y: 6, Width: 7, Height: 8}, Confidence: 0.4},
	}

	tests := []struct {
		name      string
		enabled   bool
		wantLines int
	}{
		{"disabled", false, 0},
		{"enabled", true, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			old := Detection
			Detection = tc.enabled
			defer func() { Detection = old }()

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			Faces(logger, faces, "backend", "test")

			out := strings.TrimSpace(buf.String())
			lines := 0
			if out != "" {
				lines = len(strings.Split(out, "\n"))
			}
			if lines != tc.wantLines {
				t.Errorf("got %d log lines, want %d:\n%s", lines, tc.wantLines, out)
			}
			if tc.enabled && !strings.Contains(out, "backend=test") {
				t.Errorf("summary missing extra attributes:\n%s", out)
			}
		})
	}
}

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"mock", func(c *Config) { c.Backend = BackendMock }, false},
		{"cloudvision without key", func(c *Config) { c.Backend = BackendCloudVision }, false},
		{"unknown backend", func(c *Config) { c.Backend = "tensorflow" }, true},
		{"process without script", func(c *Config) { c.Script = "" }, true},
		{"process zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"yunet without model", func(c *Config) { c.Backend = BackendYuNet; c.YuNetModel = "" }, true},
		{"pigo without cascade", func(c *Config) { c.Backend = BackendPigo; c.PigoCascade = "" }, true},
		{"fallback ok", func(c *Config) { c.Fallback = []Backend{BackendMock} }, false},
		{"fallback unknown", func(c *Config) { c.Fallback = []Backend{"tensorflow"} }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	params := detection.DefaultParams()

	t.Run("process", func(t *testing.T) {
		o, err := New(ctx, DefaultConfig(), params, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if o.Name() != "process" {
			t.Errorf("Name() = %q, want process", o.Name())
		}
	})

	t.Run("mock", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendMock
		o, err := New(ctx, cfg, params, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		faces, err := o.Detect(ctx, nil)
		if err != nil || len(faces) != 0 {
			t.Errorf("mock backend: faces=%v err=%v", faces, err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = "nope"
		if _, err := New(ctx, cfg, params, nil); !errors.Is(err, ErrUnknownBackend) {
			t.Errorf("error = %v, want ErrUnknownBackend", err)
		}
	})

	t.Run("yunet missing model", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendYuNet
		cfg.YuNetModel = "/nonexistent/model.onnx"
		o, err := New(ctx, cfg, params, nil)
		if err == nil {
			t.Fatal("expected error for missing model")
		}
		if o != nil {
			t.Error("expected nil oracle on error")
		}
	})

	t.Run("fallback builds chain", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Fallback = []Backend{BackendMock}
		o, err := New(ctx, cfg, params, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, ok := o.(*Chain); !ok {
			t.Fatalf("got %T, want *Chain", o)
		}
		if o.Name() != "process>mock" {
			t.Errorf("Name() = %q, want process>mock", o.Name())
		}
	})

	t.Run("fallback construction failure", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Fallback = []Backend{BackendPigo}
		cfg.PigoCascade = "/nonexistent/facefinder"
		if _, err := New(ctx, cfg, params, nil); err == nil {
			t.Fatal("expected error for missing fallback cascade")
		}
	})

	t.Run("pigo missing cascade", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendPigo
		cfg.PigoCascade = "/nonexistent/facefinder"
		if _, err := New(ctx, cfg, params, nil); err == nil {
			t.Fatal("expected error for missing cascade")
		}
	})
}

func TestAvailableBackends(t *testing.T) {
	for _, b := range AvailableBackends() {
		cfg := DefaultConfig()
		cfg.Backend = b
		if err := cfg.Validate(); errors.Is(err, ErrUnknownBackend) {
			t.Errorf("backend %q listed but rejected", b)
		}
	}
}

func TestMock(t *testing.T) {
	face := detection.Face{Box: detection.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}, Confidence: 0.9}
	m := NewMock(face)

	faces, err := m.Detect(context.Background(), []byte("a"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 1 || faces[0] != face {
		t.Errorf("faces = %+v", faces)
	}

	// Mutating the result must not leak into the next call
	faces[0].Confidence = 0
	faces, _ = m.Detect(context.Background(), []byte("b"))
	if faces[0].Confidence != 0.9 {
		t.Error("mock results share backing storage between calls")
	}

	if m.CallCount() != 2 {
		t.Errorf("CallCount() = %d, want 2", m.CallCount())
	}
	if string(m.Calls()[1]) != "b" {
		t.Errorf("second call image = %q", m.Calls()[1])
	}

	m.Reset()
	if m.CallCount() != 0 {
		t.Error("Reset did not clear calls")
	}
}

func TestFailingMock(t *testing.T) {
	want := errors.New("detector down")
	m := NewFailingMock(want)

	if _, err := m.Detect(context.Background(), nil); !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
}

func TestPigoConfidence(t *testing.T) {
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 0},
		{-3, 0},
		{5, 0.5},
		{15, 0.75},
	}
	for _, tc := range tests {
		if got := pigoConfidence(tc.q); got != tc.want {
			t.Errorf("pigoConfidence(%v) = %v, want %v", tc.q, got, tc.want)
		}
	}
}

func TestPolyBox(t *testing.T) {
	poly := &vision.BoundingPoly{Vertices: []*vision.Vertex{
		{X: 110, Y: 20}, {X: 10, Y: 20}, {X: 10, Y: 140}, {X: 110, Y: 140},
	}}
	box, ok := polyBox(poly)
	if !ok {
		t.Fatal("polyBox rejected a valid polygon")
	}
	want := detection.BoundingBox{X: 10, Y: 20, Width: 100, Height: 120}
	if box != want {
		t.Errorf("box = %+v, want %+v", box, want)
	}

	if _, ok := polyBox(nil); ok {
		t.Error("polyBox accepted nil")
	}
}

func TestCloudVisionDetect(t *testing.T) {
	var gotFeature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/images:annotate") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req vision.BatchAnnotateImagesRequest
		if err := json.Unmarshal(body, &req); err == nil && len(req.Requests) == 1 {
			gotFeature = req.Requests[0].Features[0].Type
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"responses": [{"faceAnnotations": [
			{"boundingPoly": {"vertices": [{"x": 10, "y": 20}, {"x": 110, "y": 20}, {"x": 110, "y": 140}, {"x": 10, "y": 140}]}, "detectionConfidence": 0.93},
			{"boundingPoly": {"vertices": [{"x": 200, "y": 20}, {"x": 240, "y": 20}, {"x": 240, "y": 60}, {"x": 200, "y": 60}]}, "detectionConfidence": 0.31}
		]}]}`)
	}))
	defer srv.Close()

	cv, err := NewCloudVision(context.Background(), "test-key", detection.DefaultParams(), nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewCloudVision failed: %v", err)
	}

	faces, err := cv.Detect(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if gotFeature != "FACE_DETECTION" {
		t.Errorf("feature = %q, want FACE_DETECTION", gotFeature)
	}
	if len(faces) != 1 {
		t.Fatalf("got %d faces, want 1 (low confidence dropped)", len(faces))
	}
	if faces[0].Box != (detection.BoundingBox{X: 10, Y: 20, Width: 100, Height: 120}) {
		t.Errorf("box = %+v", faces[0].Box)
	}
}

func TestCloudVisionReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"responses": [{"error": {"code": 3, "message": "Bad image data."}}]}`)
	}))
	defer srv.Close()

	cv, err := NewCloudVision(context.Background(), "test-key", detection.DefaultParams(), nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewCloudVision failed: %v", err)
	}

	_, err = cv.Detect(context.Background(), []byte("jpeg"))
	if !errors.Is(err, ErrDetectorFailed) {
		t.Errorf("error = %v, want ErrDetectorFailed", err)
	}
}

// findModelFile looks for a model file in common locations
func findModelFile(name string) string {
	candidates := []string{
		filepath.Join("models", name),
		filepath.Join("..", "..", "models", name),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func TestYuNetNewInvalidPath(t *testing.T) {
	if _, err := NewYuNet("/nonexistent/path/model.onnx", detection.DefaultParams(), nil); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestYuNetDetectInvalidImage(t *testing.T) {
	modelPath := findModelFile("face_detection_yunet.onnx")
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	d, err := NewYuNet(modelPath, detection.DefaultParams(), nil)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Detect(context.Background(), []byte("not an image")); err == nil {
		t.Error("Expected error for invalid image data")
	}
}

func TestPigoDetectInvalidImage(t *testing.T) {
	cascade := findModelFile("facefinder")
	if cascade == "" {
		t.Skip("pigo cascade not found, skipping test")
	}

	p, err := NewPigo(cascade, detection.DefaultParams(), nil)
	if err != nil {
		t.Fatalf("NewPigo failed: %v", err)
	}

	if _, err := p.Detect(context.Background(), []byte("not an image")); !errors.Is(err, ErrDetectorFailed) {
		t.Errorf("error = %v, want ErrDetectorFailed", err)
	}
}

package oracle

import (
	"context"
	"sync"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

// Mock implements Oracle for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, image []byte) ([]detection.Face, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls [][]byte
}

// NewMock creates a mock oracle that always reports faces.
func NewMock(faces ...detection.Face) *Mock {
	return &Mock{
		DetectFunc: func(ctx context.Context, image []byte) ([]detection.Face, error) {
			out := make([]detection.Face, len(faces))
			copy(out, faces)
			return out, nil
		},
	}
}

// NewFailingMock creates a mock oracle whose every call fails with err.
func NewFailingMock(err error) *Mock {
	return &Mock{
		DetectFunc: func(ctx context.Context, image []byte) ([]detection.Face, error) {
			return nil, err
		},
	}
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, image []byte) ([]detection.Face, error) {
	m.mu.Lock()
	m.calls = append(m.calls, image)
	m.mu.Unlock()

	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, image)
	}
	return []detection.Face{}, nil
}

// Name returns "mock".
func (m *Mock) Name() string { return string(BackendMock) }

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns the images passed to Detect, in order.
func (m *Mock) Calls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Detect calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Ensure Mock implements Oracle
var _ Oracle = (*Mock)(nil)

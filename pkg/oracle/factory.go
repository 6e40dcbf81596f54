package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

// New creates the oracle named by cfg.Backend. When cfg.Fallback is set the
// result is a Chain trying cfg.Backend first, then each fallback in order.
//
// Example:
//
//	cfg := oracle.DefaultConfig()
//	cfg.Backend = oracle.BackendYuNet
//	o, err := oracle.New(ctx, cfg, detection.DefaultParams(), logger)
func New(ctx context.Context, cfg Config, params detection.Params, logger *slog.Logger) (Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Fallback) == 0 {
		return newBackend(ctx, cfg.Backend, cfg, params, logger)
	}

	backends := append([]Backend{cfg.Backend}, cfg.Fallback...)
	oracles := make([]Oracle, 0, len(backends))
	for _, b := range backends {
		o, err := newBackend(ctx, b, cfg, params, logger)
		if err != nil {
			for _, built := range oracles {
				built.Close()
			}
			return nil, fmt.Errorf("backend %s: %w", b, err)
		}
		oracles = append(oracles, o)
	}
	return NewChain(logger, oracles...)
}

func newBackend(ctx context.Context, backend Backend, cfg Config, params detection.Params, logger *slog.Logger) (Oracle, error) {
	logger = logger.With("backend", string(backend))

	switch backend {
	case BackendProcess:
		return NewProcess(cfg, params, logger), nil
	case BackendYuNet:
		o, err := NewYuNet(cfg.YuNetModel, params, logger)
		if err != nil {
			return nil, err
		}
		return o, nil
	case BackendPigo:
		o, err := NewPigo(cfg.PigoCascade, params, logger)
		if err != nil {
			return nil, err
		}
		return o, nil
	case BackendCloudVision:
		o, err := NewCloudVision(ctx, cfg.GoogleAPIKey, params, logger)
		if err != nil {
			return nil, err
		}
		return o, nil
	case BackendMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// AvailableBackends returns the supported backend names.
func AvailableBackends() []Backend {
	return []Backend{BackendProcess, BackendYuNet, BackendPigo, BackendCloudVision, BackendMock}
}

package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-posterface/pkg/detection"
)

// Chain tries multiple oracles in order until one succeeds.
// A successful empty result counts as success and ends the chain.
type Chain struct {
	oracles []Oracle
	logger  *slog.Logger
}

// NewChain creates an oracle chain. At least one oracle is required.
func NewChain(logger *slog.Logger, oracles ...Oracle) (*Chain, error) {
	if len(oracles) == 0 {
		return nil, errors.New("oracle: chain needs at least one oracle")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		oracles: oracles,
		logger:  logger.With("component", "oracle.chain"),
	}, nil
}

// Name joins member names, e.g. "process>pigo".
func (c *Chain) Name() string {
	names := make([]string, len(c.oracles))
	for i, o := range c.oracles {
		names[i] = o.Name()
	}
	return strings.Join(names, ">")
}

// Detect tries each oracle until one succeeds.
func (c *Chain) Detect(ctx context.Context, image []byte) ([]detection.Face, error) {
	var errs []error

	for i, o := range c.oracles {
		faces, err := o.Detect(ctx, image)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback oracle succeeded", "oracle", o.Name(), "faces", len(faces))
			}
			return faces, nil
		}

		errs = append(errs, err)
		c.logger.Warn("oracle failed, trying next", "oracle", o.Name(), "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Close closes every member and returns the first error.
func (c *Chain) Close() error {
	var first error
	for _, o := range c.oracles {
		if err := o.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ChainError aggregates errors from all oracles in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("all %d oracles failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every member error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

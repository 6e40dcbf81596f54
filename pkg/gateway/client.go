package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teslashibe/go-posterface/internal/httpc"
)

// TransportError means the gateway could not be reached or gave an
// unusable answer. Callers treat it as "detection unavailable".
type TransportError struct {
	Op         string // "request", "status", or "decode"
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client calls a gateway over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the gateway at baseURL.
// A nil httpClient uses the shared httpc.Client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httpc.Client
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Crop posts imageURL to /api/crop and returns the decoded response.
func (c *Client) Crop(ctx context.Context, imageURL string) (*CropResponse, error) {
	body, err := json.Marshal(CropRequest{ImageURL: imageURL})
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/crop", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var er ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return nil, &TransportError{Op: "status", StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	var out CropResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}
	return &out, nil
}

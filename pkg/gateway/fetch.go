package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/xerrors"

	"github.com/teslashibe/go-posterface/internal/httpc"
)

// DefaultMaxImageBytes caps how much the fetcher will read for one image.
const DefaultMaxImageBytes = 20 << 20

// FetchError reports a failure to obtain the bytes behind an image URL.
type FetchError struct {
	URL        string
	StatusCode int // Non-zero when the remote answered with a non-2xx status
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", shortURL(e.URL), e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", shortURL(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher resolves an image URL to its bytes.
//
// Supported forms:
//   - data: URLs, base64 or percent-encoded
//   - absolute http(s) URLs
//   - root-relative paths such as /uploads/x.png, resolved against BaseURL
type Fetcher struct {
	Client   *http.Client
	BaseURL  string
	MaxBytes int64
}

// NewFetcher creates a fetcher using the shared HTTP client.
func NewFetcher(baseURL string) *Fetcher {
	return &Fetcher{
		Client:   httpc.Client,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		MaxBytes: DefaultMaxImageBytes,
	}
}

// Fetch returns the bytes behind raw. No retry is attempted.
func (f *Fetcher) Fetch(ctx context.Context, raw string) ([]byte, error) {
	switch {
	case strings.HasPrefix(raw, "data:"):
		data, err := decodeDataURL(raw)
		if err != nil {
			return nil, &FetchError{URL: raw, Err: err}
		}
		return data, nil

	case strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//"):
		if f.BaseURL == "" {
			return nil, &FetchError{URL: raw, Err: xerrors.New("relative URL with no public base URL configured")}
		}
		return f.get(ctx, f.BaseURL+raw)

	default:
		u, err := url.Parse(raw)
		if err != nil {
			return nil, &FetchError{URL: raw, Err: xerrors.Errorf("parse url: %w", err)}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, &FetchError{URL: raw, Err: xerrors.Errorf("unsupported URL scheme %q", u.Scheme)}
		}
		return f.get(ctx, raw)
	}
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: xerrors.Errorf("build request: %w", err)}
	}

	client := f.Client
	if client == nil {
		client = httpc.Client
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: xerrors.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &FetchError{URL: target, Err: xerrors.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, &FetchError{URL: target, Err: xerrors.Errorf("image larger than %d bytes", limit)}
	}
	return data, nil
}

// decodeDataURL decodes "data:[<mediatype>][;base64],<data>".
func decodeDataURL(raw string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, xerrors.New("malformed data URL: missing comma")
	}

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders drop the padding
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, xerrors.Errorf("decode base64 payload: %w", err)
		}
		return data, nil
	}

	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, xerrors.Errorf("decode data URL payload: %w", err)
	}
	return []byte(data), nil
}

// shortURL keeps data URLs out of logs and error text.
func shortURL(raw string) string {
	if strings.HasPrefix(raw, "data:") {
		if meta, _, ok := strings.Cut(raw, ","); ok {
			return meta + ",..."
		}
		return "data:..."
	}
	if len(raw) > 256 {
		return raw[:256] + "..."
	}
	return raw
}

// Package embed provides a client for the external text-embedding provider.
// The provider is treated as best-effort: any transport error, timeout, or
// malformed response surfaces as ErrUnavailable so callers can degrade to
// their fallback scoring path.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Kind selects the embedding mode of the provider.
type Kind string

// Embedding kinds. Base item text is encoded as a query, candidate texts as
// passages, matching the asymmetric encoder the provider runs.
const (
	KindQuery   Kind = "query"
	KindPassage Kind = "passage"
)

// ErrUnavailable is returned when the provider is disabled, unreachable,
// times out, or returns an unusable response.
var ErrUnavailable = errors.New("embedding provider unavailable")

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 5 * time.Second

// request is the provider wire format for POST /embed.
type request struct {
	Texts     []string `json:"texts"`
	Kind      string   `json:"kind"`
	Normalize bool     `json:"normalize"`
}

// response is the provider wire format for embeddings.
type response struct {
	Vectors [][]float64 `json:"vectors"`
	Dim     int         `json:"dim"`
}

// Client calls the text-embedding provider over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client with the given base URL and per-call
// timeout. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Embed encodes the given texts and returns one vector per text, in order.
// All failure modes return an error wrapping ErrUnavailable; the caller is
// expected to fall back, never to abort its overall operation.
func (c *Client) Embed(ctx context.Context, texts []string, kind Kind) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	body, err := json.Marshal(request{
		Texts:     texts,
		Kind:      string(kind),
		Normalize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("embedding provider call failed",
			slog.String("kind", string(kind)),
			slog.Int("texts", len(texts)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Warn("embedding provider returned non-200",
			slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}

	if len(decoded.Vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrUnavailable, len(texts), len(decoded.Vectors))
	}
	for _, v := range decoded.Vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: provider returned empty vector", ErrUnavailable)
		}
	}

	return decoded.Vectors, nil
}

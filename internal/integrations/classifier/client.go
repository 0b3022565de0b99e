// Package classifier talks to the bias classification model served over HTTP.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"debiasapi/internal/model"
	"debiasapi/internal/review"
)

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("classifier: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client implements review.Classifier against POST {baseURL}/classify.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("classifier: base URL must not be empty")
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ review.Classifier = (*Client)(nil)

// Classify labels one sentence. Labels outside the taxonomy are reported as
// ambiguous rather than rejected.
func (c *Client) Classify(ctx context.Context, text string) (review.Classification, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return review.Classification{}, fmt.Errorf("classifier: marshal request: %w", err)
	}

	url := c.baseURL + "/classify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return review.Classification{}, fmt.Errorf("classifier: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return review.Classification{}, fmt.Errorf("classifier: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return review.Classification{}, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	var payload classifyResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return review.Classification{}, fmt.Errorf("classifier: decode response: %w", err)
	}
	if payload.Confidence == nil {
		return review.Classification{}, errors.New("classifier: response missing confidence")
	}

	cat, ok := model.ParseCategory(payload.Label)
	if !ok {
		cat = model.CategoryAmbiguous
	}
	return review.Classification{Category: cat, Confidence: *payload.Confidence}, nil
}

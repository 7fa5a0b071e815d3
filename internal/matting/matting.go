package matting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"
)

// ServiceError wraps any failure from the background removal service.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("background removal failed: %v", e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Remover is the background-removal contract consumed by the pipeline.
type Remover interface {
	RemoveBackground(ctx context.Context, imageBytes []byte, mimeType string) ([]byte, error)
}

// Client posts image bytes to an HTTP matting endpoint and receives the
// processed image (PNG with alpha) back.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a matting client. A zero timeout defaults to 60s; matting
// is the slowest external call in the pipeline.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RemoveBackground sends the original bytes and returns the matted image.
func (c *Client) RemoveBackground(ctx context.Context, imageBytes []byte, mimeType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(imageBytes))
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	req.Header.Set("Content-Type", mimeType)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.MattingRequests.WithLabelValues("error").Inc()
		return nil, &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.MattingRequests.WithLabelValues("error").Inc()
		return nil, &ServiceError{Err: fmt.Errorf("matting service returned %d: %s", resp.StatusCode, body)}
	}

	processed, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.MattingRequests.WithLabelValues("error").Inc()
		return nil, &ServiceError{Err: err}
	}
	if len(processed) == 0 {
		metrics.MattingRequests.WithLabelValues("error").Inc()
		return nil, &ServiceError{Err: fmt.Errorf("matting service returned an empty body")}
	}

	metrics.MattingRequests.WithLabelValues("success").Inc()
	logging.Debug("Background removal returned %d bytes", len(processed))
	return processed, nil
}

package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"
)

// PriceRange is the advisory price band suggested for a listing.
type PriceRange struct {
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Currency string  `json:"currency"`
}

// Draft is the AI-suggested listing content for one image. Every field is
// advisory; a job completes whether or not a draft exists.
type Draft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Condition   string     `json:"condition"`
	PriceRange  PriceRange `json:"priceRange"`
}

// ServiceError wraps any failure from the vision service.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("ai enrichment failed: %v", e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Request carries the image to analyze. ImageURL is preferred when the
// original is already publicly reachable; ImageBytes is the fallback.
type Request struct {
	ImageURL   string
	ImageBytes []byte
	MimeType   string
}

// Analyzer is the vision/listing-draft contract consumed by the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Draft, error)
}

// Client talks to an HTTP vision endpoint that accepts an image and returns
// a listing draft as JSON.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds an enrichment client. A zero timeout defaults to 30s.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	ImageURL string `json:"imageUrl,omitempty"`
	Image    []byte `json:"image,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Analyze sends the image to the vision endpoint and decodes the draft.
func (c *Client) Analyze(ctx context.Context, req Request) (*Draft, error) {
	payload, err := json.Marshal(analyzeRequest{
		ImageURL: req.ImageURL,
		Image:    req.ImageBytes,
		MimeType: req.MimeType,
	})
	if err != nil {
		return nil, &ServiceError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.EnrichmentRequests.WithLabelValues("error").Inc()
		return nil, &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.EnrichmentRequests.WithLabelValues("error").Inc()
		return nil, &ServiceError{Err: fmt.Errorf("vision service returned %d: %s", resp.StatusCode, body)}
	}

	var draft Draft
	if err := json.NewDecoder(resp.Body).Decode(&draft); err != nil {
		metrics.EnrichmentRequests.WithLabelValues("error").Inc()
		return nil, &ServiceError{Err: fmt.Errorf("cannot decode draft: %w", err)}
	}

	metrics.EnrichmentRequests.WithLabelValues("success").Inc()
	logging.Debug("Enrichment draft received: %q", draft.Title)
	return &draft, nil
}

// Package embedding turns product image URLs into fixed-length vectors
// through an external inference endpoint. This is the most expensive call
// in the pipeline; failures are per-item and leave the product's
// embedding absent rather than failing the product.
package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// maxImageBytes caps how much of an image response is read.
const maxImageBytes = 20 << 20

// Client downloads an image and submits it to the inference endpoint.
// One Client is constructed per run and passed explicitly; the endpoint
// keeps the model loaded across calls, so the cold start is paid once.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	dimensions int
	userAgent  string
	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
	logger     *zap.Logger
}

// Config holds the embedding client settings.
type Config struct {
	EndpointURL string
	Model       string
	Dimensions  int
	Timeout     time.Duration // per-item budget: download + inference
	UserAgent   string
	Requests    *prometheus.CounterVec // label "status"; optional
	Duration    prometheus.Histogram   // optional
	Logger      *zap.Logger
}

// NewClient creates an embedding client.
func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   cfg.EndpointURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		userAgent:  cfg.UserAgent,
		requests:   cfg.Requests,
		duration:   cfg.Duration,
		logger:     cfg.Logger,
	}
}

// embedRequest is the inference endpoint payload. The model requires a
// paired text input even for image-only embeddings; Text stays empty to
// select the image representation.
type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image"` // base64-encoded bytes
	Text  string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed downloads imageURL, verifies it decodes as an image, submits it
// with an empty text prompt and returns the L2-normalized vector. A
// success always has exactly the configured dimensionality.
func (c *Client) Embed(ctx context.Context, imageURL string) (domain.Vector, error) {
	start := time.Now()

	vec, err := c.embed(ctx, imageURL)

	if c.duration != nil {
		c.duration.Observe(time.Since(start).Seconds())
	}
	if c.requests != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.requests.WithLabelValues(status).Inc()
	}
	return vec, err
}

func (c *Client) embed(ctx context.Context, imageURL string) (domain.Vector, error) {
	raw, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, &domain.EmbeddingError{Stage: domain.EmbedDownload, Err: err}
	}

	// Decode up front so corrupt downloads fail before the expensive
	// inference call.
	if _, _, err := image.Decode(bytes.NewReader(raw)); err != nil {
		return nil, &domain.EmbeddingError{Stage: domain.EmbedDecode, Err: err}
	}

	vec, err := c.infer(ctx, raw)
	if err != nil {
		return nil, err
	}

	if vec.Dim() != c.dimensions {
		return nil, &domain.EmbeddingError{
			Stage: domain.EmbedDimension,
			Err:   fmt.Errorf("got %d components, want %d", vec.Dim(), c.dimensions),
		}
	}

	return vec.Normalize(), nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return raw, nil
}

func (c *Client) infer(ctx context.Context, raw []byte) (domain.Vector, error) {
	body, err := json.Marshal(embedRequest{
		Model: c.model,
		Image: base64.StdEncoding.EncodeToString(raw),
		Text:  "",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.EmbeddingError{Stage: domain.EmbedInference, Err: fmt.Errorf("inference request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &domain.EmbeddingError{
			Stage: domain.EmbedInference,
			Err:   fmt.Errorf("inference API: status %d: %s", resp.StatusCode, string(detail)),
		}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &domain.EmbeddingError{Stage: domain.EmbedInference, Err: fmt.Errorf("decode inference response: %w", err)}
	}
	if len(result.Embedding) == 0 {
		return nil, &domain.EmbeddingError{Stage: domain.EmbedInference, Err: fmt.Errorf("empty inference response")}
	}

	c.logger.Debug("Embedding computed", zap.Int("dimensions", len(result.Embedding)))
	return domain.Vector(result.Embedding), nil
}

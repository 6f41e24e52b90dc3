// Package httpml talks to detector and pose model servers over HTTP/JSON.
package httpml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/vision"
	"github.com/okian/padeliq/pkg/logger"
)

const (
	defaultMaxRetries = 2
	defaultRetryDelay = 200 * time.Millisecond
	jpegQuality       = 85
	userAgent         = "padeliq/1.0"
)

var (
	_ vision.Detector      = (*Detector)(nil)
	_ vision.PoseEstimator = (*PoseEstimator)(nil)
)

// Option configures a client.
type Option func(*client)

// WithHTTPClient replaces the HTTP client. Per-call deadlines come from
// the request context, so the client itself needs no timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRetries sets how often a failed call is retried and the base delay
// between attempts. Timeouts are never retried.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(cl *client) {
		if maxRetries >= 0 {
			cl.maxRetries = maxRetries
		}
		if delay > 0 {
			cl.retryDelay = delay
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *client) {
		if l != nil {
			cl.logger = l
		}
	}
}

type client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     logger.Logger
}

func newClient(baseURL string, opts []Option) *client {
	c := &client{
		baseURL:    baseURL,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("httpml")
	}
	return c
}

// statusError is a non-2xx answer from a model server.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model server error (status %d): %s", e.code, e.body)
}

// post sends in as JSON to path and decodes the answer into out, retrying
// transport errors and 5xx answers.
func (c *client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn(ctx, "retrying model request",
				logger.String("path", path),
				logger.Int("attempt", attempt),
				logger.Error(lastErr),
			)
			if err := sleep(ctx, c.retryDelay*time.Duration(attempt)); err != nil {
				return err
			}
		}
		lastErr = c.do(ctx, path, body, out)
		if lastErr == nil || !retryable(ctx, lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("model request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *client) do(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck probes GET /health.
func (c *client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func encodeFrame(f model.Frame) ([]byte, error) {
	if f.Image == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", f.Index, err)
	}
	return buf.Bytes(), nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"market-pulse/config"
	"market-pulse/observability"
)

// Provider names. These are the provenance strings reported in summaries
// and the keys of the health report.
const (
	ProviderYahoo        = "YahooFinance"
	ProviderAlphaVantage = "AlphaVantage"
	ProviderFinnhub      = "Finnhub"
	ProviderFRED         = "FRED"
	ProviderSEC          = "SEC"
)

// ErrNoCredentials is returned by operations that need an API key that is not configured
var ErrNoCredentials = errors.New("provider credentials not configured")

// maxBodyBytes bounds how much of an upstream response is read
const maxBodyBytes = 4 << 20

// StatusError is returned for non-2xx upstream responses
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// Client is the transport shared by every provider adapter: it runs each
// request through the provider's circuit breaker and the retry policy, and
// owns the provider's health flag.
type Client struct {
	name       string
	httpClient *http.Client
	retry      RetryConfig
	breakers   *Breakers
	metrics    *observability.Metrics
	healthy    atomic.Bool
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBreakers sets the circuit breakers; the default is DefaultBreakers
func WithBreakers(b *Breakers) ClientOption {
	return func(c *Client) {
		c.breakers = b
	}
}

// WithClientMetrics sets the metrics sink
func WithClientMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client for the named provider. Adapters start healthy.
func NewClient(name string, cfg config.ProviderConfig, opts ...ClientOption) *Client {
	c := &Client{
		name:       name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      RetryConfigFrom(cfg),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observability.GetMetrics()
	}
	if c.breakers == nil {
		c.breakers = DefaultBreakers()
	}
	c.healthy.Store(true)
	return c
}

// Name returns the provider name
func (c *Client) Name() string {
	return c.name
}

// Healthy reports whether the last request to the provider succeeded
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// getBody performs a GET with retry under the provider's circuit breaker.
// On exhaustion the provider is marked unhealthy and the last error returned.
func (c *Client) getBody(ctx context.Context, operation, rawURL string, headers map[string]string) ([]byte, error) {
	timer := c.metrics.NewTimer()
	defer timer.ObserveProvider(c.name, operation)

	body, err := c.breakers.Do(ctx, c.name, func() ([]byte, error) {
		var body []byte
		err := WithRetry(ctx, c.retry, func() error {
			c.metrics.RecordProviderRequest(c.name, operation)
			b, err := c.do(ctx, rawURL, headers)
			if err != nil {
				c.metrics.RecordProviderError(c.name, operation, errorType(err))
				return err
			}
			body = b
			return nil
		})
		return body, err
	})
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			c.metrics.RecordProviderError(c.name, operation, errorType(err))
		}
		c.healthy.Store(false)
		observability.WithProvider(c.name).Warn("provider request failed",
			"operation", operation,
			"error", err)
		return nil, fmt.Errorf("%s %s: %w", c.name, operation, err)
	}

	c.healthy.Store(true)
	return body, nil
}

// getJSON fetches rawURL and decodes the body into out. A decode failure is
// returned but does not affect provider health.
func (c *Client) getJSON(ctx context.Context, operation, rawURL string, headers map[string]string, out any) error {
	body, err := c.getBody(ctx, operation, rawURL, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordProviderError(c.name, operation, "decode")
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func errorType(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrMissingTemperature is returned when the body has no numeric temperature field
	ErrMissingTemperature = errors.New("response has no temperature field")

	// ErrUnexpectedStatus is returned for non-2xx responses
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// TemperatureSource yields the current temperature reading
type TemperatureSource interface {
	FetchTemperature(ctx context.Context) (float64, error)
}

// Client reads the temperature from an HTTP endpoint returning {"temperature": <number>}
type Client struct {
	url     string
	client  *http.Client
	limit   *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(c *Client) error

// NewClient creates a sensor client for the given URL
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("sensor URL is required")
	}

	c := &Client{
		url:     url,
		client:  &http.Client{},
		limit:   rate.NewLimiter(rate.Every(time.Second), 1),
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}

	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTimeout bounds each request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithMinInterval spaces requests at least d apart. Zero disables limiting.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("min interval must not be negative")
		}
		if d == 0 {
			c.limit = rate.NewLimiter(rate.Inf, 1)
			return nil
		}
		c.limit = rate.NewLimiter(rate.Every(d), 1)
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

type reading struct {
	Temperature *float64 `json:"temperature"`
}

// FetchTemperature performs one GET and decodes the temperature field
func (c *Client) FetchTemperature(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limit.Wait(ctx); err != nil {
		return 0, fmt.Errorf("cannot await rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("cannot create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching temperature", "url", c.url)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error fetching temperature: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	var data reading
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("error decoding temperature: %w", err)
	}
	if data.Temperature == nil {
		return 0, ErrMissingTemperature
	}

	return *data.Temperature, nil
}

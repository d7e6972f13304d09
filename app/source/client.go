package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

type ClientOptions struct {
	UserAgent         string
	Timeout           time.Duration // per attempt; zero disables
	MaxRetries        int
	RequestsPerSecond float64 // zero or less disables pacing
	RetryInterval     time.Duration
}

// Client performs paced GET requests against the publisher, retrying transport
// errors, 429 and 5xx responses with exponential backoff.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       ClientOptions
}

func NewClient(httpClient *http.Client, opts ClientOptions) *Client {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		opts:       opts,
	}
}

// NewClientFromConfig wires the HTTP settings of a source definition.
func NewClientFromConfig(httpClient *http.Client, cfg *Config, userAgent string) *Client {
	return NewClient(httpClient, ClientOptions{
		UserAgent:         userAgent,
		Timeout:           cfg.Settings.GetTimeout(),
		MaxRetries:        cfg.Settings.MaxRetries,
		RequestsPerSecond: cfg.Settings.RequestsPerSecond,
	})
}

func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var data []byte

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		body, err := c.fetch(ctx, url)
		if err != nil {
			var permanent *backoff.PermanentError
			switch {
			case errors.As(err, &permanent):
				return err
			case ctx.Err() != nil || !retryable(err):
				return backoff.Permanent(err)
			}
			return err
		}

		data = body
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries)), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, delay time.Duration) {
		slog.Warn("Request failed, retrying", "url", url, "delay", delay.String(), "error", err)
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

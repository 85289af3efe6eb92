package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"tokenomics-indexer/internal/metrics"
)

// ErrShape marks a response that arrived but lacks the expected fields.
// Shape failures are returned immediately without retry.
var ErrShape = errors.New("unexpected response shape")

// RetryOptions bound the retry loop of a single request.
type RetryOptions struct {
	MaxRetries        int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	AttemptTimeout    time.Duration
}

// DefaultRetryOptions returns 3 attempts, 1s base delay doubling, 10s per attempt.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:        3,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2,
		AttemptTimeout:    10 * time.Second,
	}
}

// ClientOptions parameterise the HTTP client used by every source.
type ClientOptions struct {
	Retry     RetryOptions
	UserAgent string
}

// Client performs GET requests with bounded retries and exponential backoff.
type Client struct {
	http   *resty.Client
	opts   RetryOptions
	logger zerolog.Logger
}

// NewClient builds a retrying client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	retry := opts.Retry
	defaults := DefaultRetryOptions()
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = defaults.MaxRetries
	}
	if retry.BackoffMultiplier < 1 {
		retry.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if retry.AttemptTimeout <= 0 {
		retry.AttemptTimeout = defaults.AttemptTimeout
	}

	httpClient := resty.New().SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		httpClient.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{
		http:   httpClient,
		opts:   retry,
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

// BackoffDelay returns the wait after the given failed attempt (1-based):
// RetryDelay × BackoffMultiplier^(attempt-1).
func BackoffDelay(opts RetryOptions, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(opts.RetryDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt-1)))
}

// Retry runs fn up to MaxRetries times. Each attempt gets its own timeout
// derived from ctx; cancelling it aborts only that attempt.
func (c *Client) Retry(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", source, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		lastErr = fn(attemptCtx)
		cancel()

		if lastErr == nil {
			metrics.FetchAttemptsTotal.WithLabelValues(source, "success").Inc()
			if attempt > 1 {
				c.logger.Info().Str("source", source).Int("attempts", attempt).Msg("fetch succeeded after retries")
			}
			return nil
		}

		if errors.Is(lastErr, ErrShape) {
			metrics.FetchAttemptsTotal.WithLabelValues(source, "shape").Inc()
			c.logger.Error().Err(lastErr).Str("source", source).Msg("response shape rejected")
			return lastErr
		}

		metrics.FetchAttemptsTotal.WithLabelValues(source, "error").Inc()
		if attempt == c.opts.MaxRetries {
			c.logger.Error().Err(lastErr).Str("source", source).Int("attempts", attempt).Msg("fetch attempts exhausted")
			break
		}

		delay := BackoffDelay(c.opts, attempt)
		c.logger.Warn().
			Err(lastErr).
			Str("source", source).
			Int("attempt", attempt).
			Int("max_retries", c.opts.MaxRetries).
			Dur("retry_in", delay).
			Msg("fetch failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s cancelled: %w", source, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", source, c.opts.MaxRetries, lastErr)
}

// Fetch GETs url with retries and decodes the body with parse. A parse error
// is treated as a shape failure.
func Fetch[T any](ctx context.Context, c *Client, source, url string, parse func([]byte) (T, error)) (T, error) {
	var out T
	err := c.Retry(ctx, source, func(ctx context.Context) error {
		body, err := c.get(ctx, url)
		if err != nil {
			return err
		}
		parsed, err := parse(body)
		if err != nil {
			if errors.Is(err, ErrShape) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrShape, err)
		}
		out = parsed
		return nil
	})
	return out, err
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return resp.Body(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/observability"
	"github.com/kjstillabower/weather-analytics-service/internal/traffic"
)

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("circuit open")
	ErrRequestRejected  = errors.New("request rejected")
)

// Options configures one upstream: timeout per attempt, retry policy and breaker.
type Options struct {
	Timeout          time.Duration
	RetryAttempts    int // total attempts, including the first
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
	HTTPClient       *http.Client
	Logger           *zap.Logger
}

// DefaultOptions returns single-attempt options with the given timeout.
func DefaultOptions(timeout time.Duration) Options {
	return Options{
		Timeout:          timeout,
		RetryAttempts:    1,
		RetryBaseDelay:   200 * time.Millisecond,
		RetryMaxDelay:    2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// upstream performs GET requests against one external API and decodes JSON
// bodies. Every attempt is recorded in metrics and in the traffic tracker.
type upstream struct {
	name    string
	opts    Options
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func newUpstream(name string, opts Options) *upstream {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	threshold := uint32(opts.FailureThreshold)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// 4xx answers mean the upstream is healthy.
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logger.Warn("circuit breaker state change",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	observability.BreakerState.WithLabelValues(name).Set(0)

	return &upstream{
		name:    name,
		opts:    opts,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// getJSON issues GET rawURL?params and decodes the body into out, retrying
// 5xx and 429 answers with exponential backoff.
func (u *upstream) getJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			observability.UpstreamRetriesTotal.WithLabelValues(u.name).Inc()
		}
		_, err := u.breaker.Execute(func() (interface{}, error) {
			return nil, u.call(ctx, rawURL, params, out)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCircuitOpen, u.name))
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = u.opts.RetryBaseDelay
	bo.MaxInterval = u.opts.RetryMaxDelay
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(u.opts.RetryAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if attempt > 1 {
			return fmt.Errorf("%s: exhausted %d attempts: %w", u.name, attempt, err)
		}
		return fmt.Errorf("%s: %w", u.name, err)
	}
	return nil
}

// call performs a single attempt.
func (u *upstream) call(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	req, err := buildRequest(reqCtx, rawURL, params)
	if err != nil {
		u.observe("error", start)
		return fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		u.observe("error", start)
		traffic.RecordError(u.name)
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	u.observe(statusLabel(resp.StatusCode), start)

	if err := handleErrorResponse(resp); err != nil {
		if !isClientError(err) {
			traffic.RecordError(u.name)
		}
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		traffic.RecordError(u.name)
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		traffic.RecordError(u.name)
		return fmt.Errorf("parse response: %w", err)
	}
	traffic.RecordSuccess(u.name)
	return nil
}

func (u *upstream) observe(status string, start time.Time) {
	observability.UpstreamCallsTotal.WithLabelValues(u.name, status).Inc()
	observability.UpstreamDuration.WithLabelValues(u.name, status).Observe(time.Since(start).Seconds())
}

func buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: HTTP %d", ErrRequestRejected, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrLocationNotFound) || errors.Is(err, ErrRequestRejected)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	// An expired timeout is an ordinary failure: callers fall back instead of retrying.
	return errors.Is(err, ErrUpstreamFailure)
}

// correlationIDKey matches the key set by the HTTP correlation middleware.
const correlationIDKey = "correlation_id"

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value(correlationIDKey); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

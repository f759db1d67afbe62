package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an [HTTPDoer] with retry logic using exponential backoff and jitter.
//
// Every attempt first waits on the [Throttle] (when set) and reports its response back to it.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	throttle   *Throttle
	logger     *log.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetryClient creates a new RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
// maxRetries is the number of retry attempts after the initial request; negative values mean no retries.
func NewRetryClient(client HTTPDoer, maxRetries int, throttle *Throttle, logger *log.Logger) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
		throttle:   throttle,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// WithDelays overrides the backoff bounds.
func (rc *RetryClient) WithDelays(base, maxDelay time.Duration) *RetryClient {
	rc.baseDelay = base
	rc.maxDelay = maxDelay
	return rc
}

// Do executes the HTTP request with retry logic.
//
// It retries on retryable status codes (429, 500, 502, 503, 504) and transient network errors, but never on
// other client errors or context cancellation. POST is not idempotent, so it is retried only on 429.
// A Retry-After header overrides the computed backoff.
// The final attempt's response is returned as-is so the caller can inspect the status code and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var (
		lastErr    error
		retryAfter time.Duration
	)

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("retry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.calculateDelay(attempt)
			if retryAfter > 0 {
				delay = min(retryAfter, rc.maxDelay)
			}
			if rc.logger != nil {
				rc.logger.Debug("retrying request", "attempt", attempt, "max", rc.maxRetries,
					"method", req.Method, "path", req.URL.Path, "wait", delay, "cause", lastErr)
			}
			if err := rc.sleep(ctx, delay); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		if err := rc.throttle.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			retryAfter = 0
			if ctx.Err() != nil || req.Method == http.MethodPost {
				return nil, err
			}
			continue
		}

		rc.throttle.Observe(resp.StatusCode, resp.Header)

		if !retryable(req.Method, resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		retryAfter, _ = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("retry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay returns the backoff duration for the given retry attempt.
// Uses exponential backoff with full jitter: random(0, min(maxDelay, baseDelay * 2^(attempt-1))).
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.maxDelay) {
		expDelay = float64(rc.maxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)

	floor := min(100*time.Millisecond, rc.baseDelay)
	if jittered < floor {
		jittered = floor
	}
	return jittered
}

// retryable reports whether a response with statusCode to a method request may be sent again.
func retryable(method string, statusCode int) bool {
	if method == http.MethodPost {
		return statusCode == http.StatusTooManyRequests
	}
	return isRetryableStatus(statusCode)
}

// isRetryableStatus reports whether the status indicates a transient failure worth retrying.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

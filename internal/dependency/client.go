package dependency

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"opsapi/internal/config"
	"opsapi/internal/logger"
	"opsapi/pkg/bulkhead"
	"opsapi/pkg/circuitbreaker"
	"opsapi/pkg/logging"
	"opsapi/pkg/metrics"
	"opsapi/pkg/middleware"
	"opsapi/pkg/retry"
)

const stubPath = "/_stub/dependency"

// Client calls the external dependency behind two independent guards,
// composed bulkhead-outermost so a bulkhead rejection is never counted as a
// circuit breaker failure:
//
//	bulkhead -> circuit breaker -> retry loop with per-attempt timeout
//
// Every failure mode resolves to a fixed Result shape; callers never see a
// raw transport error.
type Client struct {
	httpClient *http.Client
	cb         *circuitbreaker.Wrapper
	bh         *bulkhead.Bulkhead
	baseURL    string
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
	logger     logger.Logger
}

func NewClient(cfg config.DependencyConfig, log logger.Logger) *Client {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	cbConfig := circuitbreaker.Config{
		Name:        "dependency",
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.CircuitBreaker.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.CircuitBreaker.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker transition",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cb:       circuitbreaker.NewWrapper(cbConfig),
		bh:       bulkhead.New(bulkhead.Config{Name: "dependency", MaxConcurrent: cfg.Bulkhead.MaxConcurrent}),
		baseURL:  cfg.BaseURL,
		timeout:  cfg.Timeout,
		attempts: attempts,
		backoff:  cfg.Backoff,
		logger:   log,
	}
}

// upstreamFailure carries the deterministic result of a failed upstream
// exchange through the circuit breaker, which only counts errors.
type upstreamFailure struct {
	result *Result
}

func (e *upstreamFailure) Error() string {
	return "upstream failure: status " + strconv.Itoa(e.result.StatusCode)
}

// Call resolves mode/delayMs against the dependency. An explicitly configured
// base URL wins; otherwise the caller-supplied one is used, which lets the API
// target itself when serving the local stub.
func (c *Client) Call(ctx context.Context, baseURL, mode string, delayMs *int) *Result {
	start := time.Now()
	if c.baseURL != "" {
		baseURL = c.baseURL
	}
	upstream := baseURL + stubPath

	if !c.bh.TryAcquire() {
		c.logger.WarnwCtx(ctx, "Bulkhead full, rejecting dependency call",
			"upstream", upstream,
			"max_concurrent", c.bh.MaxConcurrent(),
		)
		c.observe(start, "overloaded")
		return overloadedResult(upstream)
	}
	defer c.bh.Release()

	res, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return c.callWithRetry(ctx, baseURL, mode, delayMs)
	})
	c.cb.RecordRequest(err == nil)

	switch {
	case err == nil:
		result := res.(*Result)
		if result.StatusCode >= 400 {
			c.observe(start, "client_error")
		} else {
			c.observe(start, "ok")
		}
		return result

	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.WarnwCtx(ctx, "Circuit open, returning degraded fallback",
			"upstream", upstream,
		)
		c.observe(start, "degraded")
		return degradedResult(upstream)

	default:
		var failure *upstreamFailure
		if errors.As(err, &failure) {
			c.observe(start, "upstream_error")
			return failure.result
		}
		c.observe(start, "gateway_timeout")
		return gatewayTimeoutResult(upstream, c.timeout, c.attempts)
	}
}

// callWithRetry runs up to the configured number of attempts with a linear
// backoff between retryable failures. It returns a nil error only for
// responses that must not count against the circuit breaker (2xx and 4xx).
func (c *Client) callWithRetry(ctx context.Context, baseURL, mode string, delayMs *int) (interface{}, error) {
	upstream := baseURL + stubPath

	for attempt := 1; attempt <= c.attempts; attempt++ {
		start := time.Now()
		c.logger.InfowCtx(ctx, "Outbound attempt",
			"attempt", attempt,
			"max_attempts", c.attempts,
			"upstream", upstream,
			"mode", mode,
			"timeout", c.timeout,
		)

		result, err := c.doAttempt(ctx, baseURL, mode, delayMs)
		latency := time.Since(start)

		if err != nil {
			metrics.DependencyAttemptsTotal.WithLabelValues("transport_error").Inc()
			c.logger.InfowCtx(ctx, "Outbound attempt failed",
				"attempt", attempt,
				"upstream", upstream,
				"latency", latency,
				"error", err,
			)

			if ctx.Err() != nil {
				// Caller gave up; stop retrying.
				return nil, &upstreamFailure{result: gatewayTimeoutResult(upstream, c.timeout, attempt)}
			}
			if attempt < c.attempts {
				c.sleepBackoff(ctx, attempt)
				continue
			}
			return nil, &upstreamFailure{result: gatewayTimeoutResult(upstream, c.timeout, c.attempts)}
		}

		metrics.DependencyAttemptsTotal.WithLabelValues(strconv.Itoa(result.StatusCode)).Inc()
		c.logger.InfowCtx(ctx, "Outbound attempt done",
			"attempt", attempt,
			"upstream", upstream,
			"status", result.StatusCode,
			"latency", latency,
		)

		if result.StatusCode >= 500 {
			if attempt < c.attempts {
				c.sleepBackoff(ctx, attempt)
				continue
			}
			// Out of attempts: surface the upstream body, but as a breaker
			// failure.
			return nil, &upstreamFailure{result: result}
		}

		// 2xx and 4xx are terminal. A 4xx reflects the request, not
		// dependency health, so it is not an error here.
		return result, nil
	}

	return nil, &upstreamFailure{result: gatewayTimeoutResult(upstream, c.timeout, c.attempts)}
}

func (c *Client) doAttempt(ctx context.Context, baseURL, mode string, delayMs *int) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(baseURL + stubPath)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("mode", mode)
	if delayMs != nil {
		q.Set("delayMs", strconv.Itoa(*delayMs))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if correlationID := logging.GetCorrelationID(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationIDHeader, correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{}
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &body); jsonErr != nil {
			body = map[string]interface{}{"raw": string(raw)}
		}
	}

	return &Result{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) {
	delay := retry.LinearBackoffDuration(attempt, c.backoff)
	if delay <= 0 {
		return
	}
	c.logger.InfowCtx(ctx, "Outbound retry scheduled",
		"next_attempt", attempt+1,
		"delay", delay,
	)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (c *Client) observe(start time.Time, outcome string) {
	metrics.DependencyCallsTotal.WithLabelValues(outcome).Inc()
	metrics.DependencyCallDuration.WithLabelValues(outcome).Observe(float64(time.Since(start).Milliseconds()))
}

// BreakerState exposes the breaker state for health and tests.
func (c *Client) BreakerState() gobreaker.State {
	return c.cb.State()
}

// InFlight exposes the number of bulkhead permits currently held.
func (c *Client) InFlight() int64 {
	return c.bh.InFlight()
}

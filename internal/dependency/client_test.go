package dependency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsapi/internal/config"
	"opsapi/internal/logger"
	"opsapi/pkg/logging"
)

func testConfig() config.DependencyConfig {
	return config.DependencyConfig{
		Timeout:     200 * time.Millisecond,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Bulkhead:    config.BulkheadConfig{MaxConcurrent: 5},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      time.Minute,
			FailureRatio: 0.5,
			MinRequests:  100, // effectively never trips
		},
	}
}

func TestCall_SucceedsFirstAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_stub/dependency", r.URL.Path)
		assert.Equal(t, "ok", r.URL.Query().Get("mode"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stub":"dependency","mode":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NopLogger())
	result := client.Call(context.Background(), server.URL, "ok", nil)

	require.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "dependency", result.Body["stub"])
	assert.False(t, result.Degraded())
}

func TestCall_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"SERVICE_UNAVAILABLE"}`))
			return
		}
		w.Write([]byte(`{"stub":"dependency","mode":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NopLogger())
	result := client.Call(context.Background(), server.URL, "ok", nil)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCall_ExhaustedServerErrorsSurfaceLastBody(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"SERVICE_UNAVAILABLE"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NopLogger())
	result := client.Call(context.Background(), server.URL, "fail", nil)

	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", result.Body["error"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCall_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"VALIDATION_ERROR"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NopLogger())
	result := client.Call(context.Background(), server.URL, "bogus", nil)

	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	// A 4xx reflects the request, not dependency health.
	assert.Equal(t, gobreaker.StateClosed, client.BreakerState())
}

func TestCall_TimeoutProducesGatewayTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Timeout = 30 * time.Millisecond
	cfg.MaxAttempts = 2

	client := NewClient(cfg, logger.NopLogger())
	result := client.Call(context.Background(), server.URL, "slow", nil)

	assert.Equal(t, http.StatusGatewayTimeout, result.StatusCode)
	assert.Equal(t, "GATEWAY_TIMEOUT", result.Body["error"])
}

func TestCall_OpenCircuitReturnsDegradedFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.CircuitBreaker.MinRequests = 2
	cfg.CircuitBreaker.FailureRatio = 0.5

	client := NewClient(cfg, logger.NopLogger())

	// Trip the breaker with consecutive upstream failures.
	for i := 0; i < 3; i++ {
		client.Call(context.Background(), server.URL, "fail", nil)
	}
	require.Equal(t, gobreaker.StateOpen, client.BreakerState())

	result := client.Call(context.Background(), server.URL, "ok", nil)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.True(t, result.Degraded())
	assert.Equal(t, "circuit_open", result.Body["reason"])
}

func TestCall_BreakerRecoversAfterCoolDown(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"stub":"dependency","mode":"ok"}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.CircuitBreaker.MinRequests = 2
	cfg.CircuitBreaker.FailureRatio = 0.5
	cfg.CircuitBreaker.Timeout = 100 * time.Millisecond

	client := NewClient(cfg, logger.NopLogger())

	for i := 0; i < 3; i++ {
		client.Call(context.Background(), server.URL, "fail", nil)
	}
	require.Equal(t, gobreaker.StateOpen, client.BreakerState())

	// While open the fallback answers without reaching upstream.
	degraded := client.Call(context.Background(), server.URL, "ok", nil)
	require.True(t, degraded.Degraded())

	healthy.Store(true)
	time.Sleep(150 * time.Millisecond)

	// Past the cool-down one trial call goes through and re-closes the breaker.
	result := client.Call(context.Background(), server.URL, "ok", nil)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.False(t, result.Degraded())
	assert.Equal(t, gobreaker.StateClosed, client.BreakerState())
}

func TestCall_BulkheadFullReturnsOverloaded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"stub":"dependency","mode":"ok"}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Timeout = 5 * time.Second
	cfg.Bulkhead.MaxConcurrent = 1

	client := NewClient(cfg, logger.NopLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.Call(context.Background(), server.URL, "ok", nil)
	}()

	// Wait until the first call holds the only permit.
	require.Eventually(t, func() bool { return client.InFlight() == 1 }, time.Second, 5*time.Millisecond)

	result := client.Call(context.Background(), server.URL, "ok", nil)
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.Equal(t, "BULKHEAD_FULL", result.Body["error"])

	close(release)
	wg.Wait()
}

func TestCall_PropagatesCorrelationHeader(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Correlation-Id")
		w.Write([]byte(`{"stub":"dependency"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NopLogger())
	ctx := logging.WithCorrelationID(context.Background(), "corr-42")
	client.Call(ctx, server.URL, "ok", nil)

	assert.Equal(t, "corr-42", gotHeader)
}

func TestCall_ForwardsDelayMs(t *testing.T) {
	var gotDelay string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDelay = r.URL.Query().Get("delayMs")
		w.Write([]byte(`{"stub":"dependency"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NopLogger())
	delay := 250
	client.Call(context.Background(), server.URL, "slow", &delay)

	assert.Equal(t, "250", gotDelay)
}

func TestCall_ConfiguredBaseURLWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stub":"dependency"}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.BaseURL = server.URL

	client := NewClient(cfg, logger.NopLogger())
	result := client.Call(context.Background(), "http://localhost:1", "ok", nil)

	assert.Equal(t, http.StatusOK, result.StatusCode)
}

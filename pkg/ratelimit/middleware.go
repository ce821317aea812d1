package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"opsapi/pkg/metrics"
)

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// store holds one token bucket per client IP. Buckets idle longer than MaxAge
// are dropped by a background sweep so the map does not grow unbounded.
type store struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	cfg     RateLimitConfig
}

func newStore(cfg RateLimitConfig) *store {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	s := &store{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
	}
	go s.sweep()
	return s
}

func (s *store) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[ip]
	if !ok {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst),
		}
		s.clients[ip] = client
	}
	client.lastSeen = time.Now()
	return client.limiter
}

func (s *store) sweep() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-s.cfg.MaxAge)
		s.mu.Lock()
		for ip, client := range s.clients {
			if client.lastSeen.Before(cutoff) {
				delete(s.clients, ip)
			}
		}
		s.mu.Unlock()
	}
}

func RateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	limiters := newStore(cfg)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		limiter := limiters.get(clientIP)

		if !limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Limit", strconv.Itoa(int(cfg.RPS)))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		c.Header("X-RateLimit-Limit", strconv.Itoa(int(cfg.RPS)))
		remaining := limiter.Burst() - int(limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

package config

import (
	"fmt"
	"strings"
)

// ValidateStatic checks configuration invariants that do not depend on the
// environment being reachable.
func ValidateStatic(cfg *Config) error {
	var problems []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be in [0, 65535], got %d", cfg.Server.Port))
	}

	if cfg.Broker.Type != "" && cfg.Broker.Type != "kafka" {
		problems = append(problems, fmt.Sprintf("broker.type must be 'kafka', got %q", cfg.Broker.Type))
	}

	if cfg.Broker.Kafka.EventsTopic == "" {
		problems = append(problems, "broker.kafka.events_topic must not be empty")
	}

	if cfg.Outbox.PollInterval <= 0 {
		problems = append(problems, "outbox.poll_interval must be positive")
	}
	if cfg.Outbox.BatchSize <= 0 {
		problems = append(problems, "outbox.batch_size must be positive")
	}

	if cfg.Dependency.Timeout <= 0 {
		problems = append(problems, "dependency.timeout must be positive")
	}
	if cfg.Dependency.MaxAttempts < 1 {
		problems = append(problems, "dependency.max_attempts must be at least 1")
	}
	if cfg.Dependency.Backoff < 0 {
		problems = append(problems, "dependency.backoff must not be negative")
	}
	if cfg.Dependency.Bulkhead.MaxConcurrent <= 0 {
		problems = append(problems, "dependency.bulkhead.max_concurrent must be positive")
	}
	if ratio := cfg.Dependency.CircuitBreaker.FailureRatio; ratio <= 0 || ratio > 1 {
		problems = append(problems, fmt.Sprintf("dependency.circuit_breaker.failure_ratio must be in (0, 1], got %v", ratio))
	}

	if cfg.API.RateLimit.Enabled {
		if cfg.API.RateLimit.RPS <= 0 {
			problems = append(problems, "api.rate_limit.rps must be positive when rate limiting is enabled")
		}
		if cfg.API.RateLimit.Burst <= 0 {
			problems = append(problems, "api.rate_limit.burst must be positive when rate limiting is enabled")
		}
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level must be one of debug|info|warn|error, got %q", cfg.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

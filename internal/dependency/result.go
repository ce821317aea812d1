package dependency

import (
	"strconv"
	"time"
)

// Result is the deterministic shape every dependency call resolves to. The
// client never surfaces raw transport errors to its callers; each failure
// mode maps onto one of these fixed bodies.
type Result struct {
	StatusCode int
	Body       map[string]interface{}
}

// Degraded reports whether this result is the circuit-open fallback.
func (r *Result) Degraded() bool {
	degraded, _ := r.Body["degraded"].(bool)
	return degraded
}

func degradedResult(upstream string) *Result {
	return &Result{
		StatusCode: 200,
		Body: map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339Nano),
			"degraded":  true,
			"stub":      "dependency",
			"mode":      "fallback",
			"reason":    "circuit_open",
			"message":   "Dependency is temporarily unavailable (circuit open). Returning fallback.",
			"upstream":  upstream,
		},
	}
}

func overloadedResult(upstream string) *Result {
	return &Result{
		StatusCode: 429,
		Body: map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339Nano),
			"status":    429,
			"error":     "BULKHEAD_FULL",
			"message":   "Too many concurrent dependency calls. Please retry.",
			"upstream":  upstream,
		},
	}
}

func gatewayTimeoutResult(upstream string, timeout time.Duration, attempts int) *Result {
	return &Result{
		StatusCode: 504,
		Body: map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339Nano),
			"status":    504,
			"error":     "GATEWAY_TIMEOUT",
			"message":   "Dependency call timed out after " + timeout.String() + " (attempts=" + strconv.Itoa(attempts) + ")",
			"upstream":  upstream,
		},
	}
}

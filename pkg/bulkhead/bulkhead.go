package bulkhead

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"opsapi/pkg/metrics"
)

// Config defines bulkhead configuration
type Config struct {
	Name          string
	MaxConcurrent int64
}

// DefaultConfig returns a default bulkhead configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		MaxConcurrent: 10,
	}
}

// Bulkhead caps the number of simultaneous in-flight calls. A call that would
// exceed the limit is rejected immediately, never queued.
type Bulkhead struct {
	name     string
	max      int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

func New(cfg Config) *Bulkhead {
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = DefaultConfig(cfg.Name).MaxConcurrent
	}
	return &Bulkhead{
		name: cfg.Name,
		max:  max,
		sem:  semaphore.NewWeighted(max),
	}
}

// TryAcquire takes a permit without blocking. Callers must Release the permit
// when the guarded call finishes.
func (b *Bulkhead) TryAcquire() bool {
	if !b.sem.TryAcquire(1) {
		metrics.BulkheadRejectionsTotal.WithLabelValues(b.name).Inc()
		return false
	}
	metrics.BulkheadInFlight.WithLabelValues(b.name).Set(float64(b.inFlight.Add(1)))
	return true
}

func (b *Bulkhead) Release() {
	b.sem.Release(1)
	metrics.BulkheadInFlight.WithLabelValues(b.name).Set(float64(b.inFlight.Add(-1)))
}

// Execute runs fn under a permit. It returns false without running fn when the
// bulkhead is saturated.
func (b *Bulkhead) Execute(fn func()) bool {
	if !b.TryAcquire() {
		return false
	}
	defer b.Release()
	fn()
	return true
}

// InFlight returns the number of permits currently held.
func (b *Bulkhead) InFlight() int64 {
	return b.inFlight.Load()
}

// MaxConcurrent returns the permit limit.
func (b *Bulkhead) MaxConcurrent() int64 {
	return b.max
}

// Name returns the name of the bulkhead.
func (b *Bulkhead) Name() string {
	return b.name
}

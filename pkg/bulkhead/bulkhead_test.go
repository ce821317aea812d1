package bulkhead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireRelease(t *testing.T) {
	b := New(Config{Name: "test", MaxConcurrent: 2})

	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	assert.Equal(t, int64(2), b.InFlight())

	// Saturated: third acquire is rejected, not queued.
	assert.False(t, b.TryAcquire())

	b.Release()
	assert.Equal(t, int64(1), b.InFlight())
	assert.True(t, b.TryAcquire())
}

func TestExecute(t *testing.T) {
	b := New(Config{Name: "test", MaxConcurrent: 1})

	ran := false
	ok := b.Execute(func() { ran = true })
	require.True(t, ok)
	assert.True(t, ran)
	assert.Equal(t, int64(0), b.InFlight())
}

func TestExecute_Saturated(t *testing.T) {
	b := New(Config{Name: "test", MaxConcurrent: 1})
	require.True(t, b.TryAcquire())

	ran := false
	ok := b.Execute(func() { ran = true })
	assert.False(t, ok)
	assert.False(t, ran)
}

func TestDefaultMaxConcurrent(t *testing.T) {
	b := New(Config{Name: "test"})
	assert.Equal(t, int64(10), b.MaxConcurrent())
}

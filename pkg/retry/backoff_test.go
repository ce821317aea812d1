package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearBackoffDuration(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, LinearBackoffDuration(1, base))
	assert.Equal(t, 200*time.Millisecond, LinearBackoffDuration(2, base))
	assert.Equal(t, 300*time.Millisecond, LinearBackoffDuration(3, base))
}

func TestLinearBackoffDuration_Degenerate(t *testing.T) {
	assert.Equal(t, time.Duration(0), LinearBackoffDuration(0, 100*time.Millisecond))
	assert.Equal(t, time.Duration(0), LinearBackoffDuration(-1, 100*time.Millisecond))
	assert.Equal(t, time.Duration(0), LinearBackoffDuration(3, 0))
	assert.Equal(t, time.Duration(0), LinearBackoffDuration(3, -time.Millisecond))
}

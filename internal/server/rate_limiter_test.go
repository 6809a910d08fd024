package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl := newRateLimiter(3, time.Second)
	require.NotNil(t, rl)

	now := time.Unix(1_700_000_000, 0)
	rl.lastFill = now
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "frame %d within burst", i)
	}
	assert.False(t, rl.allow(), "burst exhausted")

	now = now.Add(400 * time.Millisecond)
	assert.True(t, rl.allow(), "one token refilled")
	assert.False(t, rl.allow())

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow())
	}
	assert.False(t, rl.allow(), "refill is capped at burst")
}

func TestRateLimiterDisabled(t *testing.T) {
	assert.Nil(t, newRateLimiter(0, time.Second))
}

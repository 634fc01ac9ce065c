package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterBlocksWithinWindow(t *testing.T) {
	rl := NewRoomRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("u1"))
	require.True(t, rl.Allow("u1"))
	require.False(t, rl.Allow("u1"))

	// Other users have their own budget.
	require.True(t, rl.Allow("u2"))
}

func TestRateLimiterRecoversAfterWindow(t *testing.T) {
	rl := NewRoomRateLimiter(1, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("u1"))
	require.False(t, rl.Allow("u1"))

	now = now.Add(2 * time.Second)
	require.True(t, rl.Allow("u1"))
}

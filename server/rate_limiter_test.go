package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindows(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("alice", 2, time.Minute))
	require.True(t, rl.Allow("alice", 2, time.Minute))
	require.False(t, rl.Allow("alice", 2, time.Minute))
	require.True(t, rl.Allow("bob", 2, time.Minute), "keys are independent")

	now = now.Add(61 * time.Second)
	require.True(t, rl.Allow("alice", 2, time.Minute), "window resets")
}

func TestRateLimiterSweepsIdleKeys(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	rl.Allow("a", 5, time.Minute)
	rl.Allow("b", 5, time.Minute)
	require.Equal(t, 2, rl.Stats().Keys)

	now = now.Add(2 * time.Minute)
	rl.Allow("c", 5, time.Minute)
	require.Equal(t, 1, rl.Stats().Keys)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("any", 0, time.Minute))
	}
}

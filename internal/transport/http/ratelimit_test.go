package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newRateLimiter(2)
	r.now = func() time.Time { return now }

	require.True(t, r.allow())
	require.True(t, r.allow())
	require.False(t, r.allow())

	now = now.Add(59 * time.Second)
	require.False(t, r.allow())

	now = now.Add(time.Second)
	require.True(t, r.allow())
}

func TestRateLimiterDisabled(t *testing.T) {
	r := newRateLimiter(0)
	for range 100 {
		require.True(t, r.allow())
	}
}

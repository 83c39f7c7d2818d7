package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := NewTTLCache[string, []int64]()

	c.Set("online", []int64{1, 2}, 30*time.Millisecond)
	got, ok := c.Get("online")
	require.True(t, ok)
	require.Equal(t, []int64{1, 2}, got)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get("online")
	require.False(t, ok)
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("k", 1, 0)
	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("k", 7, time.Minute)
	c.Delete("k")
	_, ok := c.Get("k")
	require.False(t, ok)
}

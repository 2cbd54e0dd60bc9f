package hotcache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mde/internal/hotcache"
)

func TestSetGetInvalidate(t *testing.T) {
	c, err := hotcache.New(hotcache.Config{MaxCost: 1 << 20, NumCounters: 1000})
	require.NoError(t, err)
	defer c.Close()

	c.Set("widgets", "1", []byte("row1"))
	c.Wait()

	got, ok := c.Get("widgets", "1")
	require.True(t, ok)
	require.Equal(t, []byte("row1"), got)

	c.Invalidate("widgets", "1")
	c.Wait()
	_, ok = c.Get("widgets", "1")
	require.False(t, ok)
}

func TestTableNamespacingPreventsCollisions(t *testing.T) {
	c, err := hotcache.New(hotcache.DefaultConfig)
	require.NoError(t, err)
	defer c.Close()

	c.Set("widgets", "1", []byte("widget-row"))
	c.Set("gadgets", "1", []byte("gadget-row"))
	c.Wait()

	w, ok := c.Get("widgets", "1")
	require.True(t, ok)
	require.Equal(t, []byte("widget-row"), w)

	g, ok := c.Get("gadgets", "1")
	require.True(t, ok)
	require.Equal(t, []byte("gadget-row"), g)
}

func TestZeroConfigFallsBackToDefault(t *testing.T) {
	c, err := hotcache.New(hotcache.Config{})
	require.NoError(t, err)
	defer c.Close()
	c.Set("t", "k", []byte("v"))
	c.Wait()
	_, ok := c.Get("t", "k")
	require.True(t, ok)
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *hotcache.Cache
	require.NotPanics(t, func() {
		c.Set("t", "k", []byte("v"))
		_, ok := c.Get("t", "k")
		require.False(t, ok)
		c.Invalidate("t", "k")
		c.Wait()
		c.Close()
	})
}

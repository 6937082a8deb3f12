package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string](2, time.Hour)
	c.Set("a", "Housing")
	c.Set("b", "Salary")

	// touch a so b becomes the eviction candidate
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", "Dividends")
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "Housing", v)
}

func TestLRUExpiresEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[int](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(30 * time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUOverwriteAndDelete(t *testing.T) {
	c := NewLRU[int](2, time.Hour)
	c.Set("k", 1)
	c.Set("k", 2)
	assert.Equal(t, 1, c.Len())
	v, _ := c.Get("k")
	assert.Equal(t, 2, v)

	c.Delete("k")
	c.Delete("missing")
	assert.Equal(t, 0, c.Len())
}

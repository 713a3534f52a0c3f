package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set("cooldown", []byte("600"), 10*time.Minute))

	v, err := c.Get("cooldown")
	require.NoError(t, err)
	assert.Equal(t, "600", string(v))

	now = now.Add(10 * time.Minute)
	_, err = c.Get("cooldown")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()

	require.NoError(t, c.Set("k", []byte("v"), 0))
	_, err := c.Get("k")
	require.NoError(t, err)

	require.NoError(t, c.Delete("k"))
	_, err = c.Get("k")
	assert.ErrorIs(t, err, ErrMiss)
}

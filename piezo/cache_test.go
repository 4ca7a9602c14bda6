package piezo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandCache_SetGet(t *testing.T) {
	c := NewCommandCache([]string{"kp", "cl"})

	_, ok := c.Get("kp")
	assert.False(t, ok)

	c.Set("kp", []string{"10.0"})
	tokens, ok := c.Get("kp")
	require.True(t, ok)
	assert.Equal(t, []string{"10.0"}, tokens)
	assert.Equal(t, 1, c.Len())
}

func TestCommandCache_EmptyTokensAreAHit(t *testing.T) {
	c := NewCommandCache([]string{"kp"})

	c.Set("kp", []string{})
	tokens, ok := c.Get("kp")
	require.True(t, ok)
	assert.Empty(t, tokens)
}

func TestCommandCache_NonCacheableIsNoOp(t *testing.T) {
	c := NewCommandCache([]string{"kp"})

	c.Set("meas", []string{"1.5"})
	_, ok := c.Get("meas")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCommandCache_ChannelVariantsInheritCacheability(t *testing.T) {
	c := NewCommandCache([]string{"kp"})

	assert.True(t, c.IsCacheable("kp"))
	assert.True(t, c.IsCacheable("kp,2"))
	assert.False(t, c.IsCacheable("meas,2"))

	c.Set("kp,2", []string{"2", "10.0"})
	tokens, ok := c.Get("kp,2")
	require.True(t, ok)
	assert.Equal(t, []string{"2", "10.0"}, tokens)

	// Entries are keyed by the full addressed command.
	_, ok = c.Get("kp")
	assert.False(t, ok)
}

func TestCommandCache_Invalidate(t *testing.T) {
	c := NewCommandCache([]string{"kp", "cl"})

	c.Set("kp,0", []string{"1"})
	c.Set("kp,1", []string{"2"})
	c.Set("cl,0", []string{"3"})

	c.Invalidate("kp,0")
	_, ok := c.Get("kp,0")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.InvalidatePrefix("kp")
	_, ok = c.Get("kp,1")
	assert.False(t, ok)
	_, ok = c.Get("cl,0")
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCommandCache_DisableClears(t *testing.T) {
	c := NewCommandCache([]string{"kp"})
	c.Set("kp", []string{"10.0"})

	// Re-asserting the current state clears nothing.
	c.SetEnabled(true)
	assert.Equal(t, 1, c.Len())

	c.SetEnabled(false)
	assert.False(t, c.Enabled())
	assert.Equal(t, 0, c.Len())

	// Disabled cache neither stores nor serves.
	c.Set("kp", []string{"11.0"})
	_, ok := c.Get("kp")
	assert.False(t, ok)

	// Re-enabling starts empty.
	c.SetEnabled(true)
	_, ok = c.Get("kp")
	assert.False(t, ok)

	c.Set("kp", []string{"12.0"})
	tokens, ok := c.Get("kp")
	require.True(t, ok)
	assert.Equal(t, []string{"12.0"}, tokens)
}

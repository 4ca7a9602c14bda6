package piezo

import (
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// CommandCache memoizes the last-known response tokens of cacheable commands.
//
// A round trip over the physical link costs tens of milliseconds and many
// parameters change rarely, so serving the last-known value avoids redundant
// polling. This is safe only under a single-writer assumption: no other
// process may mutate the device concurrently. The cache does not and cannot
// enforce that assumption; disable caching when it does not hold.
type CommandCache struct {
	enabled   atomic.Bool
	entries   *xsync.MapOf[string, []string]
	cacheable map[string]struct{}
}

// NewCommandCache creates an enabled cache that accepts entries for the
// given cacheable commands.
func NewCommandCache(cacheableCommands []string) *CommandCache {
	c := &CommandCache{
		entries:   xsync.NewMapOf[string, []string](),
		cacheable: make(map[string]struct{}, len(cacheableCommands)),
	}
	for _, cmd := range cacheableCommands {
		c.cacheable[cmd] = struct{}{}
	}
	c.enabled.Store(true)

	return c
}

// IsCacheable reports whether cmd may be cached: either the full command
// matches a cacheable entry, or the portion before the first parameter
// separator does (so channel-addressed variants like "kp,2" inherit the
// cacheability of "kp").
func (c *CommandCache) IsCacheable(cmd string) bool {
	if _, ok := c.cacheable[cmd]; ok {
		return true
	}

	base, _, _ := strings.Cut(cmd, ",")
	_, ok := c.cacheable[base]

	return ok
}

// Get returns the cached tokens for cmd. The second result distinguishes a
// cache miss from a cached empty token sequence.
func (c *CommandCache) Get(cmd string) ([]string, bool) {
	if !c.enabled.Load() {
		return nil, false
	}

	return c.entries.Load(cmd)
}

// Set stores tokens for cmd if caching is enabled and cmd is cacheable;
// otherwise it silently does nothing.
func (c *CommandCache) Set(cmd string, tokens []string) {
	if !c.enabled.Load() || !c.IsCacheable(cmd) {
		return
	}

	c.entries.Store(cmd, tokens)
}

// Invalidate removes the entry for cmd, if present.
func (c *CommandCache) Invalidate(cmd string) {
	c.entries.Delete(cmd)
}

// InvalidatePrefix removes every entry whose command starts with prefix.
// Useful when one write is known to affect other commands' cached values.
func (c *CommandCache) InvalidatePrefix(prefix string) {
	c.entries.Range(func(cmd string, _ []string) bool {
		if strings.HasPrefix(cmd, prefix) {
			c.entries.Delete(cmd)
		}

		return true
	})
}

// Clear removes all entries.
func (c *CommandCache) Clear() {
	c.entries.Clear()
}

// Enabled reports whether caching is enabled.
func (c *CommandCache) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled enables or disables caching. Disabling clears the cache
// immediately and completely; re-enabling therefore starts from an empty
// cache. Setting the flag to its current value changes nothing.
func (c *CommandCache) SetEnabled(enabled bool) {
	prev := c.enabled.Swap(enabled)
	if prev && !enabled {
		c.Clear()
	}
}

// Len returns the number of cached entries.
func (c *CommandCache) Len() int {
	return c.entries.Size()
}

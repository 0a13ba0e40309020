package discover

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// ExclusionSource loads the part numbers that never count toward overlap,
// such as generic stickers or minifig accessories, with a reason each.
type ExclusionSource interface {
	ExcludedParts(ctx context.Context) (map[string]string, error)
}

// ExclusionCache keeps the excluded part list in memory and reloads it once
// it is older than TTL. The caller passes the current time explicitly.
type ExclusionCache struct {
	src ExclusionSource
	ttl time.Duration

	mu       sync.RWMutex
	parts    map[string]string
	loadedAt time.Time
}

// NewExclusionCache returns an empty cache that loads on first refresh.
func NewExclusionCache(src ExclusionSource, ttl time.Duration) *ExclusionCache {
	return &ExclusionCache{src: src, ttl: ttl, parts: map[string]string{}}
}

// Stale reports whether the cache needs reloading at now. A cache that was
// never loaded is always stale.
func (c *ExclusionCache) Stale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale(now)
}

func (c *ExclusionCache) stale(now time.Time) bool {
	return c.loadedAt.IsZero() || now.Sub(c.loadedAt) >= c.ttl
}

// RefreshIfStale reloads from the source when stale and reports whether it
// did. On error the previous contents are kept.
func (c *ExclusionCache) RefreshIfStale(ctx context.Context, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stale(now) {
		return false, nil
	}
	parts, err := c.src.ExcludedParts(ctx)
	if err != nil {
		return false, fmt.Errorf("load excluded parts: %w", err)
	}
	if parts == nil {
		parts = map[string]string{}
	}
	c.parts = parts
	c.loadedAt = now
	return true, nil
}

// Invalidate forces the next RefreshIfStale to reload.
func (c *ExclusionCache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// LoadedAt returns when the cache was last loaded.
func (c *ExclusionCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Excluded reports whether partNum is excluded.
func (c *ExclusionCache) Excluded(partNum string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.parts[partNum]
	return ok
}

// Parts returns the excluded part numbers, sorted.
func (c *ExclusionCache) Parts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.parts))
	for p := range c.parts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Filter returns pairs without excluded part numbers.
func (c *ExclusionCache) Filter(pairs []partbin.Key) []partbin.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.parts) == 0 {
		return pairs
	}
	out := make([]partbin.Key, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := c.parts[p.PartNum]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

package bom

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// Interface is anything that resolves set identifiers into BOMs.
type Interface interface {
	Resolve(ctx context.Context, setID string) (*BOM, error)
}

var (
	_ Interface = (*Resolver)(nil)
	_ Interface = (*CachedResolver)(nil)
)

// CachedResolver memoises resolved BOMs for a bounded time. Callers get a
// private copy of the cached BOM, so mutating it never poisons the cache.
type CachedResolver struct {
	next  Interface
	cache *expirable.LRU[string, *BOM]
}

// NewCachedResolver wraps next with an LRU of size entries expiring after
// ttl. A non-positive size or ttl returns next unchanged.
func NewCachedResolver(next Interface, size int, ttl time.Duration) Interface {
	if size <= 0 || ttl <= 0 {
		return next
	}
	return &CachedResolver{
		next:  next,
		cache: expirable.NewLRU[string, *BOM](size, nil, ttl),
	}
}

// Resolve implements Interface.
func (c *CachedResolver) Resolve(ctx context.Context, setID string) (*BOM, error) {
	setNum := NormalizeSetNum(setID)
	if b, ok := c.cache.Get(setNum); ok {
		return b.clone(), nil
	}
	b, err := c.next.Resolve(ctx, setNum)
	if err != nil {
		return nil, err
	}
	c.cache.Add(setNum, b.clone())
	return b, nil
}

// Purge drops every cached BOM.
func (c *CachedResolver) Purge() {
	c.cache.Purge()
}

func (b *BOM) clone() *BOM {
	c := &BOM{SetNum: b.SetNum, Tier: b.Tier, Bin: b.Bin.Clone(), Hints: make(map[partbin.Key]Hint, len(b.Hints))}
	for k, h := range b.Hints {
		c.Hints[k] = h
	}
	return c
}

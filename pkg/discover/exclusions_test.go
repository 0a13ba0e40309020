package discover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

type countingSource struct {
	parts map[string]string
	err   error
	calls int
}

func (c *countingSource) ExcludedParts(context.Context) (map[string]string, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.parts, nil
}

func TestExclusionCacheRefreshIfStale(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{parts: map[string]string{"x": "sticker"}}
	c := NewExclusionCache(src, 5*time.Minute)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, c.Stale(t0))
	did, err := c.RefreshIfStale(ctx, t0)
	require.NoError(t, err)
	assert.True(t, did)
	assert.True(t, c.Excluded("x"))
	assert.Equal(t, t0, c.LoadedAt())

	did, err = c.RefreshIfStale(ctx, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.False(t, did)
	assert.Equal(t, 1, src.calls)

	src.parts = map[string]string{"y": ""}
	did, err = c.RefreshIfStale(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, []string{"y"}, c.Parts())
}

func TestExclusionCacheKeepsContentsOnError(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{parts: map[string]string{"x": ""}}
	c := NewExclusionCache(src, time.Second)
	t0 := time.Unix(1000, 0)
	_, err := c.RefreshIfStale(ctx, t0)
	require.NoError(t, err)

	src.err = errors.New("db gone")
	_, err = c.RefreshIfStale(ctx, t0.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, c.Excluded("x"))
}

func TestExclusionCacheInvalidateAndFilter(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{parts: map[string]string{"3001": ""}}
	c := NewExclusionCache(src, time.Hour)
	now := time.Now()
	_, err := c.RefreshIfStale(ctx, now)
	require.NoError(t, err)

	got := c.Filter([]partbin.Key{k("3001", 5), k("3002", 5)})
	assert.Equal(t, []partbin.Key{k("3002", 5)}, got)

	c.Invalidate()
	did, err := c.RefreshIfStale(ctx, now)
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, 2, src.calls)
}

package bom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

type fakeInstructions map[string][]Row

func (f fakeInstructions) InstructionRows(_ context.Context, setNum string) ([]Row, bool, error) {
	rows, ok := f[setNum]
	return rows, ok, nil
}

type fakeVersions struct {
	rows  map[string]map[int][]Row
	err   error
	calls int
}

func (f *fakeVersions) LatestVersion(_ context.Context, setNum string) (int, bool, error) {
	f.calls++
	if f.err != nil {
		return 0, false, f.err
	}
	versions, ok := f.rows[setNum]
	if !ok {
		return 0, false, nil
	}
	max := 0
	for v := range versions {
		if v > max {
			max = v
		}
	}
	return max, true, nil
}

func (f *fakeVersions) VersionRows(_ context.Context, setNum string, version int) ([]Row, error) {
	return f.rows[setNum][version], nil
}

type fakeSummary map[string][]Row

func (f fakeSummary) SummaryRows(_ context.Context, setNum string) ([]Row, bool, error) {
	rows, ok := f[setNum]
	return rows, ok, nil
}

func key(part string, color int) partbin.Key { return partbin.Key{PartNum: part, ColorID: color} }

func newResolver() (*Resolver, *fakeVersions) {
	versions := &fakeVersions{rows: map[string]map[int][]Row{
		"70618-1": {
			1: {{PartNum: "OLD", ColorID: 1, Quantity: 99}},
			2: {
				{PartNum: "3001", ColorID: 5, Quantity: 2},
				{PartNum: "3001", ColorID: 5, Quantity: 3},
				{PartNum: "3001", ColorID: 5, Quantity: 1, IsSpare: true},
				{PartNum: "3002", ColorID: 0, Quantity: 1},
			},
		},
		"10001-1": {1: {{PartNum: "X", ColorID: 1, Quantity: 1}}},
	}}
	return &Resolver{
		Instructions: fakeInstructions{
			"10001-1": {{PartNum: "INSTR", ColorID: 2, Quantity: 4}, {PartNum: "SP", ColorID: 2, Quantity: 1, IsSpare: true}},
		},
		InstructionsEnabled: true,
		Versions:            versions,
		Summary: fakeSummary{
			"10001-1": {{PartNum: "SUM", ColorID: 1, Quantity: 1}},
			"555-1":   {{PartNum: "S1", ColorID: 3, Quantity: 2}, {PartNum: "S1", ColorID: 3, Quantity: 2}},
		},
	}, versions
}

func TestNormalizeSetNum(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"70618", "70618-1"},
		{" 70618 ", "70618-1"},
		{"70618-2", "70618-2"},
		{"fig-000001", "fig-000001"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSetNum(tt.in))
		})
	}
}

func TestResolveLatestVersionSumsAndExcludesSpares(t *testing.T) {
	r, _ := newResolver()
	b, err := r.Resolve(context.Background(), "70618")
	require.NoError(t, err)

	assert.Equal(t, "70618-1", b.SetNum)
	assert.Equal(t, TierLatestVersion, b.Tier)
	assert.Equal(t, 5, b.Bin.Get(key("3001", 5)))
	assert.Equal(t, 1, b.Bin.Get(key("3002", 0)))
	assert.False(t, b.Bin.Has(key("OLD", 1)), "older inventory version must not leak in")
	assert.Equal(t, 2, b.Bin.Len())
}

func TestResolveInstructionTierWinsAndIsExclusive(t *testing.T) {
	r, _ := newResolver()
	b, err := r.Resolve(context.Background(), "10001-1")
	require.NoError(t, err)

	assert.Equal(t, TierInstructions, b.Tier)
	assert.Equal(t, 4, b.Bin.Get(key("INSTR", 2)))
	assert.False(t, b.Bin.Has(key("X", 1)))
	assert.False(t, b.Bin.Has(key("SUM", 1)))
	assert.False(t, b.Bin.Has(key("SP", 2)))
}

func TestResolveInstructionTierDisabled(t *testing.T) {
	r, _ := newResolver()
	r.InstructionsEnabled = false
	b, err := r.Resolve(context.Background(), "10001")
	require.NoError(t, err)

	assert.Equal(t, TierLatestVersion, b.Tier)
	assert.Equal(t, 1, b.Bin.Get(key("X", 1)))
}

func TestResolveSummaryFallback(t *testing.T) {
	r, _ := newResolver()
	b, err := r.Resolve(context.Background(), "555")
	require.NoError(t, err)

	assert.Equal(t, TierSummary, b.Tier)
	assert.Equal(t, 4, b.Bin.Get(key("S1", 3)))
}

func TestResolveUnknownAndBlankAreEmpty(t *testing.T) {
	r, versions := newResolver()
	for _, id := range []string{"99999", "", "  "} {
		b, err := r.Resolve(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, b.Found())
		assert.True(t, b.Bin.Empty())
	}
	assert.Equal(t, 1, versions.calls, "blank ids must not reach the catalog")
}

func TestResolvePropagatesSourceErrors(t *testing.T) {
	r, versions := newResolver()
	versions.err = errors.New("disk on fire")
	_, err := r.Resolve(context.Background(), "70618")
	require.Error(t, err)
	assert.ErrorIs(t, err, versions.err)
}

func TestChainUsesFirstHit(t *testing.T) {
	c := Chain(nil, fakeInstructions{}, fakeInstructions{"1-1": {{PartNum: "A", ColorID: 1, Quantity: 1}}})
	rows, ok, err := c.InstructionRows(context.Background(), "1-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, rows, 1)
}

func TestCachedResolverReturnsCopies(t *testing.T) {
	r, versions := newResolver()
	c := NewCachedResolver(r, 8, time.Minute)

	first, err := c.Resolve(context.Background(), "70618")
	require.NoError(t, err)
	first.Bin.Add(key("3001", 5), 100)

	second, err := c.Resolve(context.Background(), "70618-1")
	require.NoError(t, err)
	assert.Equal(t, 5, second.Bin.Get(key("3001", 5)))
	assert.Equal(t, 1, versions.calls)
}

func TestCachedResolverDisabled(t *testing.T) {
	r, _ := newResolver()
	assert.Same(t, Interface(r), NewCachedResolver(r, 0, time.Minute))
}

func TestBOMRowsCarryHints(t *testing.T) {
	b := Build("1-1", TierSummary, []Row{
		{PartNum: "3001", ColorID: 5, Quantity: 1, Name: "Brick 2 x 4"},
		{PartNum: "3001", ColorID: 5, Quantity: 1, ImageURL: "https://img/3001.png"},
	})
	rows := b.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Quantity)
	assert.Equal(t, "Brick 2 x 4", rows[0].Name)
	assert.Equal(t, "https://img/3001.png", rows[0].ImageURL)
}

func TestBuildTrimsPartNumbers(t *testing.T) {
	b := Build("1-1", TierSummary, []Row{
		{PartNum: " 3001", ColorID: 5, Quantity: 1, Name: "Brick 2 x 4"},
		{PartNum: "3001", ColorID: 5, Quantity: 2},
		{PartNum: "   ", ColorID: 5, Quantity: 9},
	})
	assert.Equal(t, 1, b.Bin.Len())
	assert.Equal(t, 3, b.Bin.Get(partbin.Key{PartNum: "3001", ColorID: 5}))
	rows := b.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "3001", rows[0].PartNum)
	assert.Equal(t, "Brick 2 x 4", rows[0].Name)
}

package coverage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

func bin(rows ...partbin.Row) *partbin.Bin { return partbin.FromRows(rows) }

func TestComputeSingleShortage(t *testing.T) {
	need := bin(partbin.Row{PartNum: "3001", ColorID: 5, Quantity: 10})
	have := bin(partbin.Row{PartNum: "3001", ColorID: 5, Quantity: 4})

	r := Compute(have, need)
	assert.Equal(t, 10, r.TotalNeeded)
	assert.Equal(t, 4, r.TotalHave)
	assert.Equal(t, 40.0, r.CoveragePct)
	assert.Equal(t, []Shortage{{PartNum: "3001", ColorID: 5, Needed: 10, Have: 4, Short: 6}}, r.Shortages)
	assert.False(t, r.Buildable())
	assert.Equal(t, 6, r.Missing())
}

func TestComputeZeroNeedIsZeroPercent(t *testing.T) {
	r := Compute(bin(partbin.Row{PartNum: "3001", ColorID: 5, Quantity: 4}), partbin.New())
	assert.Equal(t, 0, r.TotalNeeded)
	assert.Equal(t, 0, r.TotalHave)
	assert.Exactly(t, 0.0, r.CoveragePct)
	assert.Empty(t, r.Shortages)
	assert.False(t, r.Buildable())
}

func TestComputeShortageOrdering(t *testing.T) {
	need := bin(
		partbin.Row{PartNum: "B", ColorID: 2, Quantity: 3},
		partbin.Row{PartNum: "A", ColorID: 1, Quantity: 5},
	)
	have := bin(partbin.Row{PartNum: "A", ColorID: 1, Quantity: 2})

	r := Compute(have, need)
	require.Len(t, r.Shortages, 2)
	assert.Equal(t, Shortage{PartNum: "A", ColorID: 1, Needed: 5, Have: 2, Short: 3}, r.Shortages[0])
	assert.Equal(t, Shortage{PartNum: "B", ColorID: 2, Needed: 3, Have: 0, Short: 3}, r.Shortages[1])
}

func TestSortShortagesTieBreaks(t *testing.T) {
	s := []Shortage{
		{PartNum: "3001", ColorID: 7, Short: 1},
		{PartNum: "3001", ColorID: 1, Short: 1},
		{PartNum: "2000", ColorID: 9, Short: 1},
		{PartNum: "9999", ColorID: 0, Short: 8},
	}
	SortShortages(s)
	var got []string
	for _, x := range s {
		got = append(got, x.Key().String())
	}
	assert.Equal(t, []string{
		partbin.Key{PartNum: "9999", ColorID: 0}.String(),
		partbin.Key{PartNum: "2000", ColorID: 9}.String(),
		partbin.Key{PartNum: "3001", ColorID: 1}.String(),
		partbin.Key{PartNum: "3001", ColorID: 7}.String(),
	}, got)
}

func TestComputeCapsHaveAtNeeded(t *testing.T) {
	need := bin(
		partbin.Row{PartNum: "A", ColorID: 1, Quantity: 2},
		partbin.Row{PartNum: "B", ColorID: 1, Quantity: 2},
	)
	have := bin(
		partbin.Row{PartNum: "A", ColorID: 1, Quantity: 50},
		partbin.Row{PartNum: "B", ColorID: 0, Quantity: 50},
	)
	r := Compute(have, need)
	assert.Equal(t, 2, r.TotalHave, "color 0 never substitutes for a specific color")
	assert.Equal(t, 50.0, r.CoveragePct)
	assert.LessOrEqual(t, r.TotalHave, r.TotalNeeded)
}

func TestComputeFullCoverage(t *testing.T) {
	need := bin(partbin.Row{PartNum: "A", ColorID: 1, Quantity: 2})
	r := Compute(need.Clone(), need)
	assert.Equal(t, 100.0, r.CoveragePct)
	assert.True(t, r.Buildable())
	assert.Empty(t, r.Shortages)
}

func TestPercentRounding(t *testing.T) {
	tests := []struct {
		have, needed int
		want         float64
	}{
		{1, 3, 33.33},
		{2, 3, 66.67},
		{1, 8, 12.5},
		{199, 200, 99.5},
		{1999, 2000, 99.95},
		{19999, 20000, 99.99},
		{99999, 100000, 99.99},
		{20000, 20000, 100},
		{0, 7, 0},
		{3, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.have, tt.needed), "%d/%d", tt.have, tt.needed)
	}
}

func TestPercentNeverRoundsUpToHundred(t *testing.T) {
	// 99999/100000 = 99.999 would round to 100.00, but the set is still
	// short one part.
	need := bin(partbin.Row{PartNum: "A", ColorID: 1, Quantity: 100000})
	have := bin(partbin.Row{PartNum: "A", ColorID: 1, Quantity: 99999})
	r := Compute(have, need)
	assert.Less(t, r.CoveragePct, 100.0)
	assert.Equal(t, 99.99, r.CoveragePct)
	assert.False(t, r.Buildable())
}

func TestFullCoverageIffNoShortages(t *testing.T) {
	needs := []int{1, 3, 200, 2000, 20000, 100000, 1000000}
	for _, n := range needs {
		for _, h := range []int{0, 1, n / 2, n - 1, n, n + 1} {
			need := bin(partbin.Row{PartNum: "A", ColorID: 1, Quantity: n},
				partbin.Row{PartNum: "B", ColorID: 2, Quantity: 1})
			have := bin(partbin.Row{PartNum: "A", ColorID: 1, Quantity: h},
				partbin.Row{PartNum: "B", ColorID: 2, Quantity: 1})
			r := Compute(have, need)
			assert.Equal(t, len(r.Shortages) == 0, r.CoveragePct == 100.0, "have %d of %d: pct %v", h, n, r.CoveragePct)
			assert.Equal(t, r.Buildable(), r.CoveragePct == 100.0, "have %d of %d", h, n)
		}
	}
}

func TestRank(t *testing.T) {
	full := Report{TotalNeeded: 2, TotalHave: 2, CoveragePct: 100}
	reports := []SetReport{
		{SetNum: "c-1", Report: Report{TotalNeeded: 10, TotalHave: 5, CoveragePct: 50}},
		{SetNum: "b-1", Report: full},
		{SetNum: "d-1", Report: Report{TotalNeeded: 10, TotalHave: 9, CoveragePct: 90}},
		{SetNum: "a-1", Report: full},
		{SetNum: "e-1", MatchPairs: 3, Report: Report{TotalNeeded: 10, TotalHave: 5, CoveragePct: 50}},
		{SetNum: "z-1"},
	}
	Rank(reports)
	var order []string
	for _, r := range reports {
		order = append(order, r.SetNum)
	}
	assert.Equal(t, []string{"a-1", "b-1", "d-1", "e-1", "c-1", "z-1"}, order)
}

type catalog map[string][]bom.Row

func (c catalog) Resolve(_ context.Context, setID string) (*bom.BOM, error) {
	setNum := bom.NormalizeSetNum(setID)
	rows, ok := c[setNum]
	if !ok {
		return bom.Empty(setNum), nil
	}
	return bom.Build(setNum, bom.TierLatestVersion, rows), nil
}

type brokenCatalog struct{}

func (brokenCatalog) Resolve(context.Context, string) (*bom.BOM, error) {
	return nil, errors.New("disk on fire")
}

func TestBatch(t *testing.T) {
	boms := catalog{
		"10-1": {{PartNum: "A", ColorID: 1, Quantity: 2}},
		"20-1": {{PartNum: "A", ColorID: 1, Quantity: 2}, {PartNum: "B", ColorID: 1, Quantity: 2}},
	}
	have := bin(partbin.Row{PartNum: "A", ColorID: 1, Quantity: 2})

	out, err := Batch(context.Background(), boms, have, []string{"20", "", "10", "10-1", "99"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "10-1", out[0].SetNum)
	assert.True(t, out[0].Buildable())
	assert.Equal(t, bom.TierLatestVersion, out[0].Tier)
	assert.Equal(t, "20-1", out[1].SetNum)
	assert.Equal(t, 50.0, out[1].CoveragePct)
	assert.Equal(t, "99-1", out[2].SetNum)
	assert.Equal(t, bom.TierNone, out[2].Tier)
	assert.Exactly(t, 0.0, out[2].CoveragePct)
}

func TestBatchPropagatesErrors(t *testing.T) {
	_, err := Batch(context.Background(), brokenCatalog{}, partbin.New(), []string{"1"})
	assert.Error(t, err)
}

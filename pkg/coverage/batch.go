package coverage

import (
	"context"
	"fmt"
	"sort"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// SetReport is the coverage of one target set.
type SetReport struct {
	SetNum     string   `json:"set_num"`
	Tier       bom.Tier `json:"-"`
	MatchPairs int      `json:"match_pairs,omitempty"`
	Report
}

// Rank orders set reports buildable first, then by descending coverage.
// Remaining ties fall back to descending match pairs and then set number so
// the order is total.
func Rank(reports []SetReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if a.Buildable() != b.Buildable() {
			return a.Buildable()
		}
		if a.CoveragePct != b.CoveragePct {
			return a.CoveragePct > b.CoveragePct
		}
		if a.MatchPairs != b.MatchPairs {
			return a.MatchPairs > b.MatchPairs
		}
		return a.SetNum < b.SetNum
	})
}

// Batch resolves every set and computes its coverage against have. Blank
// identifiers are skipped and duplicate sets are reported once. The result
// is ranked with Rank.
func Batch(ctx context.Context, boms bom.Interface, have *partbin.Bin, setIDs []string) ([]SetReport, error) {
	seen := make(map[string]bool, len(setIDs))
	out := make([]SetReport, 0, len(setIDs))
	for _, id := range setIDs {
		setNum := bom.NormalizeSetNum(id)
		if setNum == "" || seen[setNum] {
			continue
		}
		seen[setNum] = true

		b, err := boms.Resolve(ctx, setNum)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", setNum, err)
		}
		out = append(out, SetReport{
			SetNum: setNum,
			Tier:   b.Tier,
			Report: Compute(have, b.Bin),
		})
	}
	Rank(out)
	return out, nil
}

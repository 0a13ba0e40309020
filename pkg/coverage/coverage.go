// Package coverage measures how much of a required PartBin an available
// PartBin can satisfy.
package coverage

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// Shortage is one required key the available bin cannot fully cover.
type Shortage struct {
	PartNum string `json:"part_num"`
	ColorID int    `json:"color_id"`
	Needed  int    `json:"needed"`
	Have    int    `json:"have"`
	Short   int    `json:"short"`
}

// Key returns the part/color key of the shortage.
func (s Shortage) Key() partbin.Key {
	return partbin.Key{PartNum: s.PartNum, ColorID: s.ColorID}
}

// Report is the result of one coverage computation. TotalHave counts each
// row at most up to its needed amount.
type Report struct {
	TotalNeeded int        `json:"total_needed"`
	TotalHave   int        `json:"total_have"`
	CoveragePct float64    `json:"coverage_pct"`
	Shortages   []Shortage `json:"shortages"`
}

// Buildable reports whether every required row is satisfied. A report with
// nothing required is not buildable: its coverage is 0.
func (r Report) Buildable() bool {
	return r.TotalNeeded > 0 && r.TotalHave == r.TotalNeeded
}

// Missing returns the total number of parts short.
func (r Report) Missing() int {
	return r.TotalNeeded - r.TotalHave
}

// Compute returns the coverage of need by have. Shortages are ordered by
// descending short, then part number, then color id.
func Compute(have, need *partbin.Bin) Report {
	var r Report
	need.Range(func(k partbin.Key, needed int) bool {
		use := have.Get(k)
		if use > needed {
			use = needed
		}
		r.TotalNeeded += needed
		r.TotalHave += use
		if use < needed {
			r.Shortages = append(r.Shortages, Shortage{
				PartNum: k.PartNum,
				ColorID: k.ColorID,
				Needed:  needed,
				Have:    use,
				Short:   needed - use,
			})
		}
		return true
	})
	r.CoveragePct = Percent(r.TotalHave, r.TotalNeeded)
	SortShortages(r.Shortages)
	return r
}

// maxShortPct is the highest percentage a report that is still short can
// show.
var maxShortPct = decimal.RequireFromString("99.99")

// Percent returns 100*have/needed rounded half away from zero to two
// places, or 0 when needed is zero. Only have >= needed yields 100.
func Percent(have, needed int) float64 {
	if needed <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(have)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(needed)), 8).
		Round(2)
	if have < needed && pct.GreaterThan(maxShortPct) {
		pct = maxShortPct
	}
	f, _ := pct.Float64()
	return f
}

// SortShortages orders shortages biggest gap first.
func SortShortages(s []Shortage) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Short != s[j].Short {
			return s[i].Short > s[j].Short
		}
		if s[i].PartNum != s[j].PartNum {
			return s[i].PartNum < s[j].PartNum
		}
		return s[i].ColorID < s[j].ColorID
	})
}

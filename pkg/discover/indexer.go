// Package discover maintains, per user, the shortlist of catalog sets that
// share at least one part/color pair with the user's inventory.
//
// The index is a pair-overlap prefilter. A candidate with many shared pairs
// is not necessarily buildable; run coverage on the shortlist for exact
// numbers.
package discover

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// Candidate is one shortlisted set.
type Candidate struct {
	SetNum     string `json:"set_num"`
	MatchPairs int    `json:"match_pairs"`
}

// State describes the freshness of a user's candidate list.
type State struct {
	// Version counts successful rebuilds since the inventory was last empty.
	Version int64
	// InventoryRev is bumped on every inventory replace.
	InventoryRev int64
	// IndexedRev is the InventoryRev the candidate list was built from.
	IndexedRev int64
}

// Stale reports whether the inventory changed after the last rebuild.
func (s State) Stale() bool {
	return s.IndexedRev < s.InventoryRev
}

// Store is the persistence contract of the indexer.
type Store interface {
	// InventoryPairs returns the distinct positive-quantity pairs of the
	// user's aggregated inventory and the inventory revision they belong to.
	InventoryPairs(ctx context.Context, userID string) ([]partbin.Key, int64, error)
	// CountSharedPairs counts, for every catalog set, how many of its
	// required pairs appear in pairs, keeping sets with at least minMatch.
	CountSharedPairs(ctx context.Context, pairs []partbin.Key, minMatch int) ([]Candidate, error)
	// ReplaceCandidates deletes the user's candidates, inserts cands,
	// records rev as indexed and increments the version, atomically. It
	// returns the new version.
	ReplaceCandidates(ctx context.Context, userID string, cands []Candidate, rev int64) (int64, error)
	// ClearCandidates deletes the user's candidates and resets the version
	// to zero.
	ClearCandidates(ctx context.Context, userID string, rev int64) error
	Candidates(ctx context.Context, userID string) ([]Candidate, error)
	IndexState(ctx context.Context, userID string) (State, error)
}

// Indexer rebuilds candidate lists.
type Indexer struct {
	Store Store
	// MinMatchPairs is the smallest overlap that keeps a set. Values below
	// one are treated as one.
	MinMatchPairs int
	// Exclusions, when set, removes excluded part numbers from the
	// inventory pairs before counting.
	Exclusions *ExclusionCache
}

// Result summarises one rebuild.
type Result struct {
	Version    int64
	Candidates int
	Pairs      int
}

func (ix *Indexer) minMatch() int {
	if ix.MinMatchPairs < 1 {
		return 1
	}
	return ix.MinMatchPairs
}

// Rebuild replaces the user's candidate list from the current inventory.
// An empty inventory clears the list and resets the version to zero.
// Excluded parts are dropped before counting but never make the inventory
// count as empty.
func (ix *Indexer) Rebuild(ctx context.Context, userID string) (Result, error) {
	userID = strings.TrimSpace(userID)
	pairs, rev, err := ix.Store.InventoryPairs(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load inventory pairs: %w", err)
	}

	if len(pairs) == 0 {
		if err := ix.Store.ClearCandidates(ctx, userID, rev); err != nil {
			return Result{}, fmt.Errorf("clear candidates: %w", err)
		}
		return Result{}, nil
	}

	if ix.Exclusions != nil {
		pairs = ix.Exclusions.Filter(pairs)
	}

	// A non-empty inventory whose pairs are all excluded still bumps the
	// version, with no candidates.
	var cands []Candidate
	if len(pairs) > 0 {
		cands, err = ix.Store.CountSharedPairs(ctx, pairs, ix.minMatch())
		if err != nil {
			return Result{}, fmt.Errorf("count shared pairs: %w", err)
		}
		SortCandidates(cands)
	}

	version, err := ix.Store.ReplaceCandidates(ctx, userID, cands, rev)
	if err != nil {
		return Result{}, fmt.Errorf("replace candidates: %w", err)
	}
	return Result{Version: version, Candidates: len(cands), Pairs: len(pairs)}, nil
}

// SortCandidates orders candidates by descending match pairs, then set
// number.
func SortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].MatchPairs != c[j].MatchPairs {
			return c[i].MatchPairs > c[j].MatchPairs
		}
		return c[i].SetNum < c[j].SetNum
	})
}

// Match counts shared pairs between pairs and each requirement bin in
// memory. Stores without an indexed join use it to implement
// CountSharedPairs.
func Match(pairs []partbin.Key, requirements map[string]*partbin.Bin, minMatch int) []Candidate {
	if minMatch < 1 {
		minMatch = 1
	}
	owned := make(map[partbin.Key]struct{}, len(pairs))
	for _, p := range pairs {
		owned[p] = struct{}{}
	}
	var out []Candidate
	for setNum, req := range requirements {
		n := 0
		req.Range(func(k partbin.Key, _ int) bool {
			if _, ok := owned[k]; ok {
				n++
			}
			return true
		})
		if n >= minMatch {
			out = append(out, Candidate{SetNum: setNum, MatchPairs: n})
		}
	}
	SortCandidates(out)
	return out
}

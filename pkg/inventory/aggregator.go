// Package inventory merges a user's raw owned-part records into the single
// PartBin of everything the user owns.
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// Sources are the raw inputs of one user's inventory.
type Sources struct {
	// Parts are manually entered quantity rows.
	Parts []partbin.Row
	// OwnedSets lists set identifiers, one entry per owned copy.
	OwnedSets []string
}

// Store loads raw sources and persists the aggregated result.
type Store interface {
	LoadSources(ctx context.Context, userID string) (Sources, error)
	// ReplaceInventory atomically replaces every aggregated row of the user.
	ReplaceInventory(ctx context.Context, userID string, inv *partbin.Bin) error
}

// Aggregator turns raw sources into a PartBin. It always re-aggregates from
// scratch: owned-set contributions are not reliably invertible because a
// set's BOM may change between being added and being removed.
type Aggregator struct {
	BOMs bom.Interface
}

// Aggregate sums all valid part rows and the full BOM of every owned-set
// occurrence. Rows with a blank part number or a non-positive quantity are
// dropped. The result depends only on the multiset of inputs.
func (a *Aggregator) Aggregate(ctx context.Context, src Sources) (*partbin.Bin, error) {
	inv := partbin.FromRows(src.Parts)

	copies := make(map[string]int)
	for _, id := range src.OwnedSets {
		setNum := bom.NormalizeSetNum(id)
		if setNum == "" {
			continue
		}
		copies[setNum]++
	}
	if len(copies) > 0 && a.BOMs == nil {
		return nil, fmt.Errorf("aggregate owned sets: no BOM resolver configured")
	}

	for setNum, n := range copies {
		b, err := a.BOMs.Resolve(ctx, setNum)
		if err != nil {
			return nil, fmt.Errorf("aggregate owned set %s: %w", setNum, err)
		}
		contrib := b.Bin.Clone()
		contrib.Scale(n)
		inv.AddBin(contrib)
	}
	return inv, nil
}

// Refresh loads the user's sources, aggregates them and stores the result.
func (a *Aggregator) Refresh(ctx context.Context, store Store, userID string) (*partbin.Bin, error) {
	userID = strings.TrimSpace(userID)
	src, err := store.LoadSources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load inventory sources: %w", err)
	}
	inv, err := a.Aggregate(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := store.ReplaceInventory(ctx, userID, inv); err != nil {
		return nil, fmt.Errorf("replace inventory: %w", err)
	}
	return inv, nil
}

package bom

import (
	"context"
	"fmt"
)

// Resolver produces BOMs through a fixed fallback chain:
//
//  1. instruction overrides (only when InstructionsEnabled)
//  2. the latest catalog inventory version
//  3. the precomputed summary
//
// The first tier that knows the set wins; tiers are never merged. An unknown
// set yields an empty BOM, not an error.
type Resolver struct {
	Instructions        InstructionSource
	InstructionsEnabled bool
	Versions            VersionedSource
	Summary             SummarySource
}

// Resolve returns the BOM for setID. Only source I/O failures are returned
// as errors.
func (r *Resolver) Resolve(ctx context.Context, setID string) (*BOM, error) {
	setNum := NormalizeSetNum(setID)
	if setNum == "" {
		return Empty(""), nil
	}

	if r.InstructionsEnabled && r.Instructions != nil {
		rows, ok, err := r.Instructions.InstructionRows(ctx, setNum)
		if err != nil {
			return nil, fmt.Errorf("instruction rows for %s: %w", setNum, err)
		}
		if ok {
			return Build(setNum, TierInstructions, rows), nil
		}
	}

	if r.Versions != nil {
		version, ok, err := r.Versions.LatestVersion(ctx, setNum)
		if err != nil {
			return nil, fmt.Errorf("latest inventory version for %s: %w", setNum, err)
		}
		if ok {
			rows, err := r.Versions.VersionRows(ctx, setNum, version)
			if err != nil {
				return nil, fmt.Errorf("inventory rows for %s v%d: %w", setNum, version, err)
			}
			return Build(setNum, TierLatestVersion, rows), nil
		}
	}

	if r.Summary != nil {
		rows, ok, err := r.Summary.SummaryRows(ctx, setNum)
		if err != nil {
			return nil, fmt.Errorf("summary rows for %s: %w", setNum, err)
		}
		if ok {
			return Build(setNum, TierSummary, rows), nil
		}
	}

	return Empty(setNum), nil
}

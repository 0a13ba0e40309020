package bom

import "context"

// InstructionSource exposes explicit per-set requirement overrides derived
// from building instructions. ok is false when the set has no override.
type InstructionSource interface {
	InstructionRows(ctx context.Context, setNum string) (rows []Row, ok bool, err error)
}

// VersionedSource exposes the catalog's versioned set inventories.
type VersionedSource interface {
	// LatestVersion returns the highest inventory version recorded for the
	// set. ok is false when the set has no inventory at all.
	LatestVersion(ctx context.Context, setNum string) (version int, ok bool, err error)
	// VersionRows returns every raw row of one inventory version, spares
	// included and duplicates not merged.
	VersionRows(ctx context.Context, setNum string, version int) ([]Row, error)
}

// SummarySource exposes a precomputed per-set part summary.
type SummarySource interface {
	SummaryRows(ctx context.Context, setNum string) (rows []Row, ok bool, err error)
}

// Chain returns an InstructionSource answering from the first source that
// has an override for the set.
func Chain(sources ...InstructionSource) InstructionSource {
	return chain(sources)
}

type chain []InstructionSource

func (c chain) InstructionRows(ctx context.Context, setNum string) ([]Row, bool, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		rows, ok, err := s.InstructionRows(ctx, setNum)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return rows, true, nil
		}
	}
	return nil, false, nil
}

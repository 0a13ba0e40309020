package planner

import (
	"context"

	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// Mutation is the outcome of an inventory change.
type Mutation struct {
	// Changed is false when the input was dropped as invalid or nothing
	// matched.
	Changed bool
	// SetNum is the normalised set for owned-set mutations.
	SetNum    string
	Inventory *partbin.Bin
	// Index is the candidate rebuild that followed the change. IndexErr
	// holds its failure, which never undoes the change.
	Index    discover.Result
	IndexErr error
}

// AddPart adds qty of a part/color to the user's manual rows. A blank part
// or non-positive quantity is a no-op.
func (p *Planner) AddPart(ctx context.Context, userID string, k partbin.Key, qty int) (Mutation, error) {
	k = k.Clean()
	if k.PartNum == "" || qty <= 0 {
		return Mutation{}, nil
	}
	return p.mutate(ctx, userID, "add part", func(user string) (bool, string, error) {
		return true, "", p.store.AddPart(ctx, user, k, qty)
	})
}

// SetPart sets the manual quantity of a part/color. A non-positive
// quantity removes the row.
func (p *Planner) SetPart(ctx context.Context, userID string, k partbin.Key, qty int) (Mutation, error) {
	k = k.Clean()
	if k.PartNum == "" {
		return Mutation{}, nil
	}
	return p.mutate(ctx, userID, "set part", func(user string) (bool, string, error) {
		if qty <= 0 {
			ok, err := p.store.RemovePart(ctx, user, k)
			return ok, "", err
		}
		return true, "", p.store.SetPart(ctx, user, k, qty)
	})
}

// RemovePart deletes the manual row of a part/color.
func (p *Planner) RemovePart(ctx context.Context, userID string, k partbin.Key) (Mutation, error) {
	k = k.Clean()
	if k.PartNum == "" {
		return Mutation{}, nil
	}
	return p.mutate(ctx, userID, "remove part", func(user string) (bool, string, error) {
		ok, err := p.store.RemovePart(ctx, user, k)
		return ok, "", err
	})
}

// OwnSet records one more owned copy of a set.
func (p *Planner) OwnSet(ctx context.Context, userID, setID string) (Mutation, error) {
	return p.mutate(ctx, userID, "own set", func(user string) (bool, string, error) {
		setNum, err := p.store.AddOwnedSet(ctx, user, setID)
		return setNum != "", setNum, err
	})
}

// DisownSet removes one owned copy of a set. Its contribution disappears
// with the re-aggregation, whatever its BOM was when it was added.
func (p *Planner) DisownSet(ctx context.Context, userID, setID string) (Mutation, error) {
	return p.mutate(ctx, userID, "disown set", func(user string) (bool, string, error) {
		ok, err := p.store.RemoveOwnedSet(ctx, user, setID)
		return ok, "", err
	})
}

// mutate applies write under the user's lock and re-aggregates. The
// candidate rebuild runs after the lock is released and only logs its
// failure.
func (p *Planner) mutate(ctx context.Context, userID, op string, write func(user string) (bool, string, error)) (Mutation, error) {
	user := cleanUser(userID)

	unlock := p.lock(user)
	changed, setNum, err := write(user)
	if err != nil {
		unlock()
		return Mutation{}, &StorageError{Op: op, User: user, Err: err}
	}
	if !changed {
		unlock()
		return Mutation{SetNum: setNum}, nil
	}
	inv, err := p.agg.Refresh(ctx, p.store, user)
	unlock()
	if err != nil {
		return Mutation{}, &StorageError{Op: op + ": aggregate", User: user, Err: err}
	}

	m := Mutation{Changed: true, SetNum: setNum, Inventory: inv}
	m.Index, m.IndexErr = p.Rebuild(ctx, user)
	if m.IndexErr != nil {
		p.log.Warnf("Candidate rebuild for %s failed, index left stale: %v", user, m.IndexErr)
	} else {
		p.log.Debugf("Rebuilt candidates for %s: version %d, %d sets", user, m.Index.Version, m.Index.Candidates)
	}
	return m, nil
}

// Reaggregate rebuilds the user's aggregated inventory from raw sources,
// for instance after the catalog changed an owned set's BOM.
func (p *Planner) Reaggregate(ctx context.Context, userID string) (Mutation, error) {
	return p.mutate(ctx, userID, "reaggregate", func(string) (bool, string, error) {
		return true, "", nil
	})
}

// Inventory returns the user's aggregated inventory.
func (p *Planner) Inventory(ctx context.Context, userID string) (*partbin.Bin, error) {
	user := cleanUser(userID)
	inv, err := p.store.Inventory(ctx, user)
	if err != nil {
		return nil, &StorageError{Op: "load inventory", User: user, Err: err}
	}
	return inv, nil
}

// Parts returns the user's manual rows.
func (p *Planner) Parts(ctx context.Context, userID string) ([]partbin.Row, error) {
	user := cleanUser(userID)
	rows, err := p.store.ListParts(ctx, user)
	if err != nil {
		return nil, &StorageError{Op: "list parts", User: user, Err: err}
	}
	return rows, nil
}

// OwnedSets returns one entry per owned copy.
func (p *Planner) OwnedSets(ctx context.Context, userID string) ([]string, error) {
	user := cleanUser(userID)
	sets, err := p.store.ListOwnedSets(ctx, user)
	if err != nil {
		return nil, &StorageError{Op: "list owned sets", User: user, Err: err}
	}
	return sets, nil
}

package planner

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/reservation"
)

// OpenPlan resolves the set's BOM, reserves all of it and records the
// reserved snapshot as a plan. Reserving more than is owned is allowed.
func (p *Planner) OpenPlan(ctx context.Context, userID, setID string) (*reservation.Plan, error) {
	user := cleanUser(userID)
	b, err := p.Resolve(ctx, setID)
	if err != nil {
		return nil, err
	}
	if b.Bin.Empty() {
		return nil, ErrNothingToReserve
	}

	unlock := p.lock(user)
	defer unlock()
	plan, err := p.book.OpenPlan(ctx, user, b)
	if err != nil {
		return nil, &StorageError{Op: "open plan", User: user, Err: err}
	}
	p.log.Debugf("Opened plan %s for %s (%s, %d parts)", plan.ID, user, plan.SetNum, plan.Parts.Total())
	return plan, nil
}

// ClosePlan releases exactly what the plan reserved, even if the set's BOM
// changed since. Unknown ids return reservation.ErrPlanNotFound.
func (p *Planner) ClosePlan(ctx context.Context, userID string, id uuid.UUID) (*reservation.Plan, error) {
	user := cleanUser(userID)
	unlock := p.lock(user)
	defer unlock()
	plan, err := p.book.ClosePlan(ctx, user, id)
	if errors.Is(err, reservation.ErrPlanNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &StorageError{Op: "close plan", User: user, Err: err}
	}
	return plan, nil
}

// Plans lists the user's open plans.
func (p *Planner) Plans(ctx context.Context, userID string) ([]reservation.Plan, error) {
	user := cleanUser(userID)
	plans, err := p.book.Plans(ctx, user)
	if err != nil {
		return nil, &StorageError{Op: "list plans", User: user, Err: err}
	}
	return plans, nil
}

// ClearPlans drops every reservation and plan of the user.
func (p *Planner) ClearPlans(ctx context.Context, userID string) error {
	user := cleanUser(userID)
	unlock := p.lock(user)
	defer unlock()
	if err := p.book.Clear(ctx, user); err != nil {
		return &StorageError{Op: "clear plans", User: user, Err: err}
	}
	return nil
}

// Reserve holds parts outside of any plan. Reserving more than is owned is
// allowed. It returns the updated ledger bin.
func (p *Planner) Reserve(ctx context.Context, userID string, parts *partbin.Bin) (*partbin.Bin, error) {
	user := cleanUser(userID)
	if parts.Empty() {
		return nil, ErrNothingToReserve
	}
	unlock := p.lock(user)
	defer unlock()
	l, err := p.book.Reserve(ctx, user, parts)
	if err != nil {
		return nil, &StorageError{Op: "reserve", User: user, Err: err}
	}
	return l.Held(), nil
}

// Release gives back parts held with Reserve, clamping each key at zero.
// It returns the updated ledger bin.
func (p *Planner) Release(ctx context.Context, userID string, parts *partbin.Bin) (*partbin.Bin, error) {
	user := cleanUser(userID)
	if parts.Empty() {
		return nil, ErrNothingToReserve
	}
	unlock := p.lock(user)
	defer unlock()
	l, err := p.book.Release(ctx, user, parts)
	if err != nil {
		return nil, &StorageError{Op: "release", User: user, Err: err}
	}
	return l.Held(), nil
}

// Reserved returns the user's ledger bin.
func (p *Planner) Reserved(ctx context.Context, userID string) (*partbin.Bin, error) {
	user := cleanUser(userID)
	l, err := p.book.Ledger(ctx, user)
	if err != nil {
		return nil, &StorageError{Op: "load ledger", User: user, Err: err}
	}
	return l.Held(), nil
}

// Free returns the user's inventory minus everything reserved.
func (p *Planner) Free(ctx context.Context, userID string) (*partbin.Bin, error) {
	return p.available(ctx, cleanUser(userID), false)
}

// available reads inventory and ledger under the user's lock so both come
// from the same point in the user's mutation order.
func (p *Planner) available(ctx context.Context, user string, ignoreReservations bool) (*partbin.Bin, error) {
	unlock := p.lock(user)
	defer unlock()
	inv, err := p.store.Inventory(ctx, user)
	if err != nil {
		return nil, &StorageError{Op: "load inventory", User: user, Err: err}
	}
	if ignoreReservations {
		return inv, nil
	}
	free, err := p.book.Free(ctx, user, inv)
	if err != nil {
		return nil, &StorageError{Op: "free bins", User: user, Err: err}
	}
	return free, nil
}

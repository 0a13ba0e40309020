package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// ErrPlanNotFound is returned when closing a plan the user does not have.
var ErrPlanNotFound = errors.New("build plan not found")

// Plan is one open build. Parts is the snapshot reserved when the plan was
// opened; closing the plan releases exactly that snapshot.
type Plan struct {
	ID        uuid.UUID
	UserID    string
	SetNum    string
	Parts     *partbin.Bin
	CreatedAt time.Time
}

// PlanChange describes plan rows to write together with a ledger update.
type PlanChange struct {
	Open     *Plan
	Close    []uuid.UUID
	CloseAll bool
}

// PlanLookup reads one of the user's plans inside a ledger update. It
// returns ErrPlanNotFound for unknown ids.
type PlanLookup func(id uuid.UUID) (*Plan, error)

// UpdateFunc mutates held in place and returns the plan rows to write with
// it. Returning an error aborts the update.
type UpdateFunc func(held *partbin.Bin, plans PlanLookup) (PlanChange, error)

// Store persists one ledger bin and the plans of each user.
type Store interface {
	LoadLedger(ctx context.Context, userID string) (*partbin.Bin, error)
	// UpdateLedger loads the ledger bin, applies fn and writes the bin and
	// the returned PlanChange in one transaction. Updates for the same
	// user are serialised across every process sharing the database.
	UpdateLedger(ctx context.Context, userID string, fn UpdateFunc) (*partbin.Bin, error)
	ListPlans(ctx context.Context, userID string) ([]Plan, error)
	// GetPlan returns ErrPlanNotFound for unknown ids.
	GetPlan(ctx context.Context, userID string, id uuid.UUID) (*Plan, error)
}

// Book applies ledger operations against a Store. Each call reads, mutates
// and persists the ledger in a single store transaction, so a later Free
// observes every earlier mutation and two writers never overwrite each
// other.
type Book struct {
	Store Store
	Now   func() time.Time
}

func (b *Book) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

func (b *Book) update(ctx context.Context, userID string, fn func(l *Ledger, plans PlanLookup) (PlanChange, error)) (*Ledger, error) {
	held, err := b.Store.UpdateLedger(ctx, userID, func(held *partbin.Bin, plans PlanLookup) (PlanChange, error) {
		return fn(&Ledger{held: held}, plans)
	})
	if err != nil {
		return nil, fmt.Errorf("update ledger: %w", err)
	}
	return NewLedger(held), nil
}

// Ledger loads the user's current ledger.
func (b *Book) Ledger(ctx context.Context, userID string) (*Ledger, error) {
	held, err := b.Store.LoadLedger(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return NewLedger(held), nil
}

// Reserve adds parts to the user's ledger.
func (b *Book) Reserve(ctx context.Context, userID string, parts *partbin.Bin) (*Ledger, error) {
	return b.update(ctx, userID, func(l *Ledger, _ PlanLookup) (PlanChange, error) {
		l.Reserve(parts)
		return PlanChange{}, nil
	})
}

// Release subtracts parts from the user's ledger.
func (b *Book) Release(ctx context.Context, userID string, parts *partbin.Bin) (*Ledger, error) {
	return b.update(ctx, userID, func(l *Ledger, _ PlanLookup) (PlanChange, error) {
		l.Release(parts)
		return PlanChange{}, nil
	})
}

// Clear drops every reservation and every open plan of the user.
func (b *Book) Clear(ctx context.Context, userID string) error {
	_, err := b.update(ctx, userID, func(l *Ledger, _ PlanLookup) (PlanChange, error) {
		l.Clear()
		return PlanChange{CloseAll: true}, nil
	})
	return err
}

// Free returns the user's inventory minus everything reserved.
func (b *Book) Free(ctx context.Context, userID string, inv *partbin.Bin) (*partbin.Bin, error) {
	l, err := b.Ledger(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.Free(inv), nil
}

// OpenPlan reserves the BOM and records it as a new plan.
func (b *Book) OpenPlan(ctx context.Context, userID string, req *bom.BOM) (*Plan, error) {
	p := &Plan{
		ID:        uuid.New(),
		UserID:    userID,
		SetNum:    req.SetNum,
		Parts:     req.Bin.Clone(),
		CreatedAt: b.now(),
	}
	if _, err := b.update(ctx, userID, func(l *Ledger, _ PlanLookup) (PlanChange, error) {
		l.Reserve(p.Parts)
		return PlanChange{Open: p}, nil
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// ClosePlan releases the plan's snapshot and deletes the plan. The plan is
// read in the same transaction, so a plan closed twice concurrently is
// released once and the second call gets ErrPlanNotFound.
func (b *Book) ClosePlan(ctx context.Context, userID string, id uuid.UUID) (*Plan, error) {
	var closed *Plan
	_, err := b.update(ctx, userID, func(l *Ledger, plans PlanLookup) (PlanChange, error) {
		p, err := plans(id)
		if err != nil {
			return PlanChange{}, err
		}
		l.Release(p.Parts)
		closed = p
		return PlanChange{Close: []uuid.UUID{id}}, nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// Plans lists the user's open plans.
func (b *Book) Plans(ctx context.Context, userID string) ([]Plan, error) {
	return b.Store.ListPlans(ctx, userID)
}

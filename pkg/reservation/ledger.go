// Package reservation tracks parts promised to open build plans so the same
// physical brick is never counted as free twice.
package reservation

import (
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// Ledger is the union of every quantity reserved by one user. Reserving more
// than the user owns is allowed; it only drives the free quantity to zero.
//
// A Ledger is not safe for concurrent use.
type Ledger struct {
	held *partbin.Bin
}

// NewLedger wraps an existing reserved bin. A nil bin starts empty.
func NewLedger(held *partbin.Bin) *Ledger {
	if held == nil {
		held = partbin.New()
	}
	return &Ledger{held: held.Clone()}
}

// Reserve adds every row of parts to the ledger.
func (l *Ledger) Reserve(parts *partbin.Bin) {
	l.held.AddBin(parts)
}

// Release subtracts every row of parts, clamping each key at zero.
func (l *Ledger) Release(parts *partbin.Bin) {
	l.held.SubBin(parts)
}

// Clear drops every reservation.
func (l *Ledger) Clear() {
	l.held.Clear()
}

// Free returns max(0, inv[k] - held[k]) for every key of inv. Keys reserved
// but not owned contribute nothing; zero results are omitted.
func (l *Ledger) Free(inv *partbin.Bin) *partbin.Bin {
	return partbin.Diff(inv, l.held)
}

// Held returns a copy of the reserved bin.
func (l *Ledger) Held() *partbin.Bin {
	return l.held.Clone()
}

// Get returns the reserved quantity of k.
func (l *Ledger) Get(k partbin.Key) int {
	return l.held.Get(k)
}

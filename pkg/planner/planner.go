// Package planner ties the matching engine to a Store. It owns the
// single-writer-per-user discipline: every inventory or ledger mutation for
// one user runs under that user's lock, re-aggregates the inventory and then
// attempts a candidate rebuild whose failure is logged and never undoes the
// mutation.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sw33tLie/brickscope/internal/utils"
	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/inventory"
	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/reservation"
)

// DefaultUser is the user scope used when none is given.
const DefaultUser = "default"

var (
	// ErrIndexStale is returned when fresh candidates are requested and the
	// candidate list was built from an older inventory.
	ErrIndexStale = errors.New("discover index is behind the inventory")
	// ErrNothingToReserve is returned when opening a plan for a set whose
	// BOM is empty, or reserving or releasing an empty bin.
	ErrNothingToReserve = errors.New("nothing to reserve")
)

// StorageError wraps a storage failure with the operation that hit it.
type StorageError struct {
	Op   string
	User string
	Err  error
}

func (e *StorageError) Error() string {
	if e.User == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (user %s): %v", e.Op, e.User, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Store is everything the planner persists.
type Store interface {
	inventory.Store
	reservation.Store
	discover.Store
	discover.ExclusionSource

	AddPart(ctx context.Context, userID string, k partbin.Key, qty int) error
	SetPart(ctx context.Context, userID string, k partbin.Key, qty int) error
	RemovePart(ctx context.Context, userID string, k partbin.Key) (bool, error)
	ListParts(ctx context.Context, userID string) ([]partbin.Row, error)
	AddOwnedSet(ctx context.Context, userID, setID string) (string, error)
	RemoveOwnedSet(ctx context.Context, userID, setID string) (bool, error)
	ListOwnedSets(ctx context.Context, userID string) ([]string, error)
	Inventory(ctx context.Context, userID string) (*partbin.Bin, error)
}

// Config holds everything New needs.
type Config struct {
	Store Store
	BOMs  bom.Interface
	// MinMatchPairs is passed to the indexer; below one means one.
	MinMatchPairs int
	// Exclusions is optional. It is refreshed before every rebuild.
	Exclusions *discover.ExclusionCache
	Log        Logger         // optional; nil = no logging
	Now        func() time.Time
}

// Planner is safe for concurrent use. Calls for different users never
// block each other.
type Planner struct {
	store      Store
	boms       bom.Interface
	agg        *inventory.Aggregator
	book       *reservation.Book
	index      *discover.Indexer
	exclusions *discover.ExclusionCache
	log        Logger
	now        func() time.Time

	users    utils.KeyedMutex
	rebuilds singleflight.Group
}

// New returns a Planner. Store and BOMs are required.
func New(cfg Config) (*Planner, error) {
	if cfg.Store == nil {
		return nil, errors.New("planner: nil store")
	}
	if cfg.BOMs == nil {
		return nil, errors.New("planner: nil BOM resolver")
	}
	p := &Planner{
		store:      cfg.Store,
		boms:       cfg.BOMs,
		exclusions: cfg.Exclusions,
		log:        cfg.Log,
		now:        cfg.Now,
	}
	if p.log == nil {
		p.log = nopLogger{}
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	p.agg = &inventory.Aggregator{BOMs: cfg.BOMs}
	p.book = &reservation.Book{Store: cfg.Store, Now: p.now}
	p.index = &discover.Indexer{Store: cfg.Store, MinMatchPairs: cfg.MinMatchPairs, Exclusions: cfg.Exclusions}
	return p, nil
}

// BOMs returns the resolver the planner uses.
func (p *Planner) BOMs() bom.Interface { return p.boms }

// Resolve returns the BOM of one set.
func (p *Planner) Resolve(ctx context.Context, setID string) (*bom.BOM, error) {
	b, err := p.boms.Resolve(ctx, setID)
	if err != nil {
		return nil, &StorageError{Op: "resolve bom", Err: err}
	}
	return b, nil
}

func cleanUser(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return DefaultUser
	}
	return userID
}

func (p *Planner) lock(userID string) func() {
	return p.users.Lock(userID)
}

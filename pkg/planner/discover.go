package planner

import (
	"context"

	"github.com/sw33tLie/brickscope/pkg/coverage"
	"github.com/sw33tLie/brickscope/pkg/discover"
)

// CoverageOptions tune coverage queries.
type CoverageOptions struct {
	// IgnoreReservations measures against the raw inventory instead of the
	// free bins.
	IgnoreReservations bool
}

// Coverage computes ranked coverage of every set against the user's free
// bins, or the raw inventory with IgnoreReservations.
func (p *Planner) Coverage(ctx context.Context, userID string, setIDs []string, opts CoverageOptions) ([]coverage.SetReport, error) {
	user := cleanUser(userID)
	have, err := p.available(ctx, user, opts.IgnoreReservations)
	if err != nil {
		return nil, err
	}
	reports, err := coverage.Batch(ctx, p.boms, have, setIDs)
	if err != nil {
		return nil, &StorageError{Op: "coverage", User: user, Err: err}
	}
	return reports, nil
}

// Rebuild refreshes the user's candidate list. Concurrent rebuilds for one
// user are coalesced; a caller that joined a rebuild started before its own
// inventory change triggers one more pass.
func (p *Planner) Rebuild(ctx context.Context, userID string) (discover.Result, error) {
	user := cleanUser(userID)
	run := func() (interface{}, error) {
		p.RefreshExclusions(ctx)
		unlock := p.lock(user)
		defer unlock()
		return p.index.Rebuild(ctx, user)
	}

	v, err, shared := p.rebuilds.Do(user, run)
	if err == nil && shared {
		if st, serr := p.store.IndexState(ctx, user); serr == nil && st.Stale() {
			v, err = run()
		}
	}
	if err != nil {
		return discover.Result{}, &StorageError{Op: "rebuild candidates", User: user, Err: err}
	}
	return v.(discover.Result), nil
}

// RefreshExclusions reloads the exclusion cache when its TTL has passed. A
// failed reload is logged and the previous contents stay in use.
func (p *Planner) RefreshExclusions(ctx context.Context) {
	if p.exclusions == nil {
		return
	}
	refreshed, err := p.exclusions.RefreshIfStale(ctx, p.now())
	if err != nil {
		p.log.Warnf("Could not refresh excluded parts: %v", err)
		return
	}
	if refreshed {
		p.log.Debugf("Loaded %d excluded parts", len(p.exclusions.Parts()))
	}
}

// InvalidateExclusions forces the next rebuild to reload excluded parts.
func (p *Planner) InvalidateExclusions() {
	if p.exclusions != nil {
		p.exclusions.Invalidate()
	}
}

// Candidates returns the stored candidate list and its state. With fresh
// set, a list built from an older inventory returns ErrIndexStale.
func (p *Planner) Candidates(ctx context.Context, userID string, fresh bool) ([]discover.Candidate, discover.State, error) {
	user := cleanUser(userID)
	st, err := p.store.IndexState(ctx, user)
	if err != nil {
		return nil, discover.State{}, &StorageError{Op: "index state", User: user, Err: err}
	}
	if fresh && st.Stale() {
		return nil, st, ErrIndexStale
	}
	cands, err := p.store.Candidates(ctx, user)
	if err != nil {
		return nil, st, &StorageError{Op: "load candidates", User: user, Err: err}
	}
	return cands, st, nil
}

// DiscoverOptions tune Discover.
type DiscoverOptions struct {
	// Limit truncates the ranked result; zero or less keeps everything.
	Limit              int
	IgnoreReservations bool
	// Fresh fails with ErrIndexStale instead of using an outdated list.
	Fresh bool
}

// Discover runs coverage over the user's candidate shortlist and ranks the
// result buildable first, then by coverage, match pairs and set number.
func (p *Planner) Discover(ctx context.Context, userID string, opts DiscoverOptions) ([]coverage.SetReport, error) {
	user := cleanUser(userID)
	cands, st, err := p.Candidates(ctx, user, opts.Fresh)
	if err != nil {
		return nil, err
	}
	if st.Stale() {
		p.log.Warnf("Discover for %s uses candidates from an older inventory (version %d)", user, st.Version)
	}

	have, err := p.available(ctx, user, opts.IgnoreReservations)
	if err != nil {
		return nil, err
	}

	reports := make([]coverage.SetReport, 0, len(cands))
	for _, c := range cands {
		b, err := p.boms.Resolve(ctx, c.SetNum)
		if err != nil {
			return nil, &StorageError{Op: "discover: resolve " + c.SetNum, User: user, Err: err}
		}
		reports = append(reports, coverage.SetReport{
			SetNum:     c.SetNum,
			Tier:       b.Tier,
			MatchPairs: c.MatchPairs,
			Report:     coverage.Compute(have, b.Bin),
		})
	}
	coverage.Rank(reports)
	if opts.Limit > 0 && len(reports) > opts.Limit {
		reports = reports[:opts.Limit]
	}
	return reports, nil
}

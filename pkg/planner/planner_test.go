package planner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/reservation"
	"github.com/sw33tLie/brickscope/pkg/storage"
)

const testCatalog = `{
  "sets": [
    {"set_num": "100-1", "inventories": [{"version": 1, "parts": [
      {"part_num": "3001", "color_id": 5, "quantity": 10},
      {"part_num": "3002", "color_id": 1, "quantity": 1, "is_spare": true}
    ]}]},
    {"set_num": "200-1", "inventories": [{"version": 1, "parts": [
      {"part_num": "3001", "color_id": 5, "quantity": 2},
      {"part_num": "3003", "color_id": 2, "quantity": 2}
    ]}]},
    {"set_num": "300-1", "summary": [{"part_num": "9999", "color_id": 7, "quantity": 1}]}
  ]
}`

func k(part string, color int) partbin.Key { return partbin.Key{PartNum: part, ColorID: color} }

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "brickscope.sqlite"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := storage.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	_, err = db.LoadCatalog(context.Background(), c)
	require.NoError(t, err)
	return db
}

func newPlanner(t *testing.T, store Store) *Planner {
	t.Helper()
	p, err := New(Config{
		Store: store,
		BOMs:  &bom.Resolver{Versions: store.(bom.VersionedSource), Summary: store.(bom.SummarySource)},
	})
	require.NoError(t, err)
	return p
}

// failingIndexStore breaks the pair-overlap query only.
type failingIndexStore struct {
	*storage.DB
}

func (failingIndexStore) CountSharedPairs(context.Context, []partbin.Key, int) ([]discover.Candidate, error) {
	return nil, errors.New("disk on fire")
}

func TestNewRequiresStoreAndResolver(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Store: openStore(t)})
	assert.Error(t, err)
}

func TestMutationReaggregatesAndRebuilds(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	m, err := p.AddPart(ctx, "alice", k("3001", 5), 4)
	require.NoError(t, err)
	assert.True(t, m.Changed)
	assert.Equal(t, 4, m.Inventory.Get(k("3001", 5)))
	require.NoError(t, m.IndexErr)
	assert.Equal(t, int64(1), m.Index.Version)

	cands, st, err := p.Candidates(ctx, "alice", true)
	require.NoError(t, err)
	assert.False(t, st.Stale())
	assert.Equal(t, []discover.Candidate{{SetNum: "100-1", MatchPairs: 1}, {SetNum: "200-1", MatchPairs: 1}}, cands)
}

func TestInvalidInputIsNoOp(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	m, err := p.AddPart(ctx, "alice", k("  ", 5), 4)
	require.NoError(t, err)
	assert.False(t, m.Changed)
	m, err = p.AddPart(ctx, "alice", k("3001", 5), 0)
	require.NoError(t, err)
	assert.False(t, m.Changed)
	m, err = p.OwnSet(ctx, "alice", "")
	require.NoError(t, err)
	assert.False(t, m.Changed)

	inv, err := p.Inventory(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, inv.Empty())
}

func TestOwnedSetsDoubleAndDisown(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	_, err := p.OwnSet(ctx, "alice", "200")
	require.NoError(t, err)
	m, err := p.OwnSet(ctx, "alice", "200-1")
	require.NoError(t, err)
	assert.Equal(t, "200-1", m.SetNum)
	assert.Equal(t, 4, m.Inventory.Get(k("3001", 5)))
	assert.Equal(t, 4, m.Inventory.Get(k("3003", 2)))

	m, err = p.DisownSet(ctx, "alice", "200")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Inventory.Get(k("3001", 5)))

	sets, err := p.OwnedSets(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"200-1"}, sets)

	m, err = p.DisownSet(ctx, "alice", "999")
	require.NoError(t, err)
	assert.False(t, m.Changed)
}

func TestRebuildFailureDoesNotBlockMutation(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	p := newPlanner(t, failingIndexStore{db})

	m, err := p.AddPart(ctx, "alice", k("3001", 5), 4)
	require.NoError(t, err, "inventory write must commit")
	assert.True(t, m.Changed)
	require.Error(t, m.IndexErr)
	var se *StorageError
	assert.ErrorAs(t, m.IndexErr, &se)
	assert.Equal(t, "alice", se.User)

	inv, err := db.Inventory(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, inv.Get(k("3001", 5)))

	_, st, err := p.Candidates(ctx, "alice", true)
	assert.ErrorIs(t, err, ErrIndexStale)
	assert.True(t, st.Stale())

	_, st, err = p.Candidates(ctx, "alice", false)
	require.NoError(t, err)
	assert.True(t, st.Stale())
}

func TestEmptyInventoryResetsVersion(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	_, err := p.AddPart(ctx, "alice", k("3001", 5), 1)
	require.NoError(t, err)
	m, err := p.AddPart(ctx, "alice", k("3003", 2), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Index.Version)

	_, err = p.RemovePart(ctx, "alice", k("3001", 5))
	require.NoError(t, err)
	m, err = p.SetPart(ctx, "alice", k("3003", 2), 0)
	require.NoError(t, err)
	assert.True(t, m.Inventory.Empty())

	cands, st, err := p.Candidates(ctx, "alice", true)
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.Equal(t, int64(0), st.Version)
}

func TestCoverageUsesFreeBins(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	_, err := p.SetPart(ctx, "alice", k("3001", 5), 10)
	require.NoError(t, err)

	plan, err := p.OpenPlan(ctx, "alice", "200")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Parts.Get(k("3001", 5)))

	free, err := p.Free(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 8, free.Get(k("3001", 5)))

	reports, err := p.Coverage(ctx, "alice", []string{"100"}, CoverageOptions{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 8, reports[0].TotalHave)
	assert.Equal(t, 80.0, reports[0].CoveragePct)

	reports, err = p.Coverage(ctx, "alice", []string{"100"}, CoverageOptions{IgnoreReservations: true})
	require.NoError(t, err)
	assert.True(t, reports[0].Buildable())

	_, err = p.ClosePlan(ctx, "alice", plan.ID)
	require.NoError(t, err)
	free, err = p.Free(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, free.Get(k("3001", 5)))
}

func TestPlanErrors(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	_, err := p.OpenPlan(ctx, "alice", "404")
	assert.ErrorIs(t, err, ErrNothingToReserve)

	_, err = p.ClosePlan(ctx, "alice", uuid.New())
	assert.ErrorIs(t, err, reservation.ErrPlanNotFound)
}

func TestOverReservationClampsFree(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	_, err := p.SetPart(ctx, "alice", k("3001", 5), 3)
	require.NoError(t, err)
	_, err = p.OpenPlan(ctx, "alice", "100")
	require.NoError(t, err)

	free, err := p.Free(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, free.Has(k("3001", 5)))

	held, err := p.Reserved(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, held.Get(k("3001", 5)))

	require.NoError(t, p.ClearPlans(ctx, "alice"))
	plans, err := p.Plans(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestReserveAndReleaseLoosePart(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	_, err := p.SetPart(ctx, "alice", k("3001", 5), 10)
	require.NoError(t, err)

	held, err := p.Reserve(ctx, "alice", partbin.FromRows([]partbin.Row{{PartNum: "3001", ColorID: 5, Quantity: 4}}))
	require.NoError(t, err)
	assert.Equal(t, 4, held.Get(k("3001", 5)))

	reports, err := p.Coverage(ctx, "alice", []string{"100"}, CoverageOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, reports[0].TotalHave)

	held, err = p.Release(ctx, "alice", partbin.FromRows([]partbin.Row{{PartNum: "3001", ColorID: 5, Quantity: 9}}))
	require.NoError(t, err)
	assert.True(t, held.Empty())
	free, err := p.Free(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, free.Get(k("3001", 5)))

	_, err = p.Reserve(ctx, "alice", partbin.New())
	assert.ErrorIs(t, err, ErrNothingToReserve)
	_, err = p.Release(ctx, "alice", nil)
	assert.ErrorIs(t, err, ErrNothingToReserve)
}

func TestPlannersSharingStoreDoNotLoseReservations(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	a := newPlanner(t, store)
	b := newPlanner(t, store)

	const perPlanner = 5
	var wg sync.WaitGroup
	for _, p := range []*Planner{a, b} {
		wg.Add(1)
		go func(p *Planner) {
			defer wg.Done()
			for i := 0; i < perPlanner; i++ {
				_, err := p.OpenPlan(ctx, "alice", "200")
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	held, err := a.Reserved(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2*2*perPlanner, held.Get(k("3001", 5)))
	assert.Equal(t, 2*2*perPlanner, held.Get(k("3003", 2)))
	plans, err := b.Plans(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, plans, 2*perPlanner)
}

func TestDiscoverRanksAndLimits(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	_, err := p.SetPart(ctx, "alice", k("3001", 5), 2)
	require.NoError(t, err)
	_, err = p.SetPart(ctx, "alice", k("3003", 2), 2)
	require.NoError(t, err)

	reports, err := p.Discover(ctx, "alice", DiscoverOptions{Fresh: true})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "200-1", reports[0].SetNum)
	assert.True(t, reports[0].Buildable())
	assert.Equal(t, 2, reports[0].MatchPairs)
	assert.Equal(t, "100-1", reports[1].SetNum)
	assert.Equal(t, 20.0, reports[1].CoveragePct)

	reports, err = p.Discover(ctx, "alice", DiscoverOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestUsersDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for _, user := range []string{"alice", "bob"} {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				if _, err := p.AddPart(ctx, user, k("3001", 5), 1); err != nil {
					errs <- err
				}
			}(user)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, user := range []string{"alice", "bob"} {
		inv, err := p.Inventory(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 5, inv.Get(k("3001", 5)), user)
	}
}

func TestBlankUserIsDefault(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, openStore(t))
	_, err := p.AddPart(ctx, " ", k("3001", 5), 1)
	require.NoError(t, err)
	inv, err := p.Inventory(ctx, DefaultUser)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Get(k("3001", 5)))
}

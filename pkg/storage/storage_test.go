package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/inventory"
	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/reservation"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func k(part string, color int) partbin.Key { return partbin.Key{PartNum: part, ColorID: color} }

const catalogDoc = `{
  "sets": [
    {
      "set_num": "70618", "name": "Destiny's Bounty", "year": 2017, "num_parts": 2295,
      "inventories": [
        {"version": 1, "parts": [{"part_num": "3001", "color_id": 5, "quantity": 99}]},
        {"version": 2, "parts": [
          {"part_num": "3001", "color_id": 5, "quantity": 2},
          {"part": {"part_num": "3001", "name": "Brick 2 x 4"}, "color": {"id": 5}, "quantity": 2},
          {"part_num": "3002", "color_id": 1, "quantity": 1, "is_spare": true},
          {"part_num": "3003", "color_id": 0, "quantity": 3}
        ]}
      ]
    },
    {
      "set_num": "10-1",
      "instructions": [{"part_num": "A", "color_id": 1, "quantity": 2}],
      "inventories": [{"version": 1, "parts": [{"part_num": "B", "color_id": 1, "quantity": 9}]}]
    },
    {
      "set_num": "20-1",
      "summary": [
        {"part_num": "3001", "color_id": 5, "quantity": 1},
        {"part_num": "3001", "color_id": 5, "quantity": 1},
        {"part_num": "9999", "color_id": 0, "quantity": 1, "is_spare": true}
      ]
    }
  ],
  "excluded_parts": ["3069b", {"part_num": "973", "reason": "torso"}]
}`

func loadCatalog(t *testing.T, db *DB) {
	t.Helper()
	c, err := ParseCatalog([]byte(catalogDoc))
	require.NoError(t, err)
	res, err := db.LoadCatalog(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, LoadResult{Sets: 3, Versions: 3, Instructions: 1, Summaries: 1, Excluded: 2}, res)
}

func resolver(db *DB, instructions bool) *bom.Resolver {
	return &bom.Resolver{Instructions: db, InstructionsEnabled: instructions, Versions: db, Summary: db}
}

func TestResolverTiersAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	loadCatalog(t, db)
	r := resolver(db, true)

	b, err := r.Resolve(ctx, "70618")
	require.NoError(t, err)
	assert.Equal(t, bom.TierLatestVersion, b.Tier)
	assert.Equal(t, 4, b.Bin.Get(k("3001", 5)), "duplicates summed at the latest version")
	assert.False(t, b.Bin.Has(k("3002", 1)), "spares excluded")
	assert.Equal(t, 3, b.Bin.Get(k("3003", 0)))
	assert.Equal(t, "Brick 2 x 4", b.Hints[k("3001", 5)].Name)

	b, err = r.Resolve(ctx, "10-1")
	require.NoError(t, err)
	assert.Equal(t, bom.TierInstructions, b.Tier)
	assert.Equal(t, 1, b.Bin.Len())

	b, err = resolver(db, false).Resolve(ctx, "10-1")
	require.NoError(t, err)
	assert.Equal(t, bom.TierLatestVersion, b.Tier)
	assert.Equal(t, 9, b.Bin.Get(k("B", 1)))

	b, err = r.Resolve(ctx, "20")
	require.NoError(t, err)
	assert.Equal(t, bom.TierSummary, b.Tier)
	assert.Equal(t, 2, b.Bin.Get(k("3001", 5)))
	assert.False(t, b.Bin.Has(k("9999", 0)))

	b, err = r.Resolve(ctx, "424242")
	require.NoError(t, err)
	assert.False(t, b.Found())
	assert.True(t, b.Bin.Empty())

	set, ok, err := db.GetSet(ctx, "70618")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2017, set.Year)
}

func TestInventoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	loadCatalog(t, db)

	require.NoError(t, db.AddPart(ctx, "alice", k("3001", 5), 2))
	require.NoError(t, db.AddPart(ctx, "alice", k("3001", 5), 3))
	require.NoError(t, db.SetPart(ctx, "alice", k("X", 1), 7))
	require.NoError(t, db.AddPart(ctx, "alice", k("X", 1), -7))
	_, err := db.AddOwnedSet(ctx, "alice", "20")
	require.NoError(t, err)
	_, err = db.AddOwnedSet(ctx, "alice", "20-1")
	require.NoError(t, err)
	require.NoError(t, db.AddPart(ctx, "bob", k("3001", 5), 1))

	parts, err := db.ListParts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []partbin.Row{{PartNum: "3001", ColorID: 5, Quantity: 5}}, parts)

	agg := &inventory.Aggregator{BOMs: resolver(db, true)}
	inv, err := agg.Refresh(ctx, db, "alice")
	require.NoError(t, err)
	assert.Equal(t, 9, inv.Get(k("3001", 5)))

	stored, err := db.Inventory(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, inv.Equal(stored))

	removed, err := db.RemoveOwnedSet(ctx, "alice", "20")
	require.NoError(t, err)
	assert.True(t, removed)
	sets, err := db.ListOwnedSets(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"20-1"}, sets)

	removed, err = db.RemovePart(ctx, "alice", k("nope", 1))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLedgerAndPlansPersist(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	book := &reservation.Book{Store: db}

	req := bom.Build("70618-1", bom.TierLatestVersion, []bom.Row{
		{PartNum: "3001", ColorID: 5, Quantity: 4},
		{PartNum: "3003", ColorID: 0, Quantity: 1},
	})
	p, err := book.OpenPlan(ctx, "alice", req)
	require.NoError(t, err)

	inv := partbin.FromRows([]partbin.Row{{PartNum: "3001", ColorID: 5, Quantity: 10}})
	free, err := book.Free(ctx, "alice", inv)
	require.NoError(t, err)
	assert.Equal(t, 6, free.Get(k("3001", 5)))

	got, err := db.GetPlan(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "70618-1", got.SetNum)
	assert.True(t, p.Parts.Equal(got.Parts))
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = db.GetPlan(ctx, "bob", p.ID)
	assert.ErrorIs(t, err, ErrPlanNotFound)
	_, err = db.GetPlan(ctx, "alice", uuid.New())
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = book.ClosePlan(ctx, "alice", p.ID)
	require.NoError(t, err)
	held, err := db.LoadLedger(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, held.Empty())
	plans, err := db.ListPlans(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestLedgerUpdatesFromTwoHandlesDoNotOverwrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.sqlite")
	var books []*reservation.Book
	for i := 0; i < 2; i++ {
		db, err := Open(path, 30*time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		books = append(books, &reservation.Book{Store: db})
	}
	req := bom.Build("10-1", bom.TierSummary, []bom.Row{{PartNum: "3001", ColorID: 5, Quantity: 1}})

	const perHandle = 10
	var wg sync.WaitGroup
	for _, book := range books {
		wg.Add(1)
		go func(book *reservation.Book) {
			defer wg.Done()
			for i := 0; i < perHandle; i++ {
				_, err := book.OpenPlan(ctx, "alice", req)
				assert.NoError(t, err)
			}
		}(book)
	}
	wg.Wait()

	l, err := books[0].Ledger(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2*perHandle, l.Get(k("3001", 5)))
	plans, err := books[1].Plans(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, plans, 2*perHandle)
}

func TestClosePlanUnknownLeavesLedger(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	book := &reservation.Book{Store: db}
	_, err := book.Reserve(ctx, "alice", partbin.FromRows([]partbin.Row{{PartNum: "3001", ColorID: 5, Quantity: 2}}))
	require.NoError(t, err)

	_, err = book.ClosePlan(ctx, "alice", uuid.New())
	assert.ErrorIs(t, err, ErrPlanNotFound)
	held, err := db.LoadLedger(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, held.Get(k("3001", 5)))
}

func TestCandidatesAgainstRequirementView(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	loadCatalog(t, db)
	ix := &discover.Indexer{Store: db}

	require.NoError(t, db.ReplaceInventory(ctx, "alice", partbin.FromRows([]partbin.Row{
		{PartNum: "3001", ColorID: 5, Quantity: 1},
		{PartNum: "3003", ColorID: 0, Quantity: 1},
		{PartNum: "3002", ColorID: 1, Quantity: 1},
		{PartNum: "B", ColorID: 1, Quantity: 1},
	})))

	res, err := ix.Rebuild(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)

	cands, err := db.Candidates(ctx, "alice")
	require.NoError(t, err)
	// 3002/1 is only a spare and B/1 belongs to a tier shadowed by
	// instructions, so neither counts.
	assert.Equal(t, []discover.Candidate{
		{SetNum: "70618-1", MatchPairs: 2},
		{SetNum: "20-1", MatchPairs: 1},
	}, cands)

	st, err := db.IndexState(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, st.Stale())

	require.NoError(t, db.ReplaceInventory(ctx, "alice", partbin.New()))
	st, err = db.IndexState(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, st.Stale())

	_, err = ix.Rebuild(ctx, "alice")
	require.NoError(t, err)
	cands, err = db.Candidates(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, cands)
	st, err = db.IndexState(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Version)
	assert.False(t, st.Stale())
}

func TestExcludedParts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	loadCatalog(t, db)

	ex, err := db.ExcludedParts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"3069b": "", "973": "torso"}, ex)

	ok, err := db.IncludePart(ctx, "973")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Error(t, db.ExcludePart(ctx, " ", ""))
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	loadCatalog(t, db)
	stats, err := db.GetStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, len(statsTables))
	assert.Equal(t, TableStats{Table: "sets", Rows: 3}, stats[0])
}

func TestParseCatalogRejectsGarbage(t *testing.T) {
	_, err := ParseCatalog([]byte(`[1,2]`))
	assert.ErrorIs(t, err, bom.ErrInvalidJSON)
	_, err = ParseCatalog([]byte(`{"sets":[{"set_num":"1","summary":{"nope":true}}]}`))
	assert.ErrorIs(t, err, bom.ErrInvalidJSON)
}

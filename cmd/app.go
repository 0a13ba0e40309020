package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/sw33tLie/brickscope/internal/config"
	"github.com/sw33tLie/brickscope/internal/utils"
	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/planner"
	"github.com/sw33tLie/brickscope/pkg/storage"
	"github.com/sw33tLie/brickscope/pkg/storage/pgstore"
)

// backend is what the CLI needs from either store.
type backend interface {
	planner.Store
	bom.InstructionSource
	bom.VersionedSource
	bom.SummarySource

	UpsertSet(ctx context.Context, s storage.CatalogSet) error
	GetSet(ctx context.Context, setNum string) (storage.CatalogSet, bool, error)
	ReplaceSummary(ctx context.Context, setNum string, rows []bom.Row) error
	LoadCatalog(ctx context.Context, c *storage.Catalog) (storage.LoadResult, error)
	ExcludePart(ctx context.Context, partNum, reason string) error
	IncludePart(ctx context.Context, partNum string) (bool, error)
	GetStats(ctx context.Context) ([]storage.TableStats, error)
	Close() error
}

var (
	_ backend = (*storage.DB)(nil)
	_ backend = (*pgstore.Store)(nil)
)

type app struct {
	cfg     config.Config
	user    string
	store   backend
	planner *planner.Planner
	lock    *utils.WriterLock
}

// openApp loads the configuration, opens the configured store and builds
// the planner. Commands that write pass write=true to hold the SQLite file
// lock for the lifetime of the app.
func openApp(write bool) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, user: cfg.User}

	switch cfg.DB.Driver {
	case config.DriverPostgres:
		utils.Log.Debugf("Connecting to PostgreSQL")
		a.store, err = pgstore.Open(cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	default:
		path, err := utils.GetAbsDBPath(cfg.DB.Path)
		if err != nil {
			return nil, err
		}
		if write {
			a.lock, err = utils.NewWriterLock(path)
			if err != nil {
				return nil, err
			}
			if err := a.lock.Acquire(context.Background(), cfg.DB.LockTimeout); err != nil {
				return nil, err
			}
		}
		utils.Log.Debugf("Opening %s", path)
		db, err := storage.Open(path, cfg.DB.BusyTimeout)
		if err != nil {
			a.unlock()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		a.store = db
	}

	boms, err := a.resolver()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.planner, err = planner.New(planner.Config{
		Store:         a.store,
		BOMs:          boms,
		MinMatchPairs: cfg.Discover.MinMatchPairs,
		Exclusions:    discover.NewExclusionCache(a.store, cfg.Discover.ExclusionsTTL),
		Log:           utils.Log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) resolver() (bom.Interface, error) {
	var instructions bom.InstructionSource = a.store
	if a.cfg.BOM.OverridesFile != "" {
		o, err := bom.LoadOverrides(a.cfg.BOM.OverridesFile)
		if err != nil {
			return nil, fmt.Errorf("load BOM overrides: %w", err)
		}
		utils.Log.Debugf("Loaded instruction overrides for %d sets", o.Len())
		instructions = bom.Chain(o, a.store)
	}
	r := &bom.Resolver{
		Instructions:        instructions,
		InstructionsEnabled: a.cfg.BOM.Instructions,
		Versions:            a.store,
		Summary:             a.store,
	}
	return bom.NewCachedResolver(r, a.cfg.BOM.CacheSize, a.cfg.BOM.CacheTTL), nil
}

func (a *app) unlock() {
	if a.lock == nil {
		return
	}
	if err := a.lock.Release(); err != nil {
		utils.Log.Warnf("%v", err)
	}
	a.lock = nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			utils.Log.Warnf("Closing database: %v", err)
		}
	}
	a.unlock()
}

// withApp opens the app, runs fn and closes it again.
func withApp(write bool, fn func(a *app) error) error {
	a, err := openApp(write)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// Package pgstore persists brickscope state in PostgreSQL through gorm. It
// satisfies the same contracts as the SQLite store so a deployment can pick
// either one through configuration.
package pgstore

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/inventory"
	"github.com/sw33tLie/brickscope/pkg/reservation"
	"github.com/sw33tLie/brickscope/pkg/storage"
)

// ErrPlanNotFound is shared with the SQLite store.
var ErrPlanNotFound = storage.ErrPlanNotFound

type Store struct {
	db *gorm.DB
}

var (
	_ bom.InstructionSource    = (*Store)(nil)
	_ bom.VersionedSource      = (*Store)(nil)
	_ bom.SummarySource        = (*Store)(nil)
	_ inventory.Store          = (*Store)(nil)
	_ reservation.Store        = (*Store)(nil)
	_ discover.Store           = (*Store)(nil)
	_ discover.ExclusionSource = (*Store)(nil)
)

const requirementsView = `
CREATE OR REPLACE VIEW set_requirements AS
  SELECT set_num, part_num, color_id, SUM(quantity) AS quantity
    FROM instruction_parts
   WHERE NOT is_spare
   GROUP BY set_num, part_num, color_id
  UNION ALL
  SELECT i.set_num, ip.part_num, ip.color_id, SUM(ip.quantity) AS quantity
    FROM inventory_parts ip
    JOIN inventories i ON i.id = ip.inventory_id
   WHERE NOT ip.is_spare
     AND i.version = (SELECT MAX(i2.version) FROM inventories i2 WHERE i2.set_num = i.set_num)
     AND i.set_num NOT IN (SELECT set_num FROM instruction_parts)
   GROUP BY i.set_num, ip.part_num, ip.color_id
  UNION ALL
  SELECT set_num, part_num, color_id, SUM(quantity) AS quantity
    FROM set_parts_summary
   WHERE set_num NOT IN (SELECT set_num FROM instruction_parts)
     AND set_num NOT IN (SELECT set_num FROM inventories)
   GROUP BY set_num, part_num, color_id`

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm connection without migrating.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table and the requirement view.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := db.Exec(requirementsView).Error; err != nil {
		return fmt.Errorf("create requirement view: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetStats returns row counts of the catalog and user tables.
func (s *Store) GetStats(ctx context.Context) ([]storage.TableStats, error) {
	var out []storage.TableStats
	for _, m := range allModels() {
		var n int64
		stmt := &gorm.Statement{DB: s.db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Model(m).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", stmt.Schema.Table, err)
		}
		out = append(out, storage.TableStats{Table: stmt.Schema.Table, Rows: int(n)})
	}
	return out, nil
}

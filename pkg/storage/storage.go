package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/inventory"
	"github.com/sw33tLie/brickscope/pkg/reservation"
)

// ErrPlanNotFound is returned for build plans the user does not have.
var ErrPlanNotFound = reservation.ErrPlanNotFound

const defaultBusyTimeout = 5 * time.Second

type DB struct {
	sql *sql.DB
}

var (
	_ bom.InstructionSource    = (*DB)(nil)
	_ bom.VersionedSource      = (*DB)(nil)
	_ bom.SummarySource        = (*DB)(nil)
	_ inventory.Store          = (*DB)(nil)
	_ reservation.Store        = (*DB)(nil)
	_ discover.Store           = (*DB)(nil)
	_ discover.ExclusionSource = (*DB)(nil)
)

// Open opens (creating if needed) the SQLite database at path. A
// non-positive busyTimeout uses five seconds.
func Open(path string, busyTimeout time.Duration) (*DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS sets (
  set_num   TEXT PRIMARY KEY,
  name      TEXT,
  year      INTEGER,
  num_parts INTEGER
);
CREATE TABLE IF NOT EXISTS parts (
  part_num TEXT PRIMARY KEY,
  name     TEXT,
  img_url  TEXT
);
CREATE TABLE IF NOT EXISTS inventories (
  id      INTEGER PRIMARY KEY,
  set_num TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  UNIQUE(set_num, version)
);
CREATE TABLE IF NOT EXISTS inventory_parts (
  inventory_id INTEGER NOT NULL REFERENCES inventories(id) ON DELETE CASCADE,
  part_num     TEXT NOT NULL,
  color_id     INTEGER NOT NULL,
  quantity     INTEGER NOT NULL,
  is_spare     INTEGER NOT NULL DEFAULT 0 CHECK (is_spare IN (0,1))
);
CREATE INDEX IF NOT EXISTS idx_inventory_parts_inv ON inventory_parts(inventory_id);
CREATE INDEX IF NOT EXISTS idx_inventory_parts_pair ON inventory_parts(part_num, color_id);
CREATE TABLE IF NOT EXISTS instruction_parts (
  set_num  TEXT NOT NULL,
  part_num TEXT NOT NULL,
  color_id INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  is_spare INTEGER NOT NULL DEFAULT 0 CHECK (is_spare IN (0,1))
);
CREATE INDEX IF NOT EXISTS idx_instruction_parts_set ON instruction_parts(set_num);
CREATE TABLE IF NOT EXISTS set_parts_summary (
  set_num  TEXT NOT NULL,
  part_num TEXT NOT NULL,
  color_id INTEGER NOT NULL,
  quantity INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summary_set ON set_parts_summary(set_num);
CREATE INDEX IF NOT EXISTS idx_summary_pair ON set_parts_summary(part_num, color_id);
CREATE VIEW IF NOT EXISTS set_requirements AS
  SELECT set_num, part_num, color_id, SUM(quantity) AS quantity
    FROM instruction_parts
   WHERE is_spare = 0
   GROUP BY set_num, part_num, color_id
  UNION ALL
  SELECT i.set_num, ip.part_num, ip.color_id, SUM(ip.quantity) AS quantity
    FROM inventory_parts ip
    JOIN inventories i ON i.id = ip.inventory_id
   WHERE ip.is_spare = 0
     AND i.version = (SELECT MAX(i2.version) FROM inventories i2 WHERE i2.set_num = i.set_num)
     AND i.set_num NOT IN (SELECT set_num FROM instruction_parts)
   GROUP BY i.set_num, ip.part_num, ip.color_id
  UNION ALL
  SELECT set_num, part_num, color_id, SUM(quantity) AS quantity
    FROM set_parts_summary
   WHERE set_num NOT IN (SELECT set_num FROM instruction_parts)
     AND set_num NOT IN (SELECT set_num FROM inventories)
   GROUP BY set_num, part_num, color_id;
CREATE TABLE IF NOT EXISTS excluded_parts (
  part_num TEXT PRIMARY KEY,
  reason   TEXT
);

CREATE TABLE IF NOT EXISTS user_parts (
  id         INTEGER PRIMARY KEY,
  user_id    TEXT NOT NULL,
  part_num   TEXT NOT NULL,
  color_id   INTEGER NOT NULL,
  quantity   INTEGER NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(user_id, part_num, color_id)
);
CREATE TABLE IF NOT EXISTS user_sets (
  id       INTEGER PRIMARY KEY,
  user_id  TEXT NOT NULL,
  set_num  TEXT NOT NULL,
  added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_user_sets_user ON user_sets(user_id);
CREATE TABLE IF NOT EXISTS user_inventory (
  user_id  TEXT NOT NULL,
  part_num TEXT NOT NULL,
  color_id INTEGER NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  PRIMARY KEY(user_id, part_num, color_id)
);
CREATE TABLE IF NOT EXISTS user_reservations (
  user_id  TEXT NOT NULL,
  part_num TEXT NOT NULL,
  color_id INTEGER NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  PRIMARY KEY(user_id, part_num, color_id)
);
CREATE TABLE IF NOT EXISTS build_plans (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL,
  set_num    TEXT NOT NULL,
  bom_json   TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_build_plans_user ON build_plans(user_id, created_at);
CREATE TABLE IF NOT EXISTS discover_candidates (
  user_id     TEXT NOT NULL,
  set_num     TEXT NOT NULL,
  match_pairs INTEGER NOT NULL,
  PRIMARY KEY(user_id, set_num)
);
CREATE TABLE IF NOT EXISTS user_inv_version (
  user_id       TEXT PRIMARY KEY,
  version       INTEGER NOT NULL DEFAULT 0,
  inventory_rev INTEGER NOT NULL DEFAULT 0,
  indexed_rev   INTEGER NOT NULL DEFAULT 0
);
`

// withTx runs fn in a transaction, committing when fn returns nil.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// TableStats is the row count of one table.
type TableStats struct {
	Table string
	Rows  int
}

var statsTables = []string{
	"sets",
	"inventories",
	"inventory_parts",
	"instruction_parts",
	"set_parts_summary",
	"excluded_parts",
	"user_parts",
	"user_sets",
	"user_inventory",
	"user_reservations",
	"build_plans",
	"discover_candidates",
}

// GetStats returns row counts of the catalog and user tables.
func (d *DB) GetStats(ctx context.Context) ([]TableStats, error) {
	stats := make([]TableStats, 0, len(statsTables))
	for _, t := range statsTables {
		s := TableStats{Table: t}
		if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&s.Rows); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// CatalogSet is the metadata of one catalog set.
type CatalogSet struct {
	SetNum   string `json:"set_num"`
	Name     string `json:"name"`
	Year     int    `json:"year"`
	NumParts int    `json:"num_parts"`
}

// UpsertSet inserts or updates set metadata.
func (d *DB) UpsertSet(ctx context.Context, s CatalogSet) error {
	s.SetNum = bom.NormalizeSetNum(s.SetNum)
	if s.SetNum == "" {
		return fmt.Errorf("upsert set: blank set number")
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO sets(set_num, name, year, num_parts) VALUES(?,?,?,?)
ON CONFLICT(set_num) DO UPDATE SET name = excluded.name, year = excluded.year, num_parts = excluded.num_parts`,
		s.SetNum, nullIfEmpty(s.Name), s.Year, s.NumParts)
	return err
}

// GetSet returns the metadata of setNum. ok is false for unknown sets.
func (d *DB) GetSet(ctx context.Context, setNum string) (CatalogSet, bool, error) {
	s := CatalogSet{SetNum: bom.NormalizeSetNum(setNum)}
	var name sql.NullString
	var year, numParts sql.NullInt64
	err := d.sql.QueryRowContext(ctx, "SELECT name, year, num_parts FROM sets WHERE set_num = ?", s.SetNum).
		Scan(&name, &year, &numParts)
	if err == sql.ErrNoRows {
		return s, false, nil
	}
	if err != nil {
		return s, false, err
	}
	s.Name = name.String
	s.Year = int(year.Int64)
	s.NumParts = int(numParts.Int64)
	return s, true, nil
}

// InstructionRows returns the instruction-derived rows of setNum.
func (d *DB) InstructionRows(ctx context.Context, setNum string) ([]bom.Row, bool, error) {
	rows, err := d.queryRows(ctx, `SELECT ip.part_num, ip.color_id, ip.quantity, ip.is_spare, p.name, p.img_url
  FROM instruction_parts ip LEFT JOIN parts p ON p.part_num = ip.part_num
 WHERE ip.set_num = ?`, setNum)
	if err != nil {
		return nil, false, err
	}
	return rows, len(rows) > 0, nil
}

// LatestVersion returns the highest inventory version of setNum.
func (d *DB) LatestVersion(ctx context.Context, setNum string) (int, bool, error) {
	var v sql.NullInt64
	if err := d.sql.QueryRowContext(ctx, "SELECT MAX(version) FROM inventories WHERE set_num = ?", setNum).Scan(&v); err != nil {
		return 0, false, err
	}
	return int(v.Int64), v.Valid, nil
}

// VersionRows returns the raw rows of one inventory version.
func (d *DB) VersionRows(ctx context.Context, setNum string, version int) ([]bom.Row, error) {
	return d.queryRows(ctx, `SELECT ip.part_num, ip.color_id, ip.quantity, ip.is_spare, p.name, p.img_url
  FROM inventory_parts ip
  JOIN inventories i ON i.id = ip.inventory_id
  LEFT JOIN parts p ON p.part_num = ip.part_num
 WHERE i.set_num = ? AND i.version = ?`, setNum, version)
}

// SummaryRows returns the precomputed summary rows of setNum.
func (d *DB) SummaryRows(ctx context.Context, setNum string) ([]bom.Row, bool, error) {
	rows, err := d.queryRows(ctx, `SELECT s.part_num, s.color_id, s.quantity, 0, p.name, p.img_url
  FROM set_parts_summary s LEFT JOIN parts p ON p.part_num = s.part_num
 WHERE s.set_num = ?`, setNum)
	if err != nil {
		return nil, false, err
	}
	return rows, len(rows) > 0, nil
}

func (d *DB) queryRows(ctx context.Context, q string, args ...interface{}) ([]bom.Row, error) {
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bom.Row
	for rows.Next() {
		var r bom.Row
		var spare int
		var name, img sql.NullString
		if err := rows.Scan(&r.PartNum, &r.ColorID, &r.Quantity, &spare, &name, &img); err != nil {
			return nil, err
		}
		r.IsSpare = spare == 1
		r.Name = name.String
		r.ImageURL = img.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddInventoryVersion stores one catalog inventory version of a set,
// replacing an existing version with the same number.
func (d *DB) AddInventoryVersion(ctx context.Context, setNum string, version int, rows []bom.Row) error {
	setNum = bom.NormalizeSetNum(setNum)
	if setNum == "" {
		return fmt.Errorf("add inventory: blank set number")
	}
	if version <= 0 {
		version = 1
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM inventories WHERE set_num = ? AND version = ?", setNum, version); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "INSERT INTO inventories(set_num, version) VALUES(?,?)", setNum, version)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, r := range rows {
			if strings.TrimSpace(r.PartNum) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO inventory_parts(inventory_id, part_num, color_id, quantity, is_spare) VALUES(?,?,?,?,?)",
				id, r.PartNum, r.ColorID, r.Quantity, boolToInt(r.IsSpare)); err != nil {
				return err
			}
		}
		return upsertPartHints(ctx, tx, rows)
	})
}

// ReplaceInstructions replaces the instruction-derived rows of a set.
func (d *DB) ReplaceInstructions(ctx context.Context, setNum string, rows []bom.Row) error {
	setNum = bom.NormalizeSetNum(setNum)
	if setNum == "" {
		return fmt.Errorf("replace instructions: blank set number")
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM instruction_parts WHERE set_num = ?", setNum); err != nil {
			return err
		}
		for _, r := range rows {
			if strings.TrimSpace(r.PartNum) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO instruction_parts(set_num, part_num, color_id, quantity, is_spare) VALUES(?,?,?,?,?)",
				setNum, r.PartNum, r.ColorID, r.Quantity, boolToInt(r.IsSpare)); err != nil {
				return err
			}
		}
		return upsertPartHints(ctx, tx, rows)
	})
}

// ReplaceSummary replaces the summary rows of a set. Spare rows and rows
// that would not contribute to a BOM are not stored.
func (d *DB) ReplaceSummary(ctx context.Context, setNum string, rows []bom.Row) error {
	setNum = bom.NormalizeSetNum(setNum)
	if setNum == "" {
		return fmt.Errorf("replace summary: blank set number")
	}
	b := bom.Build(setNum, bom.TierSummary, rows)
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM set_parts_summary WHERE set_num = ?", setNum); err != nil {
			return err
		}
		for _, r := range b.Bin.Rows() {
			if _, err := tx.ExecContext(ctx, "INSERT INTO set_parts_summary(set_num, part_num, color_id, quantity) VALUES(?,?,?,?)",
				setNum, r.PartNum, r.ColorID, r.Quantity); err != nil {
				return err
			}
		}
		return upsertPartHints(ctx, tx, rows)
	})
}

func upsertPartHints(ctx context.Context, tx *sql.Tx, rows []bom.Row) error {
	for _, r := range rows {
		if r.PartNum == "" || (r.Name == "" && r.ImageURL == "") {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO parts(part_num, name, img_url) VALUES(?,?,?)
ON CONFLICT(part_num) DO UPDATE SET name = COALESCE(excluded.name, parts.name), img_url = COALESCE(excluded.img_url, parts.img_url)`,
			r.PartNum, nullIfEmpty(r.Name), nullIfEmpty(r.ImageURL)); err != nil {
			return err
		}
	}
	return nil
}

// CountSharedPairs counts, per catalog set, the required pairs that appear
// in pairs. The pairs are loaded into a temporary table inside a
// transaction that is always rolled back.
func (d *DB) CountSharedPairs(ctx context.Context, pairs []partbin.Key, minMatch int) (out []discover.Candidate, err error) {
	if minMatch < 1 {
		minMatch = 1
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS inv_pairs (
  part_num TEXT NOT NULL,
  color_id INTEGER NOT NULL,
  PRIMARY KEY(part_num, color_id)
)`); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM inv_pairs"); err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO inv_pairs(part_num, color_id) VALUES(?,?)")
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if _, err = stmt.ExecContext(ctx, p.PartNum, p.ColorID); err != nil {
			stmt.Close()
			return nil, err
		}
	}
	stmt.Close()

	rows, err := tx.QueryContext(ctx, `SELECT r.set_num, COUNT(*) AS n
  FROM set_requirements r
  JOIN inv_pairs p ON p.part_num = r.part_num AND p.color_id = r.color_id
 WHERE r.quantity > 0
 GROUP BY r.set_num
HAVING COUNT(*) >= ?
 ORDER BY n DESC, r.set_num`, minMatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c discover.Candidate
		if err = rows.Scan(&c.SetNum, &c.MatchPairs); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExcludePart adds or updates an excluded part number.
func (d *DB) ExcludePart(ctx context.Context, partNum, reason string) error {
	partNum = strings.TrimSpace(partNum)
	if partNum == "" {
		return fmt.Errorf("exclude part: blank part number")
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO excluded_parts(part_num, reason) VALUES(?,?)
ON CONFLICT(part_num) DO UPDATE SET reason = excluded.reason`, partNum, nullIfEmpty(reason))
	return err
}

// IncludePart removes partNum from the excluded list.
func (d *DB) IncludePart(ctx context.Context, partNum string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM excluded_parts WHERE part_num = ?", strings.TrimSpace(partNum))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExcludedParts returns every excluded part number with its reason.
func (d *DB) ExcludedParts(ctx context.Context) (map[string]string, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT part_num, reason FROM excluded_parts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p string
		var reason sql.NullString
		if err := rows.Scan(&p, &reason); err != nil {
			return nil, err
		}
		out[p] = reason.String
	}
	return out, rows.Err()
}

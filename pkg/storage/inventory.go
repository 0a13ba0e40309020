package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/inventory"
	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// AddPart adds qty to the user's manual row for k. A row whose quantity
// drops to zero or below is deleted.
func (d *DB) AddPart(ctx context.Context, userID string, k partbin.Key, qty int) error {
	userID = cleanUser(userID)
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_parts(user_id, part_num, color_id, quantity) VALUES(?,?,?,?)
ON CONFLICT(user_id, part_num, color_id) DO UPDATE SET quantity = user_parts.quantity + excluded.quantity, updated_at = CURRENT_TIMESTAMP`,
			userID, k.PartNum, k.ColorID, qty); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM user_parts WHERE user_id = ? AND part_num = ? AND color_id = ? AND quantity <= 0",
			userID, k.PartNum, k.ColorID)
		return err
	})
}

// SetPart replaces the user's manual row for k. qty <= 0 deletes it.
func (d *DB) SetPart(ctx context.Context, userID string, k partbin.Key, qty int) error {
	userID = cleanUser(userID)
	if qty <= 0 {
		_, err := d.RemovePart(ctx, userID, k)
		return err
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO user_parts(user_id, part_num, color_id, quantity) VALUES(?,?,?,?)
ON CONFLICT(user_id, part_num, color_id) DO UPDATE SET quantity = excluded.quantity, updated_at = CURRENT_TIMESTAMP`,
		userID, k.PartNum, k.ColorID, qty)
	return err
}

// RemovePart deletes the user's manual row for k and reports whether one
// existed.
func (d *DB) RemovePart(ctx context.Context, userID string, k partbin.Key) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM user_parts WHERE user_id = ? AND part_num = ? AND color_id = ?",
		cleanUser(userID), k.PartNum, k.ColorID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListParts returns the user's manual rows ordered by part and color.
func (d *DB) ListParts(ctx context.Context, userID string) ([]partbin.Row, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT part_num, color_id, quantity FROM user_parts WHERE user_id = ? ORDER BY part_num, color_id",
		cleanUser(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []partbin.Row
	for rows.Next() {
		var r partbin.Row
		if err := rows.Scan(&r.PartNum, &r.ColorID, &r.Quantity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddOwnedSet records one more owned copy of a set.
func (d *DB) AddOwnedSet(ctx context.Context, userID, setID string) (string, error) {
	setNum := bom.NormalizeSetNum(setID)
	if setNum == "" {
		return "", nil
	}
	_, err := d.sql.ExecContext(ctx, "INSERT INTO user_sets(user_id, set_num) VALUES(?,?)", cleanUser(userID), setNum)
	return setNum, err
}

// RemoveOwnedSet removes one owned copy of a set and reports whether a copy
// existed.
func (d *DB) RemoveOwnedSet(ctx context.Context, userID, setID string) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM user_sets WHERE id = (
  SELECT id FROM user_sets WHERE user_id = ? AND set_num = ? ORDER BY id DESC LIMIT 1
)`, cleanUser(userID), bom.NormalizeSetNum(setID))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListOwnedSets returns one entry per owned copy, oldest first.
func (d *DB) ListOwnedSets(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT set_num FROM user_sets WHERE user_id = ? ORDER BY id", cleanUser(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadSources returns every raw inventory source of the user.
func (d *DB) LoadSources(ctx context.Context, userID string) (inventory.Sources, error) {
	parts, err := d.ListParts(ctx, userID)
	if err != nil {
		return inventory.Sources{}, fmt.Errorf("list parts: %w", err)
	}
	sets, err := d.ListOwnedSets(ctx, userID)
	if err != nil {
		return inventory.Sources{}, fmt.Errorf("list owned sets: %w", err)
	}
	return inventory.Sources{Parts: parts, OwnedSets: sets}, nil
}

// ReplaceInventory atomically replaces the user's aggregated inventory and
// bumps the inventory revision.
func (d *DB) ReplaceInventory(ctx context.Context, userID string, inv *partbin.Bin) error {
	userID = cleanUser(userID)
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_inventory WHERE user_id = ?", userID); err != nil {
			return err
		}
		if err := insertBin(tx, "user_inventory", userID, inv); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO user_inv_version(user_id, inventory_rev) VALUES(?, 1)
ON CONFLICT(user_id) DO UPDATE SET inventory_rev = user_inv_version.inventory_rev + 1`, userID)
		return err
	})
}

// Inventory returns the user's aggregated inventory.
func (d *DB) Inventory(ctx context.Context, userID string) (*partbin.Bin, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT part_num, color_id, quantity FROM user_inventory WHERE user_id = ?", cleanUser(userID))
	if err != nil {
		return nil, err
	}
	return scanBin(rows)
}

// InventoryPairs returns the distinct pairs of the user's aggregated
// inventory with the inventory revision.
func (d *DB) InventoryPairs(ctx context.Context, userID string) ([]partbin.Key, int64, error) {
	userID = cleanUser(userID)
	var (
		pairs []partbin.Key
		rev   int64
	)
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(inventory_rev), 0) FROM user_inv_version WHERE user_id = ?", userID).Scan(&rev); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, "SELECT part_num, color_id FROM user_inventory WHERE user_id = ? AND quantity > 0 ORDER BY part_num, color_id", userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k partbin.Key
			if err := rows.Scan(&k.PartNum, &k.ColorID); err != nil {
				return err
			}
			pairs = append(pairs, k)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return pairs, rev, nil
}

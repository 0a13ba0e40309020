package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cleanUser(userID string) string {
	return strings.TrimSpace(userID)
}

// scanBin reads (part_num, color_id, quantity) rows into a bin.
func scanBin(rows *sql.Rows) (*partbin.Bin, error) {
	defer rows.Close()
	b := partbin.New()
	for rows.Next() {
		var r partbin.Row
		if err := rows.Scan(&r.PartNum, &r.ColorID, &r.Quantity); err != nil {
			return nil, err
		}
		b.Add(r.Key(), r.Quantity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// insertBin writes every entry of b into table for userID. The table must
// have (user_id, part_num, color_id, quantity) columns.
func insertBin(tx *sql.Tx, table, userID string, b *partbin.Bin) error {
	if b.Empty() {
		return nil
	}
	stmt, err := tx.Prepare("INSERT INTO " + table + "(user_id, part_num, color_id, quantity) VALUES(?,?,?,?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range b.Rows() {
		if _, err := stmt.Exec(userID, r.PartNum, r.ColorID, r.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// parseTimestamp accepts both SQLite CURRENT_TIMESTAMP and RFC3339 values.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}

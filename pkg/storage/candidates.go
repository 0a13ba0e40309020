package storage

import (
	"context"
	"database/sql"

	"github.com/sw33tLie/brickscope/pkg/discover"
)

// ReplaceCandidates swaps the user's candidate list and increments the
// version in one transaction.
func (d *DB) ReplaceCandidates(ctx context.Context, userID string, cands []discover.Candidate, rev int64) (int64, error) {
	userID = cleanUser(userID)
	var version int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM discover_candidates WHERE user_id = ?", userID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO discover_candidates(user_id, set_num, match_pairs) VALUES(?,?,?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range cands {
			if _, err := stmt.ExecContext(ctx, userID, c.SetNum, c.MatchPairs); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_inv_version(user_id, version, indexed_rev) VALUES(?, 1, ?)
ON CONFLICT(user_id) DO UPDATE SET version = user_inv_version.version + 1, indexed_rev = excluded.indexed_rev`, userID, rev); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, "SELECT version FROM user_inv_version WHERE user_id = ?", userID).Scan(&version)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// ClearCandidates deletes the user's candidates and resets the version.
func (d *DB) ClearCandidates(ctx context.Context, userID string, rev int64) error {
	userID = cleanUser(userID)
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM discover_candidates WHERE user_id = ?", userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO user_inv_version(user_id, version, indexed_rev) VALUES(?, 0, ?)
ON CONFLICT(user_id) DO UPDATE SET version = 0, indexed_rev = excluded.indexed_rev`, userID, rev)
		return err
	})
}

// Candidates returns the user's candidates, most shared pairs first.
func (d *DB) Candidates(ctx context.Context, userID string) ([]discover.Candidate, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT set_num, match_pairs FROM discover_candidates WHERE user_id = ? ORDER BY match_pairs DESC, set_num",
		cleanUser(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []discover.Candidate
	for rows.Next() {
		var c discover.Candidate
		if err := rows.Scan(&c.SetNum, &c.MatchPairs); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IndexState returns the user's version counters. Unknown users have the
// zero state.
func (d *DB) IndexState(ctx context.Context, userID string) (discover.State, error) {
	var s discover.State
	err := d.sql.QueryRowContext(ctx, "SELECT version, inventory_rev, indexed_rev FROM user_inv_version WHERE user_id = ?", cleanUser(userID)).
		Scan(&s.Version, &s.InventoryRev, &s.IndexedRev)
	if err == sql.ErrNoRows {
		return discover.State{}, nil
	}
	return s, err
}

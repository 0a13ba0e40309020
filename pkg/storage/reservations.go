package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/reservation"
)

// LoadLedger returns the user's reserved bin.
func (d *DB) LoadLedger(ctx context.Context, userID string) (*partbin.Bin, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT part_num, color_id, quantity FROM user_reservations WHERE user_id = ?", cleanUser(userID))
	if err != nil {
		return nil, err
	}
	return scanBin(rows)
}

// UpdateLedger runs fn against the user's reserved bin and writes the
// result and the plan change in one transaction. The transaction opens
// with a write, so it holds the database write lock before the ledger is
// read and a concurrent updater waits on busy_timeout.
func (d *DB) UpdateLedger(ctx context.Context, userID string, fn reservation.UpdateFunc) (*partbin.Bin, error) {
	userID = cleanUser(userID)
	var held *partbin.Bin
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO user_inv_version(user_id) VALUES(?) ON CONFLICT(user_id) DO NOTHING", userID); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, "SELECT part_num, color_id, quantity FROM user_reservations WHERE user_id = ?", userID)
		if err != nil {
			return err
		}
		b, err := scanBin(rows)
		if err != nil {
			return err
		}
		change, err := fn(b, func(id uuid.UUID) (*reservation.Plan, error) {
			return queryPlan(ctx, tx, userID, id)
		})
		if err != nil {
			return err
		}
		if err := writeLedger(ctx, tx, userID, b, change); err != nil {
			return err
		}
		held = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

func writeLedger(ctx context.Context, tx *sql.Tx, userID string, held *partbin.Bin, change reservation.PlanChange) error {
	var snapshot []byte
	if change.Open != nil {
		var err error
		if snapshot, err = encodePlanParts(change.Open.SetNum, change.Open.Parts); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_reservations WHERE user_id = ?", userID); err != nil {
		return err
	}
	if err := insertBin(tx, "user_reservations", userID, held); err != nil {
		return err
	}
	if change.CloseAll {
		if _, err := tx.ExecContext(ctx, "DELETE FROM build_plans WHERE user_id = ?", userID); err != nil {
			return err
		}
	}
	for _, id := range change.Close {
		if _, err := tx.ExecContext(ctx, "DELETE FROM build_plans WHERE user_id = ? AND id = ?", userID, id.String()); err != nil {
			return err
		}
	}
	if p := change.Open; p != nil {
		if _, err := tx.ExecContext(ctx, "INSERT INTO build_plans(id, user_id, set_num, bom_json, created_at) VALUES(?,?,?,?,?)",
			p.ID.String(), userID, p.SetNum, string(snapshot), p.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return nil
}

// ListPlans returns the user's open plans, oldest first.
func (d *DB) ListPlans(ctx context.Context, userID string) ([]reservation.Plan, error) {
	userID = cleanUser(userID)
	rows, err := d.sql.QueryContext(ctx, "SELECT id, set_num, bom_json, created_at FROM build_plans WHERE user_id = ? ORDER BY created_at, id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reservation.Plan
	for rows.Next() {
		p, err := scanPlan(rows, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPlan returns one plan or ErrPlanNotFound.
func (d *DB) GetPlan(ctx context.Context, userID string, id uuid.UUID) (*reservation.Plan, error) {
	return queryPlan(ctx, d.sql, cleanUser(userID), id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPlan(ctx context.Context, q querier, userID string, id uuid.UUID) (*reservation.Plan, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, set_num, bom_json, created_at FROM build_plans WHERE user_id = ? AND id = ?", userID, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrPlanNotFound
	}
	return scanPlan(rows, userID)
}

func scanPlan(rows *sql.Rows, userID string) (*reservation.Plan, error) {
	var id, setNum, snapshot, created string
	if err := rows.Scan(&id, &setNum, &snapshot, &created); err != nil {
		return nil, err
	}
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("plan id %q: %w", id, err)
	}
	parsed, err := bom.ParseRows([]byte(snapshot))
	if err != nil {
		return nil, fmt.Errorf("plan %s snapshot: %w", id, err)
	}
	return &reservation.Plan{
		ID:        pid,
		UserID:    userID,
		SetNum:    setNum,
		Parts:     bom.Build(setNum, bom.TierNone, parsed).Bin,
		CreatedAt: parseTimestamp(created),
	}, nil
}

func encodePlanParts(setNum string, parts *partbin.Bin) ([]byte, error) {
	rows := make([]bom.Row, 0, parts.Len())
	for _, r := range parts.Rows() {
		rows = append(rows, bom.Row{PartNum: r.PartNum, ColorID: r.ColorID, Quantity: r.Quantity})
	}
	return json.Marshal(struct {
		SetNum string    `json:"set_num"`
		Rows   []bom.Row `json:"rows"`
	}{setNum, rows})
}

package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/inventory"
	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/reservation"
)

func cleanUser(userID string) string {
	return strings.TrimSpace(userID)
}

// AddPart adds qty to the user's manual row for k, deleting the row when it
// drops to zero or below.
func (s *Store) AddPart(ctx context.Context, userID string, k partbin.Key, qty int) error {
	userID = cleanUser(userID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "part_num"}, {Name: "color_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("user_parts.quantity + EXCLUDED.quantity"),
				"updated_at": gorm.Expr("now()"),
			}),
		}).Create(&UserPart{UserID: userID, PartNum: k.PartNum, ColorID: k.ColorID, Quantity: qty}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND part_num = ? AND color_id = ? AND quantity <= 0", userID, k.PartNum, k.ColorID).
			Delete(&UserPart{}).Error
	})
}

// SetPart replaces the user's manual row for k. qty <= 0 deletes it.
func (s *Store) SetPart(ctx context.Context, userID string, k partbin.Key, qty int) error {
	if qty <= 0 {
		_, err := s.RemovePart(ctx, userID, k)
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "part_num"}, {Name: "color_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&UserPart{UserID: cleanUser(userID), PartNum: k.PartNum, ColorID: k.ColorID, Quantity: qty}).Error
}

func (s *Store) RemovePart(ctx context.Context, userID string, k partbin.Key) (bool, error) {
	res := s.db.WithContext(ctx).Where("user_id = ? AND part_num = ? AND color_id = ?", cleanUser(userID), k.PartNum, k.ColorID).
		Delete(&UserPart{})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ListParts(ctx context.Context, userID string) ([]partbin.Row, error) {
	var models []UserPart
	if err := s.db.WithContext(ctx).Where("user_id = ?", cleanUser(userID)).Order("part_num, color_id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]partbin.Row, 0, len(models))
	for _, m := range models {
		out = append(out, partbin.Row{PartNum: m.PartNum, ColorID: m.ColorID, Quantity: m.Quantity})
	}
	return out, nil
}

func (s *Store) AddOwnedSet(ctx context.Context, userID, setID string) (string, error) {
	setNum := bom.NormalizeSetNum(setID)
	if setNum == "" {
		return "", nil
	}
	return setNum, s.db.WithContext(ctx).Create(&UserSet{UserID: cleanUser(userID), SetNum: setNum}).Error
}

func (s *Store) RemoveOwnedSet(ctx context.Context, userID, setID string) (bool, error) {
	var last UserSet
	err := s.db.WithContext(ctx).Where("user_id = ? AND set_num = ?", cleanUser(userID), bom.NormalizeSetNum(setID)).
		Order("id DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Delete(&UserSet{}, last.ID)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ListOwnedSets(ctx context.Context, userID string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&UserSet{}).Where("user_id = ?", cleanUser(userID)).Order("id").Pluck("set_num", &out).Error
	return out, err
}

func (s *Store) LoadSources(ctx context.Context, userID string) (inventory.Sources, error) {
	parts, err := s.ListParts(ctx, userID)
	if err != nil {
		return inventory.Sources{}, fmt.Errorf("list parts: %w", err)
	}
	sets, err := s.ListOwnedSets(ctx, userID)
	if err != nil {
		return inventory.Sources{}, fmt.Errorf("list owned sets: %w", err)
	}
	return inventory.Sources{Parts: parts, OwnedSets: sets}, nil
}

func (s *Store) ReplaceInventory(ctx context.Context, userID string, inv *partbin.Bin) error {
	userID = cleanUser(userID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&UserInventory{}).Error; err != nil {
			return err
		}
		if rows := binModels[UserInventory](userID, inv); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Exec(`INSERT INTO user_inv_version(user_id, inventory_rev) VALUES(?, 1)
ON CONFLICT(user_id) DO UPDATE SET inventory_rev = user_inv_version.inventory_rev + 1`, userID).Error
	})
}

func (s *Store) Inventory(ctx context.Context, userID string) (*partbin.Bin, error) {
	var rows []UserInventory
	if err := s.db.WithContext(ctx).Where("user_id = ?", cleanUser(userID)).Find(&rows).Error; err != nil {
		return nil, err
	}
	b := partbin.New()
	for _, r := range rows {
		b.Add(partbin.Key{PartNum: r.PartNum, ColorID: r.ColorID}, r.Quantity)
	}
	return b, nil
}

func (s *Store) InventoryPairs(ctx context.Context, userID string) ([]partbin.Key, int64, error) {
	userID = cleanUser(userID)
	var (
		pairs []partbin.Key
		rev   int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v UserInvVersion
		if err := tx.Where("user_id = ?", userID).Limit(1).Find(&v).Error; err != nil {
			return err
		}
		rev = v.InventoryRev
		var rows []UserInventory
		if err := tx.Where("user_id = ? AND quantity > 0", userID).Order("part_num, color_id").Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			pairs = append(pairs, partbin.Key{PartNum: r.PartNum, ColorID: r.ColorID})
		}
		return nil
	})
	return pairs, rev, err
}

func (s *Store) LoadLedger(ctx context.Context, userID string) (*partbin.Bin, error) {
	var rows []UserReservation
	if err := s.db.WithContext(ctx).Where("user_id = ?", cleanUser(userID)).Find(&rows).Error; err != nil {
		return nil, err
	}
	b := partbin.New()
	for _, r := range rows {
		b.Add(partbin.Key{PartNum: r.PartNum, ColorID: r.ColorID}, r.Quantity)
	}
	return b, nil
}

// UpdateLedger takes a per-user transaction advisory lock before reading
// the ledger, so concurrent updaters from any process queue behind it.
func (s *Store) UpdateLedger(ctx context.Context, userID string, fn reservation.UpdateFunc) (*partbin.Bin, error) {
	userID = cleanUser(userID)
	var held *partbin.Bin
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "ledger:"+userID).Error; err != nil {
			return err
		}
		var rows []UserReservation
		if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
			return err
		}
		b := partbin.New()
		for _, r := range rows {
			b.Add(partbin.Key{PartNum: r.PartNum, ColorID: r.ColorID}, r.Quantity)
		}
		change, err := fn(b, func(id uuid.UUID) (*reservation.Plan, error) {
			return findPlan(tx, userID, id)
		})
		if err != nil {
			return err
		}
		if err := writeLedger(tx, userID, b, change); err != nil {
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

func writeLedger(tx *gorm.DB, userID string, held *partbin.Bin, change reservation.PlanChange) error {
	var open *BuildPlan
	if p := change.Open; p != nil {
		snapshot, err := encodePlanParts(p.SetNum, p.Parts)
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		open = &BuildPlan{ID: p.ID.String(), UserID: userID, SetNum: p.SetNum, BOMJSON: string(snapshot), CreatedAt: p.CreatedAt.UTC()}
	}
	if err := tx.Where("user_id = ?", userID).Delete(&UserReservation{}).Error; err != nil {
		return err
	}
	if rows := binModels[UserReservation](userID, held); len(rows) > 0 {
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
	}
	if change.CloseAll {
		if err := tx.Where("user_id = ?", userID).Delete(&BuildPlan{}).Error; err != nil {
			return err
		}
	}
	for _, id := range change.Close {
		if err := tx.Where("user_id = ? AND id = ?", userID, id.String()).Delete(&BuildPlan{}).Error; err != nil {
			return err
		}
	}
	if open != nil {
		return tx.Create(open).Error
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context, userID string) ([]reservation.Plan, error) {
	userID = cleanUser(userID)
	var models []BuildPlan
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]reservation.Plan, 0, len(models))
	for _, m := range models {
		p, err := planFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) GetPlan(ctx context.Context, userID string, id uuid.UUID) (*reservation.Plan, error) {
	return findPlan(s.db.WithContext(ctx), cleanUser(userID), id)
}

func findPlan(db *gorm.DB, userID string, id uuid.UUID) (*reservation.Plan, error) {
	var m BuildPlan
	err := db.Where("user_id = ? AND id = ?", userID, id.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return planFromModel(m)
}

func planFromModel(m BuildPlan) (*reservation.Plan, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("plan id %q: %w", m.ID, err)
	}
	rows, err := bom.ParseRows([]byte(m.BOMJSON))
	if err != nil {
		return nil, fmt.Errorf("plan %s snapshot: %w", m.ID, err)
	}
	return &reservation.Plan{
		ID:        id,
		UserID:    m.UserID,
		SetNum:    m.SetNum,
		Parts:     bom.Build(m.SetNum, bom.TierNone, rows).Bin,
		CreatedAt: m.CreatedAt.UTC(),
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

// binModels converts a bin into rows of one of the bin tables.
func binModels[T UserInventory | UserReservation](userID string, b *partbin.Bin) []T {
	out := make([]T, 0, b.Len())
	for _, r := range b.Rows() {
		out = append(out, T{UserID: userID, PartNum: r.PartNum, ColorID: r.ColorID, Quantity: r.Quantity})
	}
	return out
}

func (s *Store) ReplaceCandidates(ctx context.Context, userID string, cands []discover.Candidate, rev int64) (int64, error) {
	userID = cleanUser(userID)
	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&DiscoverCandidate{}).Error; err != nil {
			return err
		}
		if len(cands) > 0 {
			rows := make([]DiscoverCandidate, 0, len(cands))
			for _, c := range cands {
				rows = append(rows, DiscoverCandidate{UserID: userID, SetNum: c.SetNum, MatchPairs: c.MatchPairs})
			}
			if err := tx.CreateInBatches(&rows, 500).Error; err != nil {
				return err
			}
		}
		return tx.Raw(`INSERT INTO user_inv_version(user_id, version, indexed_rev) VALUES(?, 1, ?)
ON CONFLICT(user_id) DO UPDATE SET version = user_inv_version.version + 1, indexed_rev = EXCLUDED.indexed_rev
RETURNING version`, userID, rev).Scan(&version).Error
	})
	return version, err
}

func (s *Store) ClearCandidates(ctx context.Context, userID string, rev int64) error {
	userID = cleanUser(userID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&DiscoverCandidate{}).Error; err != nil {
			return err
		}
		return tx.Exec(`INSERT INTO user_inv_version(user_id, version, indexed_rev) VALUES(?, 0, ?)
ON CONFLICT(user_id) DO UPDATE SET version = 0, indexed_rev = EXCLUDED.indexed_rev`, userID, rev).Error
	})
}

func (s *Store) Candidates(ctx context.Context, userID string) ([]discover.Candidate, error) {
	var rows []DiscoverCandidate
	if err := s.db.WithContext(ctx).Where("user_id = ?", cleanUser(userID)).Order("match_pairs DESC, set_num").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]discover.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, discover.Candidate{SetNum: r.SetNum, MatchPairs: r.MatchPairs})
	}
	return out, nil
}

func (s *Store) IndexState(ctx context.Context, userID string) (discover.State, error) {
	var v UserInvVersion
	if err := s.db.WithContext(ctx).Where("user_id = ?", cleanUser(userID)).Limit(1).Find(&v).Error; err != nil {
		return discover.State{}, err
	}
	return discover.State{Version: v.Version, InventoryRev: v.InventoryRev, IndexedRev: v.IndexedRev}, nil
}

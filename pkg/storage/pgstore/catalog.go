package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sw33tLie/brickscope/pkg/bom"
	"github.com/sw33tLie/brickscope/pkg/discover"
	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/storage"
)

type hintedRow struct {
	PartNum  string
	ColorID  int
	Quantity int
	IsSpare  bool
	Name     *string
	ImgURL   *string
}

func (h hintedRow) toRow() bom.Row {
	r := bom.Row{PartNum: h.PartNum, ColorID: h.ColorID, Quantity: h.Quantity, IsSpare: h.IsSpare}
	if h.Name != nil {
		r.Name = *h.Name
	}
	if h.ImgURL != nil {
		r.ImageURL = *h.ImgURL
	}
	return r
}

func toRows(in []hintedRow) []bom.Row {
	out := make([]bom.Row, 0, len(in))
	for _, h := range in {
		out = append(out, h.toRow())
	}
	return out
}

// UpsertSet inserts or updates set metadata.
func (s *Store) UpsertSet(ctx context.Context, set storage.CatalogSet) error {
	set.SetNum = bom.NormalizeSetNum(set.SetNum)
	if set.SetNum == "" {
		return fmt.Errorf("upsert set: blank set number")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "set_num"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "year", "num_parts"}),
	}).Create(&Set{SetNum: set.SetNum, Name: set.Name, Year: set.Year, NumParts: set.NumParts}).Error
}

// GetSet returns the metadata of setNum. ok is false for unknown sets.
func (s *Store) GetSet(ctx context.Context, setNum string) (storage.CatalogSet, bool, error) {
	setNum = bom.NormalizeSetNum(setNum)
	var m Set
	err := s.db.WithContext(ctx).First(&m, "set_num = ?", setNum).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.CatalogSet{SetNum: setNum}, false, nil
	}
	if err != nil {
		return storage.CatalogSet{SetNum: setNum}, false, err
	}
	return storage.CatalogSet{SetNum: m.SetNum, Name: m.Name, Year: m.Year, NumParts: m.NumParts}, true, nil
}

func (s *Store) InstructionRows(ctx context.Context, setNum string) ([]bom.Row, bool, error) {
	var rows []hintedRow
	err := s.db.WithContext(ctx).Table("instruction_parts AS ip").
		Select("ip.part_num, ip.color_id, ip.quantity, ip.is_spare, p.name, p.img_url").
		Joins("LEFT JOIN parts p ON p.part_num = ip.part_num").
		Where("ip.set_num = ?", setNum).
		Scan(&rows).Error
	if err != nil {
		return nil, false, err
	}
	return toRows(rows), len(rows) > 0, nil
}

func (s *Store) LatestVersion(ctx context.Context, setNum string) (int, bool, error) {
	var v sql.NullInt64
	if err := s.db.WithContext(ctx).Model(&Inventory{}).Where("set_num = ?", setNum).
		Select("MAX(version)").Row().Scan(&v); err != nil {
		return 0, false, err
	}
	return int(v.Int64), v.Valid, nil
}

func (s *Store) VersionRows(ctx context.Context, setNum string, version int) ([]bom.Row, error) {
	var rows []hintedRow
	err := s.db.WithContext(ctx).Table("inventory_parts AS ip").
		Select("ip.part_num, ip.color_id, ip.quantity, ip.is_spare, p.name, p.img_url").
		Joins("JOIN inventories i ON i.id = ip.inventory_id").
		Joins("LEFT JOIN parts p ON p.part_num = ip.part_num").
		Where("i.set_num = ? AND i.version = ?", setNum, version).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRows(rows), nil
}

func (s *Store) SummaryRows(ctx context.Context, setNum string) ([]bom.Row, bool, error) {
	var rows []hintedRow
	err := s.db.WithContext(ctx).Table("set_parts_summary AS sp").
		Select("sp.part_num, sp.color_id, sp.quantity, false AS is_spare, p.name, p.img_url").
		Joins("LEFT JOIN parts p ON p.part_num = sp.part_num").
		Where("sp.set_num = ?", setNum).
		Scan(&rows).Error
	if err != nil {
		return nil, false, err
	}
	return toRows(rows), len(rows) > 0, nil
}

// AddInventoryVersion stores one catalog inventory version of a set.
func (s *Store) AddInventoryVersion(ctx context.Context, setNum string, version int, rows []bom.Row) error {
	setNum = bom.NormalizeSetNum(setNum)
	if setNum == "" {
		return fmt.Errorf("add inventory: blank set number")
	}
	if version <= 0 {
		version = 1
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("set_num = ? AND version = ?", setNum, version).Delete(&Inventory{}).Error; err != nil {
			return err
		}
		inv := Inventory{SetNum: setNum, Version: version}
		for _, r := range rows {
			if strings.TrimSpace(r.PartNum) == "" {
				continue
			}
			inv.Parts = append(inv.Parts, InventoryPart{PartNum: r.PartNum, ColorID: r.ColorID, Quantity: r.Quantity, IsSpare: r.IsSpare})
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}
		return upsertPartHints(tx, rows)
	})
}

// ReplaceInstructions replaces the instruction-derived rows of a set.
func (s *Store) ReplaceInstructions(ctx context.Context, setNum string, rows []bom.Row) error {
	setNum = bom.NormalizeSetNum(setNum)
	if setNum == "" {
		return fmt.Errorf("replace instructions: blank set number")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("set_num = ?", setNum).Delete(&InstructionPart{}).Error; err != nil {
			return err
		}
		var models []InstructionPart
		for _, r := range rows {
			if strings.TrimSpace(r.PartNum) == "" {
				continue
			}
			models = append(models, InstructionPart{SetNum: setNum, PartNum: r.PartNum, ColorID: r.ColorID, Quantity: r.Quantity, IsSpare: r.IsSpare})
		}
		if len(models) > 0 {
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		return upsertPartHints(tx, rows)
	})
}

// ReplaceSummary replaces the summary rows of a set, spares excluded.
func (s *Store) ReplaceSummary(ctx context.Context, setNum string, rows []bom.Row) error {
	setNum = bom.NormalizeSetNum(setNum)
	if setNum == "" {
		return fmt.Errorf("replace summary: blank set number")
	}
	b := bom.Build(setNum, bom.TierSummary, rows)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("set_num = ?", setNum).Delete(&SummaryPart{}).Error; err != nil {
			return err
		}
		var models []SummaryPart
		for _, r := range b.Bin.Rows() {
			models = append(models, SummaryPart{SetNum: setNum, PartNum: r.PartNum, ColorID: r.ColorID, Quantity: r.Quantity})
		}
		if len(models) > 0 {
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		return upsertPartHints(tx, rows)
	})
}

func upsertPartHints(tx *gorm.DB, rows []bom.Row) error {
	for _, r := range rows {
		if r.PartNum == "" || (r.Name == "" && r.ImageURL == "") {
			continue
		}
		var cols []string
		if r.Name != "" {
			cols = append(cols, "name")
		}
		if r.ImageURL != "" {
			cols = append(cols, "img_url")
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "part_num"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).Create(&Part{PartNum: r.PartNum, Name: r.Name, ImgURL: r.ImageURL}).Error; err != nil {
			return err
		}
	}
	return nil
}

// LoadCatalog writes a parsed catalog document.
func (s *Store) LoadCatalog(ctx context.Context, c *storage.Catalog) (storage.LoadResult, error) {
	var res storage.LoadResult
	for _, e := range c.Sets {
		if err := s.UpsertSet(ctx, e.CatalogSet); err != nil {
			return res, fmt.Errorf("set %s: %w", e.SetNum, err)
		}
		res.Sets++
		for _, v := range e.Versions {
			if err := s.AddInventoryVersion(ctx, e.SetNum, v.Version, v.Rows); err != nil {
				return res, fmt.Errorf("set %s v%d: %w", e.SetNum, v.Version, err)
			}
			res.Versions++
		}
		if len(e.Instructions) > 0 {
			if err := s.ReplaceInstructions(ctx, e.SetNum, e.Instructions); err != nil {
				return res, fmt.Errorf("set %s instructions: %w", e.SetNum, err)
			}
			res.Instructions++
		}
		if len(e.Summary) > 0 {
			if err := s.ReplaceSummary(ctx, e.SetNum, e.Summary); err != nil {
				return res, fmt.Errorf("set %s summary: %w", e.SetNum, err)
			}
			res.Summaries++
		}
	}
	for p, reason := range c.Excluded {
		if err := s.ExcludePart(ctx, p, reason); err != nil {
			return res, err
		}
		res.Excluded++
	}
	return res, nil
}

// pairsJSON encodes distinct pairs for json_to_recordset.
func pairsJSON(pairs []partbin.Key) (string, error) {
	seen := make(map[partbin.Key]struct{}, len(pairs))
	uniq := make([]partbin.Key, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
	}
	b, err := json.Marshal(uniq)
	return string(b), err
}

// CountSharedPairs joins the requirement view against the pairs passed as
// one JSON recordset.
func (s *Store) CountSharedPairs(ctx context.Context, pairs []partbin.Key, minMatch int) ([]discover.Candidate, error) {
	if minMatch < 1 {
		minMatch = 1
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	doc, err := pairsJSON(pairs)
	if err != nil {
		return nil, err
	}
	var out []discover.Candidate
	err = s.db.WithContext(ctx).Raw(`SELECT r.set_num AS set_num, COUNT(*) AS match_pairs
  FROM set_requirements r
  JOIN json_to_recordset(?::json) AS p(part_num text, color_id int)
    ON p.part_num = r.part_num AND p.color_id = r.color_id
 WHERE r.quantity > 0
 GROUP BY r.set_num
HAVING COUNT(*) >= ?
 ORDER BY match_pairs DESC, r.set_num`, doc, minMatch).Scan(&out).Error
	return out, err
}

// ExcludePart adds or updates an excluded part number.
func (s *Store) ExcludePart(ctx context.Context, partNum, reason string) error {
	partNum = strings.TrimSpace(partNum)
	if partNum == "" {
		return fmt.Errorf("exclude part: blank part number")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "part_num"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(&ExcludedPart{PartNum: partNum, Reason: reason}).Error
}

// IncludePart removes partNum from the excluded list.
func (s *Store) IncludePart(ctx context.Context, partNum string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&ExcludedPart{}, "part_num = ?", strings.TrimSpace(partNum))
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ExcludedParts(ctx context.Context) (map[string]string, error) {
	var rows []ExcludedPart
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.PartNum] = r.Reason
	}
	return out, nil
}

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/brickscope/pkg/bom"
)

// CatalogVersion is one inventory version of a catalog document.
type CatalogVersion struct {
	Version int
	Rows    []bom.Row
}

// CatalogEntry is one set of a catalog document with all of its tiers.
type CatalogEntry struct {
	CatalogSet
	Versions     []CatalogVersion
	Instructions []bom.Row
	Summary      []bom.Row
}

// Catalog is a parsed catalog document.
type Catalog struct {
	Sets     []CatalogEntry
	Excluded map[string]string
}

// ParseCatalog parses a JSON catalog document:
//
//	{
//	  "sets": [{
//	    "set_num": "70618", "name": "...", "year": 2017, "num_parts": 2,
//	    "inventories": [{"version": 1, "parts": [...]}],
//	    "instructions": [...],
//	    "summary": [...]
//	  }],
//	  "excluded_parts": ["3069b", {"part_num": "973", "reason": "torso"}]
//	}
//
// Part arrays accept every row shape bom.ParseRows does.
func ParseCatalog(data []byte) (*Catalog, error) {
	if !gjson.ValidBytes(data) {
		return nil, bom.ErrInvalidJSON
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, bom.ErrInvalidJSON
	}

	c := &Catalog{Excluded: map[string]string{}}
	var perr error
	doc.Get("sets").ForEach(func(_, s gjson.Result) bool {
		e := CatalogEntry{CatalogSet: CatalogSet{
			SetNum:   bom.NormalizeSetNum(s.Get("set_num").String()),
			Name:     s.Get("name").String(),
			Year:     int(s.Get("year").Int()),
			NumParts: int(s.Get("num_parts").Int()),
		}}
		if e.SetNum == "" {
			return true
		}
		s.Get("inventories").ForEach(func(_, inv gjson.Result) bool {
			rows, err := parseRowsField(inv.Get("parts"))
			if err != nil {
				perr = fmt.Errorf("set %s: %w", e.SetNum, err)
				return false
			}
			v := int(inv.Get("version").Int())
			if v <= 0 {
				v = 1
			}
			e.Versions = append(e.Versions, CatalogVersion{Version: v, Rows: rows})
			return true
		})
		if perr != nil {
			return false
		}
		if e.Instructions, perr = parseRowsField(s.Get("instructions")); perr != nil {
			perr = fmt.Errorf("set %s instructions: %w", e.SetNum, perr)
			return false
		}
		if e.Summary, perr = parseRowsField(s.Get("summary")); perr != nil {
			perr = fmt.Errorf("set %s summary: %w", e.SetNum, perr)
			return false
		}
		c.Sets = append(c.Sets, e)
		return true
	})
	if perr != nil {
		return nil, perr
	}

	doc.Get("excluded_parts").ForEach(func(_, x gjson.Result) bool {
		if x.Type == gjson.String {
			if p := strings.TrimSpace(x.String()); p != "" {
				c.Excluded[p] = ""
			}
			return true
		}
		if p := strings.TrimSpace(x.Get("part_num").String()); p != "" {
			c.Excluded[p] = x.Get("reason").String()
		}
		return true
	})
	return c, nil
}

func parseRowsField(r gjson.Result) ([]bom.Row, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}
	return bom.ParseRows([]byte(r.Raw))
}

// LoadResult summarises a catalog load.
type LoadResult struct {
	Sets         int
	Versions     int
	Instructions int
	Summaries    int
	Excluded     int
}

// LoadCatalog writes every set of c into the catalog tables. Each part list
// replaces what was stored for that set and tier.
func (d *DB) LoadCatalog(ctx context.Context, c *Catalog) (LoadResult, error) {
	var res LoadResult
	for _, e := range c.Sets {
		if err := d.UpsertSet(ctx, e.CatalogSet); err != nil {
			return res, fmt.Errorf("set %s: %w", e.SetNum, err)
		}
		res.Sets++
		for _, v := range e.Versions {
			if err := d.AddInventoryVersion(ctx, e.SetNum, v.Version, v.Rows); err != nil {
				return res, fmt.Errorf("set %s v%d: %w", e.SetNum, v.Version, err)
			}
			res.Versions++
		}
		if len(e.Instructions) > 0 {
			if err := d.ReplaceInstructions(ctx, e.SetNum, e.Instructions); err != nil {
				return res, fmt.Errorf("set %s instructions: %w", e.SetNum, err)
			}
			res.Instructions++
		}
		if len(e.Summary) > 0 {
			if err := d.ReplaceSummary(ctx, e.SetNum, e.Summary); err != nil {
				return res, fmt.Errorf("set %s summary: %w", e.SetNum, err)
			}
			res.Summaries++
		}
	}
	for p, reason := range c.Excluded {
		if err := d.ExcludePart(ctx, p, reason); err != nil {
			return res, err
		}
		res.Excluded++
	}
	return res, nil
}

// Package bom resolves a catalog set identifier into its bill of materials:
// the PartBin of everything required to build the set, spares excluded.
package bom

import (
	"strings"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// Tier records which catalog source produced a BOM.
type Tier int

const (
	TierNone Tier = iota
	TierInstructions
	TierLatestVersion
	TierSummary
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierInstructions:
		return "instructions"
	case TierLatestVersion:
		return "latest-version"
	case TierSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Row is the canonical BOM row every source normalises into at its
// ingestion boundary.
type Row struct {
	SetNum   string `json:"set_num,omitempty" yaml:"set_num,omitempty"`
	PartNum  string `json:"part_num" yaml:"part_num"`
	ColorID  int    `json:"color_id" yaml:"color_id"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	IsSpare  bool   `json:"is_spare,omitempty" yaml:"is_spare,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	ImageURL string `json:"img_url,omitempty" yaml:"img_url,omitempty"`
}

// Key returns the bin key of the row.
func (r Row) Key() partbin.Key {
	return partbin.Key{PartNum: r.PartNum, ColorID: r.ColorID}.Clean()
}

// Hint carries display-only data for one BOM key.
type Hint struct {
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"img_url,omitempty"`
}

// BOM is a resolved bill of materials.
type BOM struct {
	SetNum string
	Tier   Tier
	Bin    *partbin.Bin
	Hints  map[partbin.Key]Hint
}

// Empty returns a BOM with no required parts.
func Empty(setNum string) *BOM {
	return &BOM{SetNum: setNum, Tier: TierNone, Bin: partbin.New(), Hints: map[partbin.Key]Hint{}}
}

// Build aggregates raw rows into a BOM. Rows for the same (part, color) are
// summed; spare rows contribute nothing.
func Build(setNum string, tier Tier, rows []Row) *BOM {
	b := Empty(setNum)
	b.Tier = tier
	for _, r := range rows {
		key := r.Key()
		if r.IsSpare || r.Quantity <= 0 || key.PartNum == "" {
			continue
		}
		b.Bin.Add(key, r.Quantity)
		if r.Name == "" && r.ImageURL == "" {
			continue
		}
		h := b.Hints[key]
		if h.Name == "" {
			h.Name = r.Name
		}
		if h.ImageURL == "" {
			h.ImageURL = r.ImageURL
		}
		b.Hints[key] = h
	}
	return b
}

// Found reports whether any tier produced this BOM.
func (b *BOM) Found() bool {
	return b != nil && b.Tier != TierNone
}

// Rows returns the BOM as ordered canonical rows, with hints attached.
func (b *BOM) Rows() []Row {
	if b == nil {
		return nil
	}
	bin := b.Bin.Rows()
	rows := make([]Row, 0, len(bin))
	for _, r := range bin {
		h := b.Hints[r.Key()]
		rows = append(rows, Row{
			SetNum:   b.SetNum,
			PartNum:  r.PartNum,
			ColorID:  r.ColorID,
			Quantity: r.Quantity,
			Name:     h.Name,
			ImageURL: h.ImageURL,
		})
	}
	return rows
}

// NormalizeSetNum canonicalises a set identifier. A bare number gets the
// primary release suffix "-1"; anything else passes through trimmed.
// Blank input yields "".
func NormalizeSetNum(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if isDigits(s) {
		return s + "-1"
	}
	return s
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

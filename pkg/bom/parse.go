package bom

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/brickscope/pkg/partbin"
)

// ErrInvalidJSON is returned by ParseRows for malformed documents.
var ErrInvalidJSON = errors.New("invalid BOM JSON")

// ParseRows normalises a JSON document of part rows into canonical rows.
//
// The document may be a bare array, or an object holding the array under
// "results" (catalog API pages) or "rows". Each element may be flat
//
//	{"part_num": "3001", "color_id": 5, "quantity": 2, "is_spare": false}
//
// or nested
//
//	{"part": {"part_num": "3001", "name": "..."}, "color": {"id": 5}, "quantity": 2}
//
// Elements without a part number are dropped. A missing color is
// partbin.ColorUnknown.
func ParseRows(data []byte) ([]Row, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	doc := gjson.ParseBytes(data)
	list := doc
	if doc.IsObject() {
		switch {
		case doc.Get("results").IsArray():
			list = doc.Get("results")
		case doc.Get("rows").IsArray():
			list = doc.Get("rows")
		default:
			return nil, ErrInvalidJSON
		}
	}
	if !list.IsArray() {
		return nil, ErrInvalidJSON
	}

	var rows []Row
	list.ForEach(func(_, e gjson.Result) bool {
		if r, ok := rowFromJSON(e); ok {
			rows = append(rows, r)
		}
		return true
	})
	return rows, nil
}

func rowFromJSON(e gjson.Result) (Row, bool) {
	if !e.IsObject() {
		return Row{}, false
	}
	partNum := strings.TrimSpace(first(e, "part_num", "part.part_num").String())
	if partNum == "" {
		return Row{}, false
	}
	r := Row{
		SetNum:   strings.TrimSpace(e.Get("set_num").String()),
		PartNum:  partNum,
		ColorID:  partbin.ColorUnknown,
		Quantity: int(first(e, "quantity", "qty").Int()),
		IsSpare:  e.Get("is_spare").Bool(),
		Name:     first(e, "name", "part.name").String(),
		ImageURL: first(e, "img_url", "part_img_url", "part.part_img_url").String(),
	}
	if c := first(e, "color_id", "color.id"); c.Exists() {
		r.ColorID = int(c.Int())
	} else if c := e.Get("color"); c.Type == gjson.Number {
		r.ColorID = int(c.Int())
	}
	return r, true
}

func first(e gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := e.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

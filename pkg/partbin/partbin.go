// Package partbin implements the quantity map every other brickscope component
// operates on: (part number, color id) -> quantity.
//
// A Bin never stores a key with a quantity <= 0. Every mutation that would
// bring a key to zero or below removes it instead.
package partbin

import (
	"fmt"
	"sort"
	"strings"
)

// ColorUnknown is the color id used when a source does not specify a color.
// It is a distinct color: nothing falls back to or from it implicitly.
const ColorUnknown = 0

// Key identifies one part in one color. PartNum is case-sensitive.
type Key struct {
	PartNum string `json:"part_num"`
	ColorID int    `json:"color_id"`
}

// Clean returns k with surrounding whitespace trimmed from the part
// number. Every Bin method cleans its key argument, so " 3001" and "3001"
// address the same entry.
func (k Key) Clean() Key {
	k.PartNum = strings.TrimSpace(k.PartNum)
	return k
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.PartNum, k.ColorID)
}

// Less orders keys by part number, then color id.
func (k Key) Less(o Key) bool {
	if k.PartNum != o.PartNum {
		return k.PartNum < o.PartNum
	}
	return k.ColorID < o.ColorID
}

// Row is a flat (part, color, quantity) triple.
type Row struct {
	PartNum  string `json:"part_num"`
	ColorID  int    `json:"color_id"`
	Quantity int    `json:"quantity"`
}

// Key returns the cleaned bin key of the row.
func (r Row) Key() Key {
	return Key{PartNum: r.PartNum, ColorID: r.ColorID}.Clean()
}

// Valid reports whether the row would contribute to a bin.
func (r Row) Valid() bool {
	return strings.TrimSpace(r.PartNum) != "" && r.Quantity > 0
}

// Bin maps keys to positive quantities. The zero value is an empty bin
// ready to use.
type Bin struct {
	q map[Key]int
}

// New returns an empty bin.
func New() *Bin {
	return &Bin{q: make(map[Key]int)}
}

// FromRows sums rows into a new bin. Invalid rows (blank part number,
// non-positive quantity) are skipped.
func FromRows(rows []Row) *Bin {
	b := New()
	for _, r := range rows {
		if !r.Valid() {
			continue
		}
		b.Add(r.Key(), r.Quantity)
	}
	return b
}

// Get returns the quantity stored for k, or 0.
func (b *Bin) Get(k Key) int {
	if b == nil || b.q == nil {
		return 0
	}
	return b.q[k.Clean()]
}

// Has reports whether k has a positive quantity.
func (b *Bin) Has(k Key) bool {
	return b.Get(k) > 0
}

// Add adds qty (which may be negative) to k. Keys with a blank part number
// are ignored.
func (b *Bin) Add(k Key, qty int) {
	k = k.Clean()
	if k.PartNum == "" || qty == 0 {
		return
	}
	b.set(k, b.Get(k)+qty)
}

// Sub subtracts qty from k, clamping at zero.
func (b *Bin) Sub(k Key, qty int) {
	b.Add(k, -qty)
}

// Set replaces the quantity of k.
func (b *Bin) Set(k Key, qty int) {
	k = k.Clean()
	if k.PartNum == "" {
		return
	}
	b.set(k, qty)
}

func (b *Bin) set(k Key, qty int) {
	if qty <= 0 {
		if b.q != nil {
			delete(b.q, k)
		}
		return
	}
	if b.q == nil {
		b.q = make(map[Key]int)
	}
	b.q[k] = qty
}

// Delete removes k.
func (b *Bin) Delete(k Key) {
	if b.q != nil {
		delete(b.q, k.Clean())
	}
}

// AddBin adds every entry of o into b.
func (b *Bin) AddBin(o *Bin) {
	if o == nil {
		return
	}
	for k, qty := range o.q {
		b.Add(k, qty)
	}
}

// SubBin subtracts every entry of o from b, clamping each key at zero.
func (b *Bin) SubBin(o *Bin) {
	if o == nil {
		return
	}
	for k, qty := range o.q {
		b.Sub(k, qty)
	}
}

// Scale multiplies every quantity by n. n <= 0 empties the bin.
func (b *Bin) Scale(n int) {
	if b.q == nil {
		return
	}
	for k, qty := range b.q {
		b.set(k, qty*n)
	}
}

// Clear removes every entry.
func (b *Bin) Clear() {
	b.q = make(map[Key]int)
}

// Clone returns an independent copy.
func (b *Bin) Clone() *Bin {
	c := New()
	if b == nil {
		return c
	}
	for k, qty := range b.q {
		c.q[k] = qty
	}
	return c
}

// Len returns the number of distinct keys.
func (b *Bin) Len() int {
	if b == nil {
		return 0
	}
	return len(b.q)
}

// Empty reports whether the bin has no entries.
func (b *Bin) Empty() bool {
	return b.Len() == 0
}

// Total returns the sum of all quantities.
func (b *Bin) Total() int {
	if b == nil {
		return 0
	}
	total := 0
	for _, qty := range b.q {
		total += qty
	}
	return total
}

// Keys returns all keys ordered by part number then color id.
func (b *Bin) Keys() []Key {
	if b == nil {
		return nil
	}
	keys := make([]Key, 0, len(b.q))
	for k := range b.q {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Rows returns the bin as rows ordered like Keys.
func (b *Bin) Rows() []Row {
	keys := b.Keys()
	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, Row{PartNum: k.PartNum, ColorID: k.ColorID, Quantity: b.q[k]})
	}
	return rows
}

// Range calls fn for every entry in unspecified order until fn returns false.
func (b *Bin) Range(fn func(k Key, qty int) bool) {
	if b == nil {
		return
	}
	for k, qty := range b.q {
		if !fn(k, qty) {
			return
		}
	}
}

// Equal reports whether both bins hold exactly the same entries.
func (b *Bin) Equal(o *Bin) bool {
	if b.Len() != o.Len() {
		return false
	}
	eq := true
	b.Range(func(k Key, qty int) bool {
		if o.Get(k) != qty {
			eq = false
		}
		return eq
	})
	return eq
}

// Diff returns max(0, b[k] - o[k]) for every key of b. Keys only in o
// contribute nothing.
func Diff(b, o *Bin) *Bin {
	out := New()
	b.Range(func(k Key, qty int) bool {
		out.Set(k, qty-o.Get(k))
		return true
	})
	return out
}

func (b *Bin) String() string {
	rows := b.Rows()
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%s/%d:%d", r.PartNum, r.ColorID, r.Quantity))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

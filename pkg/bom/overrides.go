package bom

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Overrides is an InstructionSource backed by a YAML document:
//
//	sets:
//	  "70618":
//	    - {part_num: "3001", color_id: 5, quantity: 4}
//	    - {part_num: "3002", color_id: 5, quantity: 1, is_spare: true}
//
// Set keys are normalised like any other set identifier.
type Overrides struct {
	sets map[string][]Row
}

type overridesFile struct {
	Sets map[string][]Row `yaml:"sets"`
}

// LoadOverrides reads an overrides file from disk.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	o, err := ParseOverrides(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return o, nil
}

// ParseOverrides decodes an overrides YAML document.
func ParseOverrides(data []byte) (*Overrides, error) {
	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	o := &Overrides{sets: make(map[string][]Row, len(f.Sets))}
	for id, rows := range f.Sets {
		setNum := NormalizeSetNum(id)
		if setNum == "" {
			continue
		}
		o.sets[setNum] = append(o.sets[setNum], rows...)
	}
	return o, nil
}

// InstructionRows implements InstructionSource.
func (o *Overrides) InstructionRows(_ context.Context, setNum string) ([]Row, bool, error) {
	if o == nil {
		return nil, false, nil
	}
	rows, ok := o.sets[setNum]
	return rows, ok, nil
}

// Len returns the number of overridden sets.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.sets)
}

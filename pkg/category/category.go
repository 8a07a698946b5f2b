// Package category groups detections into coarse movement categories.
package category

import (
	"encoding/json"
	"fmt"

	"github.com/cyclopcam/speedtrap/pkg/detect"
	"github.com/cyclopcam/speedtrap/pkg/nn"
)

type Category int

const (
	Human Category = iota
	Bike
	Vehicle
	NumCategories
)

// All categories, in reporting order
var All = []Category{Human, Bike, Vehicle}

func (c Category) String() string {
	switch c {
	case Human:
		return "human"
	case Bike:
		return "bike"
	case Vehicle:
		return "vehicle"
	}
	return fmt.Sprintf("category%d", int(c))
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = p
	return nil
}

func Parse(s string) (Category, error) {
	for _, c := range All {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown movement category '%v'", s)
}

// Labels that map to a category. Matching is case-sensitive. Any other label is ignored.
var defaultTable = map[string]Category{
	"person":    Human,
	"bicycle":   Bike,
	"motorbike": Bike,
	"car":       Vehicle,
	"bus":       Vehicle,
	"truck":     Vehicle,
}

// Movements holds the boxes of one frame's kept detections, per category, in kept order
type Movements [NumCategories][]nn.Rect

func (m *Movements) Get(c Category) []nn.Rect {
	return m[c]
}

// Count returns the total number of boxes across all categories
func (m *Movements) Count() int {
	n := 0
	for _, boxes := range m {
		n += len(boxes)
	}
	return n
}

// MarshalJSON always emits all three categories, even when empty
func (m Movements) MarshalJSON() ([]byte, error) {
	out := make(map[string][]nn.Rect, NumCategories)
	for _, c := range All {
		boxes := m[c]
		if boxes == nil {
			boxes = []nn.Rect{}
		}
		out[c.String()] = boxes
	}
	return json.Marshal(out)
}

func (m *Movements) UnmarshalJSON(b []byte) error {
	raw := map[string][]nn.Rect{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Movements{}
	for k, boxes := range raw {
		c, err := Parse(k)
		if err != nil {
			return err
		}
		m[c] = boxes
	}
	return nil
}

// Categorizer maps detection labels to categories
type Categorizer struct {
	table map[string]Category
}

// Create a categorizer with the default label table, plus any extra labels.
// An entry in extra overrides the default for the same label.
func New(extra map[string]Category) *Categorizer {
	table := make(map[string]Category, len(defaultTable)+len(extra))
	for k, v := range defaultTable {
		table[k] = v
	}
	for k, v := range extra {
		table[k] = v
	}
	return &Categorizer{table: table}
}

func (c *Categorizer) Lookup(label string) (Category, bool) {
	cat, ok := c.table[label]
	return cat, ok
}

// Categorize buckets the kept detections of a frame. The result is built fresh
// on every call, and shares nothing with previous frames.
func (c *Categorizer) Categorize(frame *detect.Frame) Movements {
	m := Movements{}
	for _, i := range frame.Kept {
		d := frame.Detections[i]
		if cat, ok := c.Lookup(d.Label); ok {
			m[cat] = append(m[cat], d.Box)
		}
	}
	return m
}

// Package sweep implements the multi-dimensional parametric mapping engine:
// grouped "axis -> candidate values" specifications expanded into the full
// cartesian product of concrete assignments. Keys inside one group are
// coupled and vary in lockstep; the product is taken across groups.
package sweep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/zgoubigo/internal/quantity"
)

// AllElements is the wildcard element label: an assignment key with this
// element applies its parameter to every command in the sequence.
const AllElements = "*"

// Key addresses one swept parameter: the label of the target element and
// the parameter name on it.
type Key struct {
	Element   string
	Parameter string
}

func (k Key) String() string {
	return k.Element + "." + k.Parameter
}

// GroupLengthError reports a group whose coupled value lists have unequal
// lengths.
type GroupLengthError struct {
	Group int
	Key   Key
	Want  int
	Got   int
}

func (e *GroupLengthError) Error() string {
	return fmt.Sprintf("sweep: group %d: coupled key %s has %d values, want %d",
		e.Group, e.Key, e.Got, e.Want)
}

// Group is one coupling group: an ordered set of keys, each with a value
// list of identical length. Selection index i picks values[i] for every key
// in the group simultaneously.
type Group struct {
	keys   []Key
	values [][]cty.Value
}

// NewGroup creates an empty coupling group.
func NewGroup() *Group {
	return &Group{}
}

// Vary adds one coupled axis to the group and returns the group for
// chaining.
func (g *Group) Vary(key Key, values ...cty.Value) *Group {
	g.keys = append(g.keys, key)
	g.values = append(g.values, values)
	return g
}

// Len returns the number of selection indices in the group (the common
// value-list length), without validating alignment.
func (g *Group) Len() int {
	if len(g.values) == 0 {
		return 0
	}
	return len(g.values[0])
}

// Keys returns the group's keys in declaration order.
func (g *Group) Keys() []Key {
	return append([]Key(nil), g.keys...)
}

// Mapping is an ordered list of coupling groups.
type Mapping struct {
	groups []*Group
}

// New creates a Mapping from zero or more groups.
func New(groups ...*Group) *Mapping {
	return &Mapping{groups: append([]*Group(nil), groups...)}
}

// AddGroup appends a group.
func (m *Mapping) AddGroup(g *Group) *Mapping {
	m.groups = append(m.groups, g)
	return m
}

// Merge returns a new Mapping concatenating the group lists of m and other.
// A nil or empty operand acts as identity.
func (m *Mapping) Merge(other *Mapping) *Mapping {
	merged := &Mapping{}
	if m != nil {
		merged.groups = append(merged.groups, m.groups...)
	}
	if other != nil {
		merged.groups = append(merged.groups, other.groups...)
	}
	return merged
}

// Labels returns the flattened list of keys across all groups, order
// preserved.
func (m *Mapping) Labels() []Key {
	if m == nil {
		return nil
	}
	var labels []Key
	for _, g := range m.groups {
		labels = append(labels, g.keys...)
	}
	return labels
}

// Validate checks that every group's value lists are aligned.
func (m *Mapping) Validate() error {
	if m == nil {
		return nil
	}
	for gi, g := range m.groups {
		want := g.Len()
		for ki, vals := range g.values {
			if len(vals) != want {
				return &GroupLengthError{Group: gi, Key: g.keys[ki], Want: want, Got: len(vals)}
			}
		}
	}
	return nil
}

// Combinations expands the mapping into the full list of concrete
// assignments. Coupled keys share a selection index; across groups the full
// cartesian product is taken, with the first group as the outermost loop
// (it varies slowest). A mapping with zero groups yields exactly one empty
// assignment.
func (m *Mapping) Combinations() ([]Assignment, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m == nil || len(m.groups) == 0 {
		return []Assignment{{}}, nil
	}

	total := 1
	for _, g := range m.groups {
		total *= g.Len()
	}
	if total == 0 {
		return []Assignment{{}}, nil
	}

	combos := make([]Assignment, 0, total)
	indices := make([]int, len(m.groups))
	for {
		a := make(Assignment, len(m.Labels()))
		for gi, g := range m.groups {
			sel := indices[gi]
			for ki, key := range g.keys {
				a[key] = g.values[ki][sel]
			}
		}
		combos = append(combos, a)

		// Odometer increment, last group fastest.
		gi := len(m.groups) - 1
		for gi >= 0 {
			indices[gi]++
			if indices[gi] < m.groups[gi].Len() {
				break
			}
			indices[gi] = 0
			gi--
		}
		if gi < 0 {
			break
		}
	}
	return combos, nil
}

// Assignment is one concrete point of a parametric mapping: every swept key
// bound to a single value.
type Assignment map[Key]cty.Value

// Equal reports whether two assignments bind the same keys to the same
// values.
func (a Assignment) Equal(other Assignment) bool {
	if len(a) != len(other) {
		return false
	}
	for k, v := range a {
		ov, ok := other[k]
		if !ok {
			return false
		}
		if !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// Merged returns a new assignment combining a and other; keys in other win.
func (a Assignment) Merged(other Assignment) Assignment {
	out := make(Assignment, len(a)+len(other))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String renders the assignment as a stable, filesystem-friendly tag, keys
// sorted.
func (a Assignment) String() string {
	if len(a) == 0 {
		return "baseline"
	}
	keys := make([]Key, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Element != keys[j].Element {
			return keys[i].Element < keys[j].Element
		}
		return keys[i].Parameter < keys[j].Parameter
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s_%s", k, FormatValue(a[k]))
	}
	return strings.Join(parts, "__")
}

// valuesEqual compares cty values, treating quantity capsules by magnitude
// and unit.
func valuesEqual(a, b cty.Value) bool {
	qa, aok := quantity.FromCty(a)
	qb, bok := quantity.FromCty(b)
	if aok != bok {
		return false
	}
	if aok {
		return qa.Magnitude() == qb.Magnitude() && qa.Unit() == qb.Unit()
	}
	return a.RawEquals(b)
}

// FormatValue renders a swept value for tags and logging.
func FormatValue(v cty.Value) string {
	if qty, ok := quantity.FromCty(v); ok {
		return fmt.Sprintf("%g%s", qty.Magnitude(), qty.Unit())
	}
	switch {
	case v.IsNull():
		return "null"
	case v.Type() == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return fmt.Sprintf("%g", f)
	case v.Type() == cty.String:
		return v.AsString()
	case v.Type() == cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	default:
		return v.GoString()
	}
}

// Package sequence implements the ordered input sequence: the mutable list
// of commands representing one beamline definition, with label-based
// addressing, filtering, slicing, parametric adjustment, serialization and
// materialization into ready-to-run working directories.
package sequence

import (
	"fmt"
	"strings"

	"github.com/vk/zgoubigo/internal/command"
	"github.com/vk/zgoubigo/internal/quantity"
	"github.com/vk/zgoubigo/internal/sweep"
)

// engineIndexOffset converts a zero-based sequence position into the
// engine's own element numbering when a beam command is present (the beam
// expands into extra engine commands ahead of the line).
const engineIndexOffset = 3

// EngineIndexSentinel is returned by EngineIndex when no beam command is
// present and engine-aware numbering does not apply.
const EngineIndexSentinel = 1

// NotFoundError reports a label lookup that matched no command.
type NotFoundError struct {
	Label string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sequence: no command labeled %q", e.Label)
}

// AmbiguousError reports a lookup that required exactly one match but found
// several.
type AmbiguousError struct {
	What  string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("sequence: expected a single %s, found %d", e.What, e.Count)
}

// Validator is a pure structural predicate over a sequence. Implementations
// live in the validate package.
type Validator func(*Sequence) error

// Materialized records one written, ready-to-execute input deck.
type Materialized struct {
	Assignment sweep.Assignment
	Dir        string
	Executed   bool
}

// Sequence is an ordered collection of commands. Order is the physical
// beamline order. Label lookup is first-match-wins: label uniqueness is
// assumed, not enforced at insertion.
type Sequence struct {
	name          string
	line          []*command.Command
	materialized  []Materialized
	opticalLength quantity.Quantity
}

// New creates a sequence, taking ownership of the given commands. Commands
// must not be shared with another sequence; Filter, Slice and Parse always
// hand out copies.
func New(name string, cmds ...*command.Command) *Sequence {
	return &Sequence{
		name:          name,
		line:          append([]*command.Command(nil), cmds...),
		opticalLength: quantity.MustNew(0, "m"),
	}
}

// Name returns the sequence name, used as the deck header line.
func (s *Sequence) Name() string { return s.name }

// Len returns the number of commands.
func (s *Sequence) Len() int { return len(s.line) }

// At returns the command at a zero-based position.
func (s *Sequence) At(i int) *command.Command { return s.line[i] }

// Commands returns the commands in order. The slice is a copy; the commands
// are not.
func (s *Sequence) Commands() []*command.Command {
	return append([]*command.Command(nil), s.line...)
}

// Labels returns every command's primary label, in order.
func (s *Sequence) Labels() []string {
	out := make([]string, len(s.line))
	for i, c := range s.line {
		out[i] = c.Label1
	}
	return out
}

// Keywords returns every command's keyword, in order.
func (s *Sequence) Keywords() []string {
	out := make([]string, len(s.line))
	for i, c := range s.line {
		out[i] = c.Keyword()
	}
	return out
}

// Append adds commands at the end of the sequence.
func (s *Sequence) Append(cmds ...*command.Command) *Sequence {
	s.line = append(s.line, cmds...)
	return s
}

// Remove drops every command whose label is exactly label or starts with
// label followed by an underscore; generated sub-elements are removed as a
// family with their parent.
func (s *Sequence) Remove(label string) *Sequence {
	kept := s.line[:0]
	for _, c := range s.line {
		if c.Label1 == label || strings.HasPrefix(c.Label1, label+"_") {
			continue
		}
		kept = append(kept, c)
	}
	s.line = kept
	return s
}

// RemoveCommand drops the given command instance.
func (s *Sequence) RemoveCommand(cmd *command.Command) *Sequence {
	kept := s.line[:0]
	for _, c := range s.line {
		if c == cmd {
			continue
		}
		kept = append(kept, c)
	}
	s.line = kept
	return s
}

// Lookup returns the first command with the given primary label.
func (s *Sequence) Lookup(label string) (*command.Command, error) {
	for _, c := range s.line {
		if c.Label1 == label {
			return c, nil
		}
	}
	return nil, &NotFoundError{Label: label}
}

// Index returns the zero-based position of a command instance.
func (s *Sequence) Index(cmd *command.Command) (int, error) {
	for i, c := range s.line {
		if c == cmd {
			return i, nil
		}
	}
	return 0, &NotFoundError{Label: cmd.Label1}
}

// IndexLabel returns the zero-based position of the first command with the
// given label.
func (s *Sequence) IndexLabel(label string) (int, error) {
	for i, c := range s.line {
		if c.Label1 == label {
			return i, nil
		}
	}
	return 0, &NotFoundError{Label: label}
}

// EngineIndex returns the element's position in the engine's own numbering:
// the zero-based index offset by the beam expansion when a beam command is
// present, or EngineIndexSentinel otherwise. Usable as-is in engine
// directives that address elements by number (for example Fit).
func (s *Sequence) EngineIndex(label string) (int, error) {
	beam, err := s.Beam()
	if err != nil {
		return 0, err
	}
	if beam == nil {
		return EngineIndexSentinel, nil
	}
	i, err := s.IndexLabel(label)
	if err != nil {
		return 0, err
	}
	return i + engineIndexOffset, nil
}

// Replace substitutes the command labeled label with other, preserving the
// position.
func (s *Sequence) Replace(label string, other *command.Command) error {
	i, err := s.IndexLabel(label)
	if err != nil {
		return err
	}
	s.line[i] = other
	return nil
}

// InsertBefore inserts a command immediately before the anchor label.
func (s *Sequence) InsertBefore(anchor string, cmd *command.Command) error {
	i, err := s.IndexLabel(anchor)
	if err != nil {
		return err
	}
	s.insertAt(i, cmd)
	return nil
}

// InsertAfter inserts a command immediately after the anchor label.
func (s *Sequence) InsertAfter(anchor string, cmd *command.Command) error {
	i, err := s.IndexLabel(anchor)
	if err != nil {
		return err
	}
	s.insertAt(i+1, cmd)
	return nil
}

func (s *Sequence) insertAt(i int, cmd *command.Command) {
	s.line = append(s.line, nil)
	copy(s.line[i+1:], s.line[i:])
	s.line[i] = cmd
}

// Selector decides whether a command belongs in a filtered sequence.
type Selector func(*command.Command) bool

// ByKeyword selects commands whose keyword is any of the given ones.
func ByKeyword(keywords ...string) Selector {
	return func(c *command.Command) bool {
		for _, k := range keywords {
			if c.Keyword() == k {
				return true
			}
		}
		return false
	}
}

// ByLabel selects commands whose primary label is any of the given ones.
func ByLabel(labels ...string) Selector {
	return func(c *command.Command) bool {
		for _, l := range labels {
			if c.Label1 == l {
				return true
			}
		}
		return false
	}
}

// ByKind selects commands of any of the given kind definitions.
func ByKind(defs ...*command.Definition) Selector {
	return func(c *command.Command) bool {
		for _, d := range defs {
			if c.Definition() == d {
				return true
			}
		}
		return false
	}
}

// Any combines selectors with OR.
func Any(selectors ...Selector) Selector {
	return func(c *command.Command) bool {
		for _, sel := range selectors {
			if sel(c) {
				return true
			}
		}
		return false
	}
}

// Filter returns a new sequence holding copies of the matching commands,
// order preserved. The original sequence is never mutated.
func (s *Sequence) Filter(sel Selector) *Sequence {
	out := New(s.name + "_filtered")
	for _, c := range s.line {
		if sel(c) {
			out.line = append(out.line, c.Copy())
		}
	}
	return out
}

// Bound addresses one end of a slice: a numeric position, a label, or a
// command instance. The zero Bound leaves that end open.
type Bound struct {
	index int
	label string
	cmd   *command.Command
	kind  boundKind
}

type boundKind int

const (
	boundOpen boundKind = iota
	boundIndex
	boundLabel
	boundCommand
)

// At bounds a slice at a zero-based position.
func At(i int) Bound { return Bound{index: i, kind: boundIndex} }

// AtLabel bounds a slice at the first command with the given label. Used as
// a stop bound, the labeled command is included.
func AtLabel(label string) Bound { return Bound{label: label, kind: boundLabel} }

// AtCommand bounds a slice at the given command instance. Used as a stop
// bound, the command is included.
func AtCommand(c *command.Command) Bound { return Bound{cmd: c, kind: boundCommand} }

func (s *Sequence) resolveBound(b Bound, stop bool, def int) (int, error) {
	switch b.kind {
	case boundOpen:
		return def, nil
	case boundIndex:
		return b.index, nil
	case boundLabel:
		i, err := s.IndexLabel(b.label)
		if err != nil {
			return 0, err
		}
		if stop {
			i++
		}
		return i, nil
	case boundCommand:
		i, err := s.Index(b.cmd)
		if err != nil {
			return 0, err
		}
		if stop {
			i++
		}
		return i, nil
	default:
		return 0, fmt.Errorf("sequence: invalid bound")
	}
}

// Slice returns a new sequence holding copies of the commands in
// [start, stop) with the given step. Reference bounds (label or command)
// used as stop are inclusive. A step below 1 is treated as 1.
func (s *Sequence) Slice(start, stop Bound, step int) (*Sequence, error) {
	lo, err := s.resolveBound(start, false, 0)
	if err != nil {
		return nil, err
	}
	hi, err := s.resolveBound(stop, true, len(s.line))
	if err != nil {
		return nil, err
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(s.line) {
		hi = len(s.line)
	}
	if step < 1 {
		step = 1
	}
	out := New(s.name + "_sliced")
	for i := lo; i < hi; i += step {
		out.line = append(out.line, s.line[i].Copy())
	}
	return out, nil
}

// Beam returns the distinguished beam definition command, nil when absent.
// Multiple beam commands are ambiguous.
func (s *Sequence) Beam() (*command.Command, error) {
	var found *command.Command
	count := 0
	for _, c := range s.line {
		if c.IsBeam() {
			if found == nil {
				found = c
			}
			count++
		}
	}
	if count > 1 {
		return nil, &AmbiguousError{What: "beam command", Count: count}
	}
	return found, nil
}

// Adjust applies a parametric assignment: wildcard keys set their parameter
// on every command, other keys address a single command by label. The
// returned assignment holds the prior values of every touched, declared
// parameter, so a second Adjust with it undoes the first. Wildcard keys
// have no recorded prior.
func (s *Sequence) Adjust(a sweep.Assignment) (sweep.Assignment, error) {
	prior := make(sweep.Assignment)
	for key, value := range a {
		if key.Element == sweep.AllElements {
			for _, c := range s.line {
				c.Set(key.Parameter, value)
			}
			continue
		}
		c, err := s.Lookup(key.Element)
		if err != nil {
			return nil, err
		}
		if old, ok := c.Set(key.Parameter, value); ok {
			prior[key] = old
		}
	}
	return prior, nil
}

// Survey walks the line in order, applying each command's reference-frame
// transformation to frame. Commands without a frame transformation are
// skipped.
func (s *Sequence) Survey(frame command.Frame) error {
	for _, c := range s.line {
		if err := c.Patch(frame); err != nil {
			return err
		}
	}
	return nil
}

// Validate runs each validator; the first structural violation is returned.
func (s *Sequence) Validate(validators ...Validator) error {
	for _, v := range validators {
		if err := v(s); err != nil {
			return err
		}
	}
	return nil
}

// OpticalLength returns the accumulated physical length of the line.
func (s *Sequence) OpticalLength() quantity.Quantity {
	return s.opticalLength
}

// IncreaseOpticalLength adds a length contribution to the running total.
func (s *Sequence) IncreaseOpticalLength(l quantity.Quantity) error {
	total, err := quantity.MagnitudeIn(l, "m")
	if err != nil {
		return err
	}
	current := s.opticalLength.Magnitude()
	s.opticalLength = quantity.MustNew(current+total, "m")
	return nil
}

// ResetOpticalLength zeroes the running total.
func (s *Sequence) ResetOpticalLength() {
	s.opticalLength = quantity.MustNew(0, "m")
}

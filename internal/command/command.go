// Package command models one typed, labeled directive of a tracking-engine
// input deck: its parameter table, its exact text serialization, and the
// output attached to it after a run.
//
// Each concrete kind is described by a Definition (keyword, parameter
// schema, formatter, hooks) instead of a type hierarchy; a Command is a
// Definition plus labels and parameter values.
package command

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/zgoubigo/internal/sweep"
)

// MaxLabelLength is the engine's limit on a label identifier.
const MaxLabelLength = 10

// LabelFunc produces unique default labels for commands created without an
// explicit one.
type LabelFunc func() string

// UUIDLabels returns the default label generator: a random hex token
// truncated to the engine's label limit.
func UUIDLabels() LabelFunc {
	return func() string {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:MaxLabelLength]
	}
}

// AttachedOutput is one labeled output section captured from a run,
// together with the parametric assignment that produced it.
type AttachedOutput struct {
	Assignment sweep.Assignment
	Lines      []string
}

// Command is one element of an input sequence.
type Command struct {
	def    *Definition
	Label1 string
	Label2 string

	params map[string]cty.Value

	outputs []AttachedOutput
}

// Option configures a Command at construction time.
type Option func(*options)

type options struct {
	label1 string
	label2 string
	gen    LabelFunc
	params map[string]cty.Value
}

// WithLabel1 sets the primary label.
func WithLabel1(label string) Option {
	return func(o *options) { o.label1 = label }
}

// WithLabel2 sets the secondary label.
func WithLabel2(label string) Option {
	return func(o *options) { o.label2 = label }
}

// WithLabels supplies the generator used when no explicit primary label is
// given.
func WithLabels(gen LabelFunc) Option {
	return func(o *options) { o.gen = gen }
}

// WithParam sets one parameter value.
func WithParam(name string, v cty.Value) Option {
	return func(o *options) {
		if o.params == nil {
			o.params = make(map[string]cty.Value)
		}
		o.params[name] = v
	}
}

// New creates a Command of the given kind. Parameters start at their schema
// defaults; a missing primary label is generated.
func New(def *Definition, opts ...Option) *Command {
	o := options{gen: UUIDLabels()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.label1 == "" {
		o.label1 = o.gen()
	}
	if len(o.label1) > MaxLabelLength {
		o.label1 = o.label1[:MaxLabelLength]
	}
	c := &Command{
		def:    def,
		Label1: o.label1,
		Label2: o.label2,
		params: make(map[string]cty.Value, len(def.Schema)),
	}
	for _, spec := range def.Schema {
		c.params[spec.Name] = spec.Default
	}
	for name, v := range o.params {
		c.Set(name, v)
	}
	return c
}

// Keyword returns the engine directive this command serializes to.
func (c *Command) Keyword() string {
	return c.def.Keyword
}

// Definition returns the command's kind definition.
func (c *Command) Definition() *Definition {
	return c.def
}

// IsSource reports whether the kind defines the tracked particle object.
func (c *Command) IsSource() bool { return c.def.IsSource }

// IsTerminal reports whether the kind ends an input deck.
func (c *Command) IsTerminal() bool { return c.def.IsTerminal }

// IsBeam reports whether the kind is the distinguished beam definition.
func (c *Command) IsBeam() bool { return c.def.IsBeam }

// Get returns a parameter value and whether the name is declared by the
// kind's schema.
func (c *Command) Get(name string) (cty.Value, bool) {
	v, ok := c.params[name]
	return v, ok
}

// Set assigns a parameter and returns its prior value. Setting a name the
// kind does not declare is a warning, not an error: the value is dropped
// and ok is false.
func (c *Command) Set(name string, v cty.Value) (prior cty.Value, ok bool) {
	prior, ok = c.params[name]
	if !ok {
		slog.Warn("Ignoring parameter not declared by command kind.",
			"keyword", c.def.Keyword, "label", c.Label1, "parameter", name)
		return cty.NilVal, false
	}
	c.params[name] = v
	return prior, true
}

// ParameterNames returns the declared parameter names in schema order.
func (c *Command) ParameterNames() []string {
	names := make([]string, len(c.def.Schema))
	for i, spec := range c.def.Schema {
		names[i] = spec.Name
	}
	return names
}

// Serialize renders the command's fixed-format text block. The block's
// layout is part of the kind's contract with the engine parser.
func (c *Command) Serialize() (string, error) {
	if c.def.Format == nil {
		return c.HeaderLine() + "\n", nil
	}
	return c.def.Format(c)
}

// HeaderLine renders the first line of every block: the quoted keyword and
// the labels.
func (c *Command) HeaderLine() string {
	return strings.TrimRight(fmt.Sprintf("'%s' %s %s", c.def.Keyword, c.Label1, c.Label2), " ")
}

// AttachOutput records one run's labeled output section for this command
// and invokes the kind's post-processing hook. One attachment per run; runs
// accumulate until ClearOutputs.
func (c *Command) AttachOutput(lines []string, assignment sweep.Assignment) error {
	c.outputs = append(c.outputs, AttachedOutput{Assignment: assignment, Lines: lines})
	if c.def.PostProcess != nil {
		if err := c.def.PostProcess(c, assignment, lines); err != nil {
			return fmt.Errorf("command %s[%s]: post-process: %w", c.def.Keyword, c.Label1, err)
		}
	}
	return nil
}

// HasOutput reports whether any run output has been attached.
func (c *Command) HasOutput() bool {
	return len(c.outputs) > 0
}

// Outputs returns the attached per-run output sections.
func (c *Command) Outputs() []AttachedOutput {
	return c.outputs
}

// ClearOutputs discards all attached output, returning the command to its
// pre-run state.
func (c *Command) ClearOutputs() {
	c.outputs = nil
}

// Patch applies the command's spatial-frame transformation to the given
// entry frame, when the kind carries one.
func (c *Command) Patch(entry Frame) error {
	if c.def.Patch == nil {
		return nil
	}
	return c.def.Patch(c, entry)
}

// Copy returns a deep copy of the command. Attached output is not copied;
// the copy starts in the no-output state.
func (c *Command) Copy() *Command {
	params := make(map[string]cty.Value, len(c.params))
	for k, v := range c.params {
		params[k] = v
	}
	return &Command{
		def:    c.def,
		Label1: c.Label1,
		Label2: c.Label2,
		params: params,
	}
}

func (c *Command) String() string {
	return fmt.Sprintf("%s[%s]", c.def.Keyword, c.Label1)
}

package command

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/zgoubigo/internal/sweep"
)

// ParamSpec declares one parameter of a command kind: its name, default
// value and a short description for documentation.
type ParamSpec struct {
	Name        string
	Default     cty.Value
	Description string
}

// FormatFunc renders a command into its fixed-format text block, including
// the header line and a trailing newline.
type FormatFunc func(c *Command) (string, error)

// PostProcessFunc is the hook invoked after a run's output is attached to a
// command.
type PostProcessFunc func(c *Command, assignment sweep.Assignment, lines []string) error

// PatchFunc applies a kind's reference-frame transformation to an entry
// frame.
type PatchFunc func(c *Command, entry Frame) error

// BeamMappingsFunc derives the parametric mapping a beam kind implies on
// its own (for example, one run per bunch slice).
type BeamMappingsFunc func(c *Command) (*sweep.Mapping, error)

// Definition describes one command kind. Definitions are immutable and
// shared between all commands of the kind.
type Definition struct {
	Keyword     string
	Description string
	Schema      []ParamSpec

	Format       FormatFunc
	PostProcess  PostProcessFunc
	Patch        PatchFunc
	BeamMappings BeamMappingsFunc

	// IsSource marks kinds that define the tracked particle object; a
	// validator requires the first element of a sequence to be one.
	IsSource bool
	// IsTerminal marks kinds that end an input deck; serialization appends
	// an implicit End when the last element is not terminal.
	IsTerminal bool
	// IsBeam marks the distinguished beam definition command.
	IsBeam bool
}

// mergedSchema returns base schema entries followed by extras, later names
// overriding earlier defaults.
func mergedSchema(base []ParamSpec, extra []ParamSpec) []ParamSpec {
	out := make([]ParamSpec, 0, len(base)+len(extra))
	index := make(map[string]int, len(base))
	for _, spec := range base {
		index[spec.Name] = len(out)
		out = append(out, spec)
	}
	for _, spec := range extra {
		if i, ok := index[spec.Name]; ok {
			out[i] = spec
			continue
		}
		index[spec.Name] = len(out)
		out = append(out, spec)
	}
	return out
}

// Registry holds the known command kinds, keyed by keyword.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry creates a registry from the given definitions. Duplicate
// keywords panic: they are a programmer error in kind wiring.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		if _, ok := r.defs[def.Keyword]; ok {
			panic(fmt.Sprintf("command: duplicate kind %q", def.Keyword))
		}
		r.defs[def.Keyword] = def
	}
	return r
}

// Lookup returns the definition for a keyword.
func (r *Registry) Lookup(keyword string) (*Definition, bool) {
	def, ok := r.defs[keyword]
	return def, ok
}

// Keywords returns the registered keywords, sorted.
func (r *Registry) Keywords() []string {
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

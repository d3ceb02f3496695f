// Package deck loads beamline decks written in HCL into the core
// sequence/mapping model.
//
// A deck file holds one beamline block of ordered element blocks, and
// optionally sweep blocks declaring the parametric mapping:
//
//	beamline "LINE" {
//	  element "OBJET" "BUNCH" {
//	    boro = 2149.0
//	    imax = 100
//	  }
//	  element "ESL" "D1" {
//	    xl = quantity(50, "cm")
//	  }
//	}
//
//	sweep {
//	  group {
//	    vary "D1" "XL" {
//	      values = [quantity(10, "cm"), quantity(20, "cm")]
//	    }
//	  }
//	}
package deck

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/zgoubigo/internal/command"
	"github.com/vk/zgoubigo/internal/ctxlog"
	"github.com/vk/zgoubigo/internal/quantity"
	"github.com/vk/zgoubigo/internal/sequence"
	"github.com/vk/zgoubigo/internal/sweep"
)

type fileRoot struct {
	Beamlines []*beamlineBlock `hcl:"beamline,block"`
	Sweeps    []*sweepBlock    `hcl:"sweep,block"`
}

type beamlineBlock struct {
	Name     string          `hcl:"name,label"`
	Elements []*elementBlock `hcl:"element,block"`
}

type elementBlock struct {
	Keyword string   `hcl:"keyword,label"`
	Label   string   `hcl:"label,label"`
	Body    hcl.Body `hcl:",remain"`
}

type sweepBlock struct {
	Groups []*groupBlock `hcl:"group,block"`
}

type groupBlock struct {
	Varies []*varyBlock `hcl:"vary,block"`
}

type varyBlock struct {
	Element   string         `hcl:"element,label"`
	Parameter string         `hcl:"parameter,label"`
	Values    hcl.Expression `hcl:"values"`
}

// Load parses one deck file and translates it against the given command
// registry. Element order in the file is the sequence order. A file must
// declare exactly one beamline; sweep blocks are optional and an absent
// sweep yields the empty mapping.
func Load(ctx context.Context, path string, reg *command.Registry) (*sequence.Sequence, *sweep.Mapping, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading deck file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("deck: parse %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, nil, fmt.Errorf("deck: decode %s: %w", path, diags)
	}
	if len(root.Beamlines) != 1 {
		return nil, nil, fmt.Errorf("deck: %s declares %d beamline blocks, want exactly 1", path, len(root.Beamlines))
	}

	evalCtx := EvalContext()

	seq, err := translateBeamline(root.Beamlines[0], reg, evalCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("deck: %s: %w", path, err)
	}

	mapping := sweep.New()
	for _, sb := range root.Sweeps {
		for _, gb := range sb.Groups {
			group, err := translateGroup(gb, evalCtx)
			if err != nil {
				return nil, nil, fmt.Errorf("deck: %s: %w", path, err)
			}
			mapping.AddGroup(group)
		}
	}
	if err := mapping.Validate(); err != nil {
		return nil, nil, fmt.Errorf("deck: %s: %w", path, err)
	}

	logger.Debug("Deck loaded.", "beamline", seq.Name(), "elements", seq.Len(), "sweepLabels", len(mapping.Labels()))
	return seq, mapping, nil
}

func translateBeamline(block *beamlineBlock, reg *command.Registry, evalCtx *hcl.EvalContext) (*sequence.Sequence, error) {
	seq := sequence.New(block.Name)
	for _, el := range block.Elements {
		keyword := strings.ToUpper(el.Keyword)
		def, ok := reg.Lookup(keyword)
		if !ok {
			return nil, fmt.Errorf("beamline %q: unknown element keyword %q (label %q)", block.Name, el.Keyword, el.Label)
		}

		attrs, diags := el.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("element %s %q: %w", keyword, el.Label, diags)
		}
		opts := []command.Option{command.WithLabel1(el.Label)}
		for name, attr := range attrs {
			v, diags := attr.Expr.Value(evalCtx)
			if diags.HasErrors() {
				return nil, fmt.Errorf("element %s %q: attribute %q: %w", keyword, el.Label, name, diags)
			}
			opts = append(opts, command.WithParam(strings.ToUpper(name), v))
		}
		seq.Append(command.New(def, opts...))
	}
	return seq, nil
}

func translateGroup(block *groupBlock, evalCtx *hcl.EvalContext) (*sweep.Group, error) {
	group := sweep.NewGroup()
	for _, vb := range block.Varies {
		v, diags := vb.Values.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("vary %s.%s: %w", vb.Element, vb.Parameter, diags)
		}
		if !v.CanIterateElements() {
			return nil, fmt.Errorf("vary %s.%s: values is not a list", vb.Element, vb.Parameter)
		}
		var values []cty.Value
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			values = append(values, ev)
		}
		group.Vary(sweep.Key{Element: vb.Element, Parameter: strings.ToUpper(vb.Parameter)}, values...)
	}
	return group, nil
}

// EvalContext returns the evaluation context deck expressions are resolved
// against: the quantity constructor function.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"quantity": quantityFunc,
		},
	}
}

// quantityFunc builds a physical quantity capsule from a magnitude and a
// unit symbol, e.g. quantity(50, "cm").
var quantityFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "magnitude", Type: cty.Number},
		{Name: "unit", Type: cty.String},
	},
	Type: function.StaticReturnType(quantity.CtyType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		mag, _ := args[0].AsBigFloat().Float64()
		qty, err := quantity.New(mag, args[1].AsString())
		if err != nil {
			return cty.NilVal, err
		}
		return quantity.Val(qty), nil
	},
})

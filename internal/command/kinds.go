package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/zgoubigo/internal/quantity"
	"github.com/vk/zgoubigo/internal/sweep"
)

// Built-in command kinds. Every Format function reproduces the exact block
// layout the engine parser expects: field order, column layout and numeric
// formatting are part of the kind's contract.

// SourceParticleLimit is the engine's hard cap on the particle count of a
// source object.
const SourceParticleLimit = 10000

func num(v cty.Value) (float64, error) {
	return quantity.MagnitudeFromCty(v, "")
}

func fnum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func fint(f float64) string {
	return strconv.FormatInt(int64(f), 10)
}

// fexp renders the fixed exponential notation used for physics tolerances.
func fexp(f float64) string {
	return fmt.Sprintf("%.12e", f)
}

func paramNum(c *Command, name string) (float64, error) {
	v, ok := c.Get(name)
	if !ok {
		return 0, fmt.Errorf("command %s[%s]: no parameter %q", c.Keyword(), c.Label1, name)
	}
	f, err := num(v)
	if err != nil {
		return 0, fmt.Errorf("command %s[%s]: parameter %q: %w", c.Keyword(), c.Label1, name, err)
	}
	return f, nil
}

func paramMag(c *Command, name, unit string) (float64, error) {
	v, ok := c.Get(name)
	if !ok {
		return 0, fmt.Errorf("command %s[%s]: no parameter %q", c.Keyword(), c.Label1, name)
	}
	f, err := quantity.MagnitudeFromCty(v, unit)
	if err != nil {
		return 0, fmt.Errorf("command %s[%s]: parameter %q: %w", c.Keyword(), c.Label1, name, err)
	}
	return f, nil
}

func paramStr(c *Command, name string) string {
	v, ok := c.Get(name)
	if !ok || v.IsNull() || v.Type() != cty.String {
		return ""
	}
	return v.AsString()
}

func block(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// bare is the format shared by kinds whose block is the header line alone.
func bare(c *Command) (string, error) {
	return block(c.HeaderLine()), nil
}

// Objet defines the tracked particle object.
var Objet = &Definition{
	Keyword:     "OBJET",
	Description: "Definition of the tracked particle object.",
	IsSource:    true,
	Schema: []ParamSpec{
		{Name: "BORO", Default: cty.NumberFloatVal(0), Description: "Reference magnetic rigidity (kG.cm)."},
		{Name: "KOBJ", Default: cty.NumberIntVal(1), Description: "Object kind flag."},
		{Name: "IMAX", Default: cty.NumberIntVal(1), Description: "Number of particles."},
	},
	Format: func(c *Command) (string, error) {
		boro, err := paramNum(c, "BORO")
		if err != nil {
			return "", err
		}
		kobj, err := paramNum(c, "KOBJ")
		if err != nil {
			return "", err
		}
		imax, err := paramNum(c, "IMAX")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), fnum(boro), fint(kobj), fint(imax)), nil
	},
}

// MCObjet defines a Monte-Carlo generated particle object.
var MCObjet = &Definition{
	Keyword:     "MCOBJET",
	Description: "Monte-Carlo definition of the tracked particle object.",
	IsSource:    true,
	Schema: mergedSchema(Objet.Schema, []ParamSpec{
		{Name: "KOBJ", Default: cty.NumberIntVal(3), Description: "Object kind flag."},
	}),
	Format: func(c *Command) (string, error) {
		boro, err := paramNum(c, "BORO")
		if err != nil {
			return "", err
		}
		kobj, err := paramNum(c, "KOBJ")
		if err != nil {
			return "", err
		}
		imax, err := paramNum(c, "IMAX")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), fnum(boro), fint(kobj), fint(imax)), nil
	},
}

// Beam is the distinguished beam definition: a source object that also
// implies its own parametric mapping (one run per bunch slice).
var Beam = &Definition{
	Keyword:     "BEAM",
	Description: "Beam definition with per-slice run expansion.",
	IsSource:    true,
	IsBeam:      true,
	Schema: []ParamSpec{
		{Name: "BORO", Default: cty.NumberFloatVal(0), Description: "Reference magnetic rigidity (kG.cm)."},
		{Name: "IMAX", Default: cty.NumberIntVal(1), Description: "Number of particles per slice."},
		{Name: "SLICES", Default: cty.NumberIntVal(1), Description: "Number of longitudinal bunch slices; each slice becomes one run."},
	},
	Format: func(c *Command) (string, error) {
		boro, err := paramNum(c, "BORO")
		if err != nil {
			return "", err
		}
		imax, err := paramNum(c, "IMAX")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), fnum(boro), fint(imax)), nil
	},
	BeamMappings: func(c *Command) (*sweep.Mapping, error) {
		slices, err := paramNum(c, "SLICES")
		if err != nil {
			return nil, err
		}
		n := int(slices)
		if n <= 1 {
			return nil, nil
		}
		values := make([]cty.Value, n)
		for i := range values {
			values[i] = cty.NumberIntVal(int64(i))
		}
		group := sweep.NewGroup().Vary(sweep.Key{Element: c.Label1, Parameter: "SLICE"}, values...)
		return sweep.New(group), nil
	},
}

// Drift is a field-free drift space.
var Drift = &Definition{
	Keyword:     "ESL",
	Description: "Field-free drift space.",
	Schema: []ParamSpec{
		{Name: "XL", Default: quantity.Val(quantity.MustNew(0, "cm")), Description: "Drift length."},
	},
	Format: func(c *Command) (string, error) {
		xl, err := paramMag(c, "XL", "cm")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), fnum(xl)), nil
	},
}

// Marker is a zero-length label point.
var Marker = &Definition{
	Keyword:     "MARKER",
	Description: "Marker.",
	Format:      bare,
}

// Collimateur is a transverse aperture limitation.
var Collimateur = &Definition{
	Keyword:     "COLLIMA",
	Description: "Collimator.",
	Schema: []ParamSpec{
		{Name: "IA", Default: cty.NumberIntVal(2), Description: "Element active flag (0 inactive, 1 active, 2 active with print)."},
		{Name: "IFORM", Default: cty.NumberIntVal(1), Description: "Aperture shape."},
		{Name: "J", Default: cty.NumberIntVal(0), Description: "Aperture coordinate system."},
		{Name: "C1", Default: quantity.Val(quantity.MustNew(0, "cm")), Description: "Half opening (Y)."},
		{Name: "C2", Default: quantity.Val(quantity.MustNew(0, "cm")), Description: "Half opening (Z)."},
		{Name: "C3", Default: quantity.Val(quantity.MustNew(0, "cm")), Description: "Center of the aperture (Y)."},
		{Name: "C4", Default: quantity.Val(quantity.MustNew(0, "cm")), Description: "Center of the aperture (Z)."},
	},
	Format: func(c *Command) (string, error) {
		ia, err := paramNum(c, "IA")
		if err != nil {
			return "", err
		}
		iform, err := paramNum(c, "IFORM")
		if err != nil {
			return "", err
		}
		j, err := paramNum(c, "J")
		if err != nil {
			return "", err
		}
		cs := make([]float64, 4)
		for i := range cs {
			cs[i], err = paramMag(c, fmt.Sprintf("C%d", i+1), "cm")
			if err != nil {
				return "", err
			}
		}
		return block(
			c.HeaderLine(),
			fint(ia),
			fmt.Sprintf("%s.%s %s %s %s %s", fint(iform), fint(j), fnum(cs[0]), fnum(cs[1]), fnum(cs[2]), fnum(cs[3])),
		), nil
	},
}

// ChangeRef transforms to a new reference frame. Its TRANSFORMATIONS
// parameter is a list of (operation, quantity) pairs; shift operations end
// in S and are rendered in cm, rotations end in R and are rendered in deg.
var ChangeRef = &Definition{
	Keyword:     "CHANGREF",
	Description: "Transformation to a new reference frame.",
	Schema: []ParamSpec{
		{Name: "TRANSFORMATIONS", Default: cty.EmptyTupleVal, Description: "Ordered (operation, quantity) pairs."},
	},
	Format: func(c *Command) (string, error) {
		ops, err := changeRefOps(c)
		if err != nil {
			return "", err
		}
		var parts []string
		for _, op := range ops {
			var mag float64
			switch {
			case strings.HasSuffix(op.name, "S"):
				mag, err = quantity.MagnitudeIn(op.by, "cm")
			case strings.HasSuffix(op.name, "R"):
				mag, err = quantity.MagnitudeIn(op.by, "deg")
			default:
				return "", fmt.Errorf("command %s[%s]: unknown transformation %q", c.Keyword(), c.Label1, op.name)
			}
			if err != nil {
				return "", fmt.Errorf("command %s[%s]: transformation %s: %w", c.Keyword(), c.Label1, op.name, err)
			}
			parts = append(parts, fmt.Sprintf("%s %s", op.name, fnum(mag)))
		}
		if len(parts) == 0 {
			return block(c.HeaderLine()), nil
		}
		return block(c.HeaderLine(), strings.Join(parts, " ")), nil
	},
	Patch: func(c *Command, entry Frame) error {
		ops, err := changeRefOps(c)
		if err != nil {
			return err
		}
		for _, op := range ops {
			axis := op.name[:1]
			switch {
			case strings.HasSuffix(op.name, "S"):
				err = entry.TranslateAxis(axis, op.by)
			case strings.HasSuffix(op.name, "R"):
				err = entry.RotateAxis(axis, op.by)
			default:
				err = fmt.Errorf("unknown transformation %q", op.name)
			}
			if err != nil {
				return fmt.Errorf("command %s[%s]: %w", c.Keyword(), c.Label1, err)
			}
		}
		return nil
	},
}

type frameOp struct {
	name string
	by   quantity.Quantity
}

// changeRefOps decodes the TRANSFORMATIONS parameter: a tuple of
// two-element tuples (operation name, quantity).
func changeRefOps(c *Command) ([]frameOp, error) {
	v, ok := c.Get("TRANSFORMATIONS")
	if !ok || v.IsNull() {
		return nil, nil
	}
	if !v.CanIterateElements() {
		return nil, fmt.Errorf("command %s[%s]: TRANSFORMATIONS is not a list", c.Keyword(), c.Label1)
	}
	var ops []frameOp
	for it := v.ElementIterator(); it.Next(); {
		_, pair := it.Element()
		if !pair.CanIterateElements() || pair.LengthInt() != 2 {
			return nil, fmt.Errorf("command %s[%s]: transformation must be an (operation, quantity) pair", c.Keyword(), c.Label1)
		}
		inner := pair.ElementIterator()
		inner.Next()
		_, opVal := inner.Element()
		inner.Next()
		_, byVal := inner.Element()
		if opVal.Type() != cty.String {
			return nil, fmt.Errorf("command %s[%s]: transformation operation must be a string", c.Keyword(), c.Label1)
		}
		qty, ok := quantity.FromCty(byVal)
		if !ok {
			return nil, fmt.Errorf("command %s[%s]: transformation amount must be a quantity", c.Keyword(), c.Label1)
		}
		ops = append(ops, frameOp{name: opVal.AsString(), by: qty})
	}
	return ops, nil
}

// Ymy reverses the signs of the Y and Z reference axes.
var Ymy = &Definition{
	Keyword:     "YMY",
	Description: "Reverse signs of Y and Z reference axes.",
	Format:      bare,
	Patch: func(c *Command, entry Frame) error {
		return entry.RotateAxis("X", quantity.MustNew(180, "deg"))
	},
}

// Faisceau prints particle coordinates.
var Faisceau = &Definition{
	Keyword:     "FAISCEAU",
	Description: "Print particle coordinates.",
	Format:      bare,
}

// Faiscnl stores particle coordinates in a file.
var Faiscnl = &Definition{
	Keyword:     "FAISCNL",
	Description: "Store particle coordinates in a file.",
	Schema: []ParamSpec{
		{Name: "FNAME", Default: cty.StringVal("zgoubi.fai"), Description: "Output file name."},
		{Name: "B_FNAME", Default: cty.StringVal("b_zgoubi.fai"), Description: "Binary output file name."},
		{Name: "BINARY", Default: cty.False, Description: "Write the binary variant."},
	},
	Format: func(c *Command) (string, error) {
		name := paramStr(c, "FNAME")
		if v, ok := c.Get("BINARY"); ok && v.True() {
			name = paramStr(c, "B_FNAME")
		}
		return block(c.HeaderLine(), name), nil
	},
}

// FaiStore stores coordinates every IP other pass at labeled elements.
var FaiStore = &Definition{
	Keyword:     "FAISTORE",
	Description: "Store coordinates every IP other pass at labeled elements.",
	Schema: []ParamSpec{
		{Name: "FNAME", Default: cty.StringVal("zgoubi.fai"), Description: "Output file name."},
		{Name: "IP", Default: cty.NumberIntVal(1), Description: "Store period in passes."},
	},
	Format: func(c *Command) (string, error) {
		ip, err := paramNum(c, "IP")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), paramStr(c, "FNAME"), fint(ip)), nil
	},
}

// Matrix computes transfer coefficients and periodic parameters.
var Matrix = &Definition{
	Keyword:     "MATRIX",
	Description: "Calculation of transfer coefficients, periodic parameters.",
	Schema: []ParamSpec{
		{Name: "IORD", Default: cty.NumberIntVal(1), Description: "Expansion order."},
		{Name: "IFOC", Default: cty.NumberIntVal(11), Description: "IFOC=11 gives periodic parameters (single pass)."},
	},
	Format: func(c *Command) (string, error) {
		iord, err := paramNum(c, "IORD")
		if err != nil {
			return "", err
		}
		ifoc, err := paramNum(c, "IFOC")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), fmt.Sprintf("%s %s PRINT", fint(iord), fint(ifoc))), nil
	},
}

// Twiss computes periodic optical parameters.
var Twiss = &Definition{
	Keyword:     "TWISS",
	Description: "Calculation of periodic optical parameters.",
	Schema: []ParamSpec{
		{Name: "KTW", Default: cty.NumberIntVal(1), Description: "Computation flag."},
		{Name: "FACD", Default: cty.NumberFloatVal(1.0), Description: "Momentum sampling factor."},
		{Name: "FACA", Default: cty.NumberFloatVal(0.0), Description: "Unused."},
	},
	Format: func(c *Command) (string, error) {
		ktw, err := paramNum(c, "KTW")
		if err != nil {
			return "", err
		}
		facd, err := paramNum(c, "FACD")
		if err != nil {
			return "", err
		}
		faca, err := paramNum(c, "FACA")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), fmt.Sprintf("%s %s %s", fint(ktw), fexp(facd), fexp(faca))), nil
	},
}

// Optics writes out optical functions.
var Optics = &Definition{
	Keyword:     "OPTICS",
	Description: "Write out optical functions.",
	Format:      bare,
}

// Focale prints particle coordinates and horizontal beam size at distance XL.
var Focale = &Definition{
	Keyword:     "FOCALE",
	Description: "Particle coordinates and horizontal beam size at distance XL.",
	Schema: []ParamSpec{
		{Name: "XL", Default: quantity.Val(quantity.MustNew(0, "cm")), Description: "Distance from the location of the keyword."},
	},
	Format: focaleFormat,
}

// FocaleZ prints particle coordinates and vertical beam size at distance XL.
var FocaleZ = &Definition{
	Keyword:     "FOCALEZ",
	Description: "Particle coordinates and vertical beam size at distance XL.",
	Schema: []ParamSpec{
		{Name: "XL", Default: quantity.Val(quantity.MustNew(0, "cm")), Description: "Distance from the location of the keyword."},
	},
	Format: focaleFormat,
}

func focaleFormat(c *Command) (string, error) {
	xl, err := paramMag(c, "XL", "cm")
	if err != nil {
		return "", err
	}
	return block(c.HeaderLine(), fnum(xl)), nil
}

// GetFitVal reloads variable values saved by a former FIT run.
var GetFitVal = &Definition{
	Keyword:     "GETFITVAL",
	Description: "Get values of variables as saved from a former FIT run.",
	Schema: []ParamSpec{
		{Name: "FNAME", Default: cty.StringVal("zgoubi.res"), Description: "Result file to read."},
	},
	Format: func(c *Command) (string, error) {
		return block(c.HeaderLine(), paramStr(c, "FNAME")), nil
	},
}

// Fit runs the engine's fitting procedure. PARAMS and CONSTRAINTS are lists
// of objects with the engine's own field names.
var Fit = &Definition{
	Keyword:     "FIT",
	Description: "Fitting procedure.",
	Schema: []ParamSpec{
		{Name: "PARAMS", Default: cty.EmptyTupleVal, Description: "Physical parameters to be varied (IR, IP, XC, DV)."},
		{Name: "CONSTRAINTS", Default: cty.EmptyTupleVal, Description: "Constraints (IC, I, J, IR, V, WV, NP)."},
		{Name: "PENALTY", Default: cty.NumberFloatVal(1.0e-14), Description: "Penalty."},
		{Name: "ITERATIONS", Default: cty.NumberIntVal(1000), Description: "Iterations."},
	},
	Format: fitFormat,
}

func fitFormat(c *Command) (string, error) {
	params, ok := c.Get("PARAMS")
	if !ok {
		params = cty.EmptyTupleVal
	}
	constraints, ok := c.Get("CONSTRAINTS")
	if !ok {
		constraints = cty.EmptyTupleVal
	}
	penalty, err := paramNum(c, "PENALTY")
	if err != nil {
		return "", err
	}
	iterations, err := paramNum(c, "ITERATIONS")
	if err != nil {
		return "", err
	}

	lines := []string{c.HeaderLine(), fint(float64(params.LengthInt()))}
	appendObjLine := func(v cty.Value, fields []string, suffix string) error {
		parts := make([]string, 0, len(fields)+1)
		for _, f := range fields {
			if !v.Type().IsObjectType() || !v.Type().HasAttribute(f) {
				return fmt.Errorf("missing field %s", f)
			}
			fv := v.GetAttr(f)
			n, err := num(fv)
			if err != nil {
				return fmt.Errorf("field %s: %w", f, err)
			}
			parts = append(parts, fnum(n))
		}
		if suffix != "" {
			parts = append(parts, suffix)
		}
		lines = append(lines, strings.Join(parts, " "))
		return nil
	}
	for it := params.ElementIterator(); it.Next(); {
		_, p := it.Element()
		if err := appendObjLine(p, []string{"IR", "IP", "XC"}, "[-30.0,30.0]"); err != nil {
			return "", fmt.Errorf("command %s[%s]: PARAMS: %w", c.Keyword(), c.Label1, err)
		}
	}
	lines = append(lines, fmt.Sprintf("%s %s %s",
		fint(float64(constraints.LengthInt())), fexp(penalty), fint(iterations)))
	for it := constraints.ElementIterator(); it.Next(); {
		_, con := it.Element()
		if err := appendObjLine(con, []string{"IC", "I", "J", "IR", "V", "WV", "NP"}, ""); err != nil {
			return "", fmt.Errorf("command %s[%s]: CONSTRAINTS: %w", c.Keyword(), c.Label1, err)
		}
	}
	return block(lines...), nil
}

// Rebelote repeats the run.
var Rebelote = &Definition{
	Keyword:     "REBELOTE",
	Description: "Do it again.",
	Schema: []ParamSpec{
		{Name: "NPASS", Default: cty.NumberIntVal(1), Description: "Number of passes."},
		{Name: "KWRIT", Default: cty.NumberFloatVal(1.1), Description: "Write control flag."},
		{Name: "K", Default: cty.NumberIntVal(99), Description: "Run control flag."},
	},
	Format: func(c *Command) (string, error) {
		npass, err := paramNum(c, "NPASS")
		if err != nil {
			return "", err
		}
		kwrit, err := paramNum(c, "KWRIT")
		if err != nil {
			return "", err
		}
		k, err := paramNum(c, "K")
		if err != nil {
			return "", err
		}
		return block(c.HeaderLine(), fmt.Sprintf("%s %s %s", fint(npass), fnum(kwrit), fint(k))), nil
	},
}

// SRLoss enables synchrotron radiation loss tracking.
var SRLoss = &Definition{
	Keyword:     "SRLOSS",
	Description: "Synchrotron radiation loss.",
	Format:      bare,
}

// SRPrint prints synchrotron radiation loss statistics.
var SRPrint = &Definition{
	Keyword:     "SRPRNT",
	Description: "Print SR loss statistics.",
	Format:      bare,
}

// AutoRef transforms automatically to a new reference frame.
var AutoRef = &Definition{
	Keyword:     "AUTOREF",
	Description: "Automatic transformation to a new reference frame.",
	Format:      bare,
}

// End terminates an input deck.
var End = &Definition{
	Keyword:     "END",
	Description: "End of input data list.",
	IsTerminal:  true,
	Format:      bare,
}

// Fin terminates an input deck (French spelling accepted by the engine).
var Fin = &Definition{
	Keyword:     "FIN",
	Description: "End of input data list.",
	IsTerminal:  true,
	Format:      bare,
}

// Builtins returns a registry with every built-in kind.
func Builtins() *Registry {
	return NewRegistry(
		Objet, MCObjet, Beam,
		Drift, Marker, Collimateur, ChangeRef, Ymy, AutoRef,
		Faisceau, Faiscnl, FaiStore,
		Matrix, Twiss, Optics, Focale, FocaleZ,
		GetFitVal, Fit, Rebelote,
		SRLoss, SRPrint,
		End, Fin,
	)
}

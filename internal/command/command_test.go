package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/zgoubigo/internal/quantity"
	"github.com/vk/zgoubigo/internal/sweep"
)

func TestNewAppliesSchemaDefaults(t *testing.T) {
	c := New(Objet, WithLabel1("BUNCH"))

	v, ok := c.Get("KOBJ")
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(1)))

	v, ok = c.Get("IMAX")
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(1)))
}

func TestNewGeneratesLabelWhenMissing(t *testing.T) {
	a := New(Drift)
	b := New(Drift)

	assert.Len(t, a.Label1, MaxLabelLength)
	assert.NotEqual(t, a.Label1, b.Label1)
}

func TestNewTruncatesOverlongLabel(t *testing.T) {
	c := New(Drift, WithLabel1("ABCDEFGHIJKLMNOP"))
	assert.Equal(t, "ABCDEFGHIJ", c.Label1)
}

func TestNewCustomLabelFunc(t *testing.T) {
	gen := func() string { return "FIXED" }
	c := New(Drift, WithLabels(gen))
	assert.Equal(t, "FIXED", c.Label1)
}

func TestSetReturnsPrior(t *testing.T) {
	c := New(Drift, WithLabel1("D1"))

	prior, ok := c.Set("XL", quantity.Val(quantity.MustNew(25, "cm")))
	require.True(t, ok)
	qty, isQty := quantity.FromCty(prior)
	require.True(t, isQty)
	assert.Equal(t, 0.0, qty.Magnitude())
}

func TestSetUnknownParameterIsDropped(t *testing.T) {
	c := New(Drift, WithLabel1("D1"))

	_, ok := c.Set("NO_SUCH", cty.NumberIntVal(1))
	assert.False(t, ok)
	_, exists := c.Get("NO_SUCH")
	assert.False(t, exists)
}

func TestHeaderLineTrimsEmptyLabels(t *testing.T) {
	c := New(Marker, WithLabel1("M1"))
	assert.Equal(t, "'MARKER' M1", c.HeaderLine())

	c = New(Marker, WithLabel1("M1"), WithLabel2("S"))
	assert.Equal(t, "'MARKER' M1 S", c.HeaderLine())
}

func TestSerializeObjet(t *testing.T) {
	c := New(Objet,
		WithLabel1("BUNCH"),
		WithParam("BORO", cty.NumberFloatVal(2149)),
		WithParam("IMAX", cty.NumberIntVal(100)),
	)

	text, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "'OBJET' BUNCH\n2149\n1\n100\n", text)
}

func TestSerializeDriftConvertsToCentimeters(t *testing.T) {
	c := New(Drift,
		WithLabel1("D1"),
		WithParam("XL", quantity.Val(quantity.MustNew(1.5, "m"))),
	)

	text, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "'ESL' D1\n150\n", text)
}

func TestSerializeChangeRef(t *testing.T) {
	c := New(ChangeRef,
		WithLabel1("CR"),
		WithParam("TRANSFORMATIONS", cty.TupleVal([]cty.Value{
			cty.TupleVal([]cty.Value{cty.StringVal("XS"), quantity.Val(quantity.MustNew(1, "m"))}),
			cty.TupleVal([]cty.Value{cty.StringVal("ZR"), quantity.Val(quantity.MustNew(90, "deg"))}),
		})),
	)

	text, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "'CHANGREF' CR\nXS 100 ZR 90\n", text)
}

func TestSerializeFaiscnlBinarySwitchesFilename(t *testing.T) {
	c := New(Faiscnl, WithLabel1("F1"))
	text, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "'FAISCNL' F1\nzgoubi.fai\n", text)

	c = New(Faiscnl, WithLabel1("F1"), WithParam("BINARY", cty.True))
	text, err = c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "'FAISCNL' F1\nb_zgoubi.fai\n", text)
}

func TestSerializeFit(t *testing.T) {
	c := New(Fit,
		WithLabel1("FIT1"),
		WithParam("PARAMS", cty.TupleVal([]cty.Value{
			cty.ObjectVal(map[string]cty.Value{
				"IR": cty.NumberIntVal(2),
				"IP": cty.NumberIntVal(10),
				"XC": cty.NumberIntVal(0),
			}),
		})),
		WithParam("CONSTRAINTS", cty.TupleVal([]cty.Value{
			cty.ObjectVal(map[string]cty.Value{
				"IC": cty.NumberFloatVal(3.1),
				"I":  cty.NumberIntVal(1),
				"J":  cty.NumberIntVal(2),
				"IR": cty.NumberIntVal(4),
				"V":  cty.NumberIntVal(0),
				"WV": cty.NumberIntVal(1),
				"NP": cty.NumberIntVal(0),
			}),
		})),
	)

	text, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t,
		"'FIT' FIT1\n"+
			"1\n"+
			"2 10 0 [-30.0,30.0]\n"+
			"1 1.000000000000e-14 1000\n"+
			"3.1 1 2 4 0 1 0\n",
		text)
}

func TestPatchChangeRef(t *testing.T) {
	c := New(ChangeRef,
		WithLabel1("CR"),
		WithParam("TRANSFORMATIONS", cty.TupleVal([]cty.Value{
			cty.TupleVal([]cty.Value{cty.StringVal("XS"), quantity.Val(quantity.MustNew(2, "m"))}),
			cty.TupleVal([]cty.Value{cty.StringVal("ZR"), quantity.Val(quantity.MustNew(0.5, "rad"))}),
		})),
	)

	frame := NewSurveyFrame()
	require.NoError(t, c.Patch(frame))
	assert.Equal(t, 2.0, frame.Translation("X"))
	assert.Equal(t, 0.5, frame.Rotation("Z"))
}

func TestPatchYmyRotatesAroundX(t *testing.T) {
	c := New(Ymy, WithLabel1("Y1"))

	frame := NewSurveyFrame()
	require.NoError(t, c.Patch(frame))
	assert.InDelta(t, 3.14159265, frame.Rotation("X"), 1e-6)
}

func TestPatchWithoutHookIsANoOp(t *testing.T) {
	c := New(Drift, WithLabel1("D1"))
	require.NoError(t, c.Patch(NewSurveyFrame()))
}

func TestAttachOutputAccumulates(t *testing.T) {
	c := New(Drift, WithLabel1("D1"))
	assert.False(t, c.HasOutput())

	a1 := sweep.Assignment{}
	require.NoError(t, c.AttachOutput([]string{"line one"}, a1))
	require.NoError(t, c.AttachOutput([]string{"line two"}, a1))

	require.True(t, c.HasOutput())
	require.Len(t, c.Outputs(), 2)
	assert.Equal(t, []string{"line two"}, c.Outputs()[1].Lines)

	c.ClearOutputs()
	assert.False(t, c.HasOutput())
}

func TestAttachOutputInvokesPostProcess(t *testing.T) {
	var seen []string
	def := &Definition{
		Keyword: "PROBE",
		PostProcess: func(c *Command, _ sweep.Assignment, lines []string) error {
			seen = append(seen, lines...)
			if len(lines) == 0 {
				return assert.AnError
			}
			return nil
		},
	}

	c := New(def, WithLabel1("P1"))
	require.NoError(t, c.AttachOutput([]string{"data"}, sweep.Assignment{}))
	assert.Equal(t, []string{"data"}, seen)

	err := c.AttachOutput(nil, sweep.Assignment{})
	require.ErrorIs(t, err, assert.AnError)
	assert.Len(t, c.Outputs(), 2, "the attachment is recorded even when post-processing fails")
}

func TestCopyIsIndependent(t *testing.T) {
	orig := New(Drift, WithLabel1("D1"), WithParam("XL", quantity.Val(quantity.MustNew(10, "cm"))))
	require.NoError(t, orig.AttachOutput([]string{"out"}, sweep.Assignment{}))

	cp := orig.Copy()
	assert.Equal(t, "D1", cp.Label1)
	assert.False(t, cp.HasOutput(), "copies start in the no-output state")

	cp.Set("XL", quantity.Val(quantity.MustNew(99, "cm")))
	v, _ := orig.Get("XL")
	qty, _ := quantity.FromCty(v)
	assert.Equal(t, 10.0, qty.Magnitude())
}

func TestRegistry(t *testing.T) {
	t.Run("lookup finds builtin kinds", func(t *testing.T) {
		reg := Builtins()
		def, ok := reg.Lookup("ESL")
		require.True(t, ok)
		assert.Same(t, Drift, def)

		_, ok = reg.Lookup("NOPE")
		assert.False(t, ok)
	})

	t.Run("duplicate keyword panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewRegistry(Drift, Drift)
		})
	})

	t.Run("keywords are sorted", func(t *testing.T) {
		reg := NewRegistry(Ymy, Drift, Marker)
		assert.Equal(t, []string{"ESL", "MARKER", "YMY"}, reg.Keywords())
	})
}

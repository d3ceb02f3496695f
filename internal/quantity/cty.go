package quantity

import (
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
)

// capsule carries a Quantity through the cty value model so that command
// parameters and HCL deck attributes share one representation.
type capsule struct {
	Q Quantity
}

// CtyType is the cty capsule type for quantities.
var CtyType = cty.Capsule("quantity", reflect.TypeOf(capsule{}))

// Val wraps a Quantity into a cty.Value.
func Val(qty Quantity) cty.Value {
	return cty.CapsuleVal(CtyType, &capsule{Q: qty})
}

// FromCty unwraps a Quantity from a cty.Value, reporting whether the value
// holds one.
func FromCty(v cty.Value) (Quantity, bool) {
	if v.IsNull() || !v.Type().Equals(CtyType) {
		return nil, false
	}
	c, ok := v.EncapsulatedValue().(*capsule)
	if !ok {
		return nil, false
	}
	return c.Q, true
}

// MagnitudeFromCty extracts a bare float from a cty value: quantities are
// converted to the requested unit, plain numbers are taken as already being
// in that unit.
func MagnitudeFromCty(v cty.Value, unit string) (float64, error) {
	if qty, ok := FromCty(v); ok {
		return MagnitudeIn(qty, unit)
	}
	if v.Type() == cty.Number {
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	}
	return 0, fmt.Errorf("quantity: value %s is neither a quantity nor a number", v.Type().FriendlyName())
}

// Package quantity is the seam between the input model and the external
// unit system. The serializers only ever need a magnitude expressed in a
// specific engine unit; everything richer (full dimensional analysis,
// arbitrary unit registries) stays outside this repository.
package quantity

import (
	"fmt"
)

// Dimension identifies the physical dimension of a quantity.
type Dimension string

const (
	Dimensionless Dimension = "dimensionless"
	Length        Dimension = "length"
	Angle         Dimension = "angle"
	Energy        Dimension = "energy"
	MagneticField Dimension = "magnetic_field"
)

// Quantity is the capability consumed by the command serializers: a
// magnitude attached to a unit, convertible within its own dimension.
type Quantity interface {
	Magnitude() float64
	Unit() string
	Dimension() Dimension
	// To converts the quantity to the given unit. Converting across
	// dimensions is an error.
	To(unit string) (Quantity, error)
}

// unitDef maps a unit symbol to its dimension and its scale relative to the
// dimension's base unit (m, rad, eV, T).
type unitDef struct {
	dim   Dimension
	scale float64
}

var units = map[string]unitDef{
	"":     {Dimensionless, 1},
	"1":    {Dimensionless, 1},
	"m":    {Length, 1},
	"cm":   {Length, 1e-2},
	"mm":   {Length, 1e-3},
	"km":   {Length, 1e3},
	"rad":  {Angle, 1},
	"mrad": {Angle, 1e-3},
	"deg":  {Angle, 0.017453292519943295},
	"eV":   {Energy, 1},
	"keV":  {Energy, 1e3},
	"MeV":  {Energy, 1e6},
	"GeV":  {Energy, 1e9},
	"T":    {MagneticField, 1},
	"kG":   {MagneticField, 0.1},
}

// q is the built-in Quantity implementation backed by the static unit table.
type q struct {
	mag  float64
	unit string
	def  unitDef
}

// New builds a Quantity from a magnitude and a unit symbol. Unknown unit
// symbols are an error; callers with richer unit systems should adapt their
// own types to the Quantity interface instead.
func New(mag float64, unit string) (Quantity, error) {
	def, ok := units[unit]
	if !ok {
		return nil, fmt.Errorf("quantity: unknown unit %q", unit)
	}
	return q{mag: mag, unit: unit, def: def}, nil
}

// MustNew is New but panics on unknown units. Intended for literals in
// schema defaults, where the unit symbol is static.
func MustNew(mag float64, unit string) Quantity {
	v, err := New(mag, unit)
	if err != nil {
		panic(err)
	}
	return v
}

func (v q) Magnitude() float64   { return v.mag }
func (v q) Unit() string         { return v.unit }
func (v q) Dimension() Dimension { return v.def.dim }

func (v q) To(unit string) (Quantity, error) {
	if unit == v.unit {
		return v, nil
	}
	def, ok := units[unit]
	if !ok {
		return nil, fmt.Errorf("quantity: unknown unit %q", unit)
	}
	if def.dim != v.def.dim {
		return nil, fmt.Errorf("quantity: cannot convert %s to %s (%s to %s)",
			v.unit, unit, v.def.dim, def.dim)
	}
	return q{mag: v.mag * v.def.scale / def.scale, unit: unit, def: def}, nil
}

func (v q) String() string {
	if v.unit == "" {
		return fmt.Sprintf("%g", v.mag)
	}
	return fmt.Sprintf("%g %s", v.mag, v.unit)
}

// MagnitudeIn is a convenience wrapper: the magnitude of qty expressed in
// the given unit.
func MagnitudeIn(qty Quantity, unit string) (float64, error) {
	converted, err := qty.To(unit)
	if err != nil {
		return 0, err
	}
	return converted.Magnitude(), nil
}

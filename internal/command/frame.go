package command

import (
	"fmt"

	"github.com/vk/zgoubigo/internal/quantity"
)

// Frame is the spatial reference-frame capability consumed by frame-bearing
// command kinds. The geometry implementation lives outside this module;
// kinds only translate and rotate an entry frame handed to them.
type Frame interface {
	// TranslateAxis shifts the frame along the named axis ("X", "Y", "Z")
	// by a length quantity.
	TranslateAxis(axis string, by quantity.Quantity) error
	// RotateAxis rotates the frame around the named axis by an angle
	// quantity.
	RotateAxis(axis string, by quantity.Quantity) error
}

// SurveyFrame is the built-in Frame: accumulated translations (m) and
// rotations (rad) per axis. It is enough to survey command placement along
// a line; richer geometry adapts its own type to Frame instead.
type SurveyFrame struct {
	translations map[string]float64
	rotations    map[string]float64
}

// NewSurveyFrame creates a frame at the origin.
func NewSurveyFrame() *SurveyFrame {
	return &SurveyFrame{
		translations: make(map[string]float64),
		rotations:    make(map[string]float64),
	}
}

func validAxis(axis string) error {
	switch axis {
	case "X", "Y", "Z":
		return nil
	}
	return fmt.Errorf("frame: unknown axis %q", axis)
}

// TranslateAxis shifts the frame along an axis.
func (f *SurveyFrame) TranslateAxis(axis string, by quantity.Quantity) error {
	if err := validAxis(axis); err != nil {
		return err
	}
	m, err := quantity.MagnitudeIn(by, "m")
	if err != nil {
		return err
	}
	f.translations[axis] += m
	return nil
}

// RotateAxis rotates the frame around an axis.
func (f *SurveyFrame) RotateAxis(axis string, by quantity.Quantity) error {
	if err := validAxis(axis); err != nil {
		return err
	}
	rad, err := quantity.MagnitudeIn(by, "rad")
	if err != nil {
		return err
	}
	f.rotations[axis] += rad
	return nil
}

// Translation returns the accumulated shift along an axis in meters.
func (f *SurveyFrame) Translation(axis string) float64 {
	return f.translations[axis]
}

// Rotation returns the accumulated rotation around an axis in radians.
func (f *SurveyFrame) Rotation(axis string) float64 {
	return f.rotations[axis]
}

// Package coord converts points, velocities and scalar-field derivatives
// between Cartesian, cylindrical, spherical and confocal prolate-spheroidal
// coordinates.
//
// Every conversion is a pure one-point function keyed on the (source,
// destination) pair. Derivative conversions also return the Jacobian and the
// second derivatives of the coordinate map, which are then used to push
// gradients and Hessians of a scalar field from one system to another.
//
// Coordinate order:
//
//	Car      x, y, z
//	Cyl      R, z, φ
//	Sph      r, θ, φ   (θ measured from the +z axis)
//	ProlSph  λ, ν, φ   (λ ≥ -α ≥ ν ≥ -γ)
package coord

import (
	"fmt"
	"math"
	"strings"
)

// System identifies one of the supported coordinate systems.
type System int

const (
	Car System = iota
	Cyl
	Sph
	ProlSph
)

var systemNames = [...]string{"Cartesian", "Cylindrical", "Spherical", "ProlateSpheroidal"}

var systemTags = [...]string{"car", "cyl", "sph", "prolsph"}

var systemAxes = [...][3]string{
	{"x", "y", "z"},
	{"R", "z", "phi"},
	{"r", "theta", "phi"},
	{"lambda", "nu", "phi"},
}

// String returns the human-readable name of the system.
func (s System) String() string {
	if !s.Valid() {
		return fmt.Sprintf("System(%d)", int(s))
	}
	return systemNames[s]
}

// Valid reports whether s is one of the four known systems.
func (s System) Valid() bool {
	return s >= Car && s <= ProlSph
}

// Axis names the i-th coordinate of the system.
func (s System) Axis(i int) string {
	if !s.Valid() || i < 0 || i > 2 {
		return ""
	}
	return systemAxes[s][i]
}

// Tag returns the short lower-case name used on the wire.
func (s System) Tag() string {
	if !s.Valid() {
		return ""
	}
	return systemTags[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s System) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal %v: %w", s, ErrUnsupported)
	}
	return []byte(s.Tag()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *System) UnmarshalText(b []byte) error {
	v, err := ParseSystem(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSystem accepts the short tag ("car", "cyl", "sph", "prolsph") or the
// full name, case-insensitively.
func ParseSystem(name string) (System, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "car", "cartesian":
		return Car, nil
	case "cyl", "cylindrical":
		return Cyl, nil
	case "sph", "spherical":
		return Sph, nil
	case "prolsph", "prolatespheroidal":
		return ProlSph, nil
	}
	return 0, fmt.Errorf("parse system %q: %w", name, ErrUnsupported)
}

// Shape holds the focal parameters of a prolate-spheroidal system.
// The foci sit on the z axis at ±sqrt(γ-α).
type Shape struct {
	Alpha float64
	Gamma float64
}

// NewShape validates α < γ < 0.
func NewShape(alpha, gamma float64) (Shape, error) {
	s := Shape{Alpha: alpha, Gamma: gamma}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// Validate returns ErrInvalidConfig unless α < γ < 0.
func (s Shape) Validate() error {
	if math.IsNaN(s.Alpha) || math.IsNaN(s.Gamma) || !(s.Alpha < s.Gamma && s.Gamma < 0) {
		return fmt.Errorf("prolate-spheroidal shape alpha=%g gamma=%g: need alpha < gamma < 0: %w",
			s.Alpha, s.Gamma, ErrInvalidConfig)
	}
	return nil
}

// FocalDistance returns sqrt(γ-α).
func (s Shape) FocalDistance() float64 {
	return math.Sqrt(s.Gamma - s.Alpha)
}

// shapeOf returns the shape that travels with a value of system sys.
// Only prolate-spheroidal values carry one.
func shapeOf(sys System, s Shape) Shape {
	if sys == ProlSph {
		return s
	}
	return Shape{}
}

// checkShape compares the shapes of two values of the same system.
func checkShape(sys System, a, b Shape) error {
	if sys == ProlSph && a != b {
		return fmt.Errorf("shape (%g,%g) vs (%g,%g): %w", a.Alpha, a.Gamma, b.Alpha, b.Gamma, ErrShapeMismatch)
	}
	return nil
}

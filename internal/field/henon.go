// Package field provides scalar fields with known analytic derivatives.
// They stand in for gravitational potentials when checking that gradients
// and Hessians survive a change of coordinates.
package field

import (
	"fmt"
	"math"

	"github.com/star/galcoord/internal/coord"
)

// HenonHeiles is the Hénon–Heiles potential
//
//	Φ = (x² + y²)/2 + z (x² - y²/3) y
//
// evaluated in Cartesian coordinates after shifting the origin to -Offset.
type HenonHeiles struct {
	Offset [3]float64
}

// DefaultHenonHeiles puts the field origin off every symmetry axis so that
// no coordinate singularity coincides with a stationary point.
func DefaultHenonHeiles() HenonHeiles {
	return HenonHeiles{Offset: [3]float64{-0.5, 1.5, 0.25}}
}

func (HenonHeiles) System() coord.System { return coord.Car }
func (HenonHeiles) Shape() coord.Shape   { return coord.Shape{} }

func (f HenonHeiles) EvalScalar(p coord.Pos, value *float64, grad *coord.Grad, hess *coord.Hess) error {
	if p.Sys != coord.Car {
		return fmt.Errorf("henon-heiles in %s: %w", p.Sys, coord.ErrSystemMismatch)
	}
	x := p.C[0] + f.Offset[0]
	y := p.C[1] + f.Offset[1]
	z := p.C[2] + f.Offset[2]
	if value != nil {
		*value = (x*x+y*y)/2 + z*(x*x-y*y/3)*y
	}
	if grad != nil {
		*grad = coord.Grad{Sys: coord.Car, D: [3]float64{
			x * (1 + 2*z*y),
			y + z*(x*x-y*y),
			(x*x - y*y/3) * y,
		}}
	}
	if hess != nil {
		*hess = coord.Hess{Sys: coord.Car, D: [6]float64{
			1 + 2*z*y,
			1 - 2*z*y,
			0,
			2 * z * x,
			x*x - y*y,
			2 * y * x,
		}}
	}
	return nil
}

// HenonHeilesCyl is the unshifted Hénon–Heiles potential written natively
// in cylindrical coordinates:
//
//	Φ = R²/2 + z R³ sin φ (3 - 4 sin²φ)/3
type HenonHeilesCyl struct{}

func (HenonHeilesCyl) System() coord.System { return coord.Cyl }
func (HenonHeilesCyl) Shape() coord.Shape   { return coord.Shape{} }

func (HenonHeilesCyl) EvalScalar(p coord.Pos, value *float64, grad *coord.Grad, hess *coord.Hess) error {
	if p.Sys != coord.Cyl {
		return fmt.Errorf("henon-heiles in %s: %w", p.Sys, coord.ErrSystemMismatch)
	}
	R, z, phi := p.C[0], p.C[1], p.C[2]
	s, c := math.Sincos(phi)
	s2 := s * s
	R2 := R * R
	R3 := R * R2
	if value != nil {
		*value = R2 * (3 + R*z*s*(6-8*s2)) / 6
	}
	if grad != nil {
		*grad = coord.Grad{Sys: coord.Cyl, D: [3]float64{
			R * (1 + R*z*s*(3-4*s2)),
			R3 * s * (3 - 4*s2) / 3,
			R3 * z * c * (1 - 4*s2),
		}}
	}
	if hess != nil {
		*hess = coord.Hess{Sys: coord.Cyl, D: [6]float64{
			1 + 2*R*z*s*(3-4*s2),
			0,
			R3 * z * s * (-9 + 12*s2),
			R2 * s * (3 - 4*s2),
			R3 * c * (1 - 4*s2),
			R2 * z * c * (3 - 12*s2),
		}}
	}
	return nil
}

// HarmonicMix is a sum of two low-order spherical harmonic terms with
// power-law radial factors, evaluated natively in spherical coordinates:
//
//	Φ = r^(5/2) sin θ sin(φ+2) - r² sin²θ cos(2φ-3)
type HarmonicMix struct{}

func (HarmonicMix) System() coord.System { return coord.Sph }
func (HarmonicMix) Shape() coord.Shape   { return coord.Shape{} }

func (HarmonicMix) EvalScalar(p coord.Pos, value *float64, grad *coord.Grad, hess *coord.Hess) error {
	if p.Sys != coord.Sph {
		return fmt.Errorf("harmonic mix in %s: %w", p.Sys, coord.ErrSystemMismatch)
	}
	r, theta, phi := p.C[0], p.C[1], p.C[2]
	st, ct := math.Sincos(theta)
	s2t := math.Sin(2 * theta)
	c2t := math.Cos(2 * theta)
	sa, ca := math.Sincos(phi + 2)
	sb, cb := math.Sincos(2*phi - 3)
	r2 := r * r
	r15 := math.Pow(r, 1.5)
	r25 := r15 * r

	if value != nil {
		*value = r25*st*sa - r2*st*st*cb
	}
	if grad != nil {
		*grad = coord.Grad{Sys: coord.Sph, D: [3]float64{
			2.5*r15*st*sa - 2*r*st*st*cb,
			r25*ct*sa - r2*s2t*cb,
			r25*st*ca + 2*r2*st*st*sb,
		}}
	}
	if hess != nil {
		*hess = coord.Hess{Sys: coord.Sph, D: [6]float64{
			3.75*math.Sqrt(r)*st*sa - 2*st*st*cb,
			-r25*st*sa - 2*r2*c2t*cb,
			-r25*st*sa + 4*r2*st*st*cb,
			2.5*r15*ct*sa - 2*r*s2t*cb,
			r25*ct*ca + 2*r2*s2t*sb,
			2.5*r15*st*ca + 4*r*st*st*sb,
		}}
	}
	return nil
}

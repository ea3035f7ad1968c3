package field

import (
	"fmt"
	"math"

	"github.com/star/galcoord/internal/coord"
)

// Plummer is the Plummer sphere potential Φ = -M / sqrt(r² + b²).
type Plummer struct {
	Mass  float64
	Scale float64
}

func (p Plummer) EvalDeriv(r float64) (f, df, d2f float64) {
	b2 := p.Scale * p.Scale
	q := r*r + b2
	sq := math.Sqrt(q)
	f = -p.Mass / sq
	df = p.Mass * r / (q * sq)
	d2f = p.Mass * (b2 - 2*r*r) / (q * q * sq)
	return f, df, d2f
}

// Dehnen is the spherical Dehnen (1993) model with inner slope Gamma:
//
//	Φ = M/a · (1 - (r/(r+a))^(2-γ)) / (γ-2),   γ ≠ 2
//	Φ = M/a · ln(r/(r+a)),                      γ = 2
type Dehnen struct {
	Mass  float64
	Scale float64
	Gamma float64
}

// Validate requires positive mass and scale and 0 ≤ γ < 3.
func (d Dehnen) Validate() error {
	if !(d.Mass > 0) || !(d.Scale > 0) || !(d.Gamma >= 0 && d.Gamma < 3) {
		return fmt.Errorf("dehnen mass=%g scale=%g gamma=%g: %w", d.Mass, d.Scale, d.Gamma, coord.ErrInvalidConfig)
	}
	return nil
}

func (d Dehnen) EvalDeriv(r float64) (f, df, d2f float64) {
	m, a, g := d.Mass, d.Scale, d.Gamma
	if r == 0 {
		switch {
		case g == 2:
			f = math.Inf(-1)
		default:
			f = -m / (a * (2 - g))
		}
		switch {
		case g == 0:
			return f, 0, m / (a * a * a)
		case g < 1:
			return f, 0, math.Inf(1)
		case g == 1:
			return f, m / (a * a), math.Inf(-1)
		}
		return f, math.Inf(1), math.Inf(-1)
	}

	if g == 2 {
		f = m / a * math.Log(r/(r+a))
	} else {
		f = m / a * (1 - math.Pow(r/(r+a), 2-g)) / (g - 2)
	}
	// val = Φ'(r)/r
	val := m * math.Pow(r, -g) * math.Pow(r+a, g-3)
	df = val * r
	d2f = val * (a*(1-g) - 2*r) / (r + a)
	return f, df, d2f
}

// Spherical adapts a radial profile to the ScalarField interface. It is
// evaluated natively in spherical coordinates.
type Spherical struct {
	Profile coord.RadialFunction
}

func (Spherical) System() coord.System { return coord.Sph }
func (Spherical) Shape() coord.Shape   { return coord.Shape{} }

func (s Spherical) EvalScalar(p coord.Pos, value *float64, grad *coord.Grad, hess *coord.Hess) error {
	if p.Sys != coord.Sph {
		return fmt.Errorf("spherical profile in %s: %w", p.Sys, coord.ErrSystemMismatch)
	}
	return coord.EvalAndConvertSph(s.Profile, p, value, grad, hess)
}

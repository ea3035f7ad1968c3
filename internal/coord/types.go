package coord

import (
	"fmt"
	"math"
)

// Pos is a point expressed in one coordinate system.
// Shape is only meaningful when Sys is ProlSph.
type Pos struct {
	Sys   System
	C     [3]float64
	Shape Shape
}

func PosCar(x, y, z float64) Pos       { return Pos{Sys: Car, C: [3]float64{x, y, z}} }
func PosCyl(R, z, phi float64) Pos     { return Pos{Sys: Cyl, C: [3]float64{R, z, phi}} }
func PosSph(r, theta, phi float64) Pos { return Pos{Sys: Sph, C: [3]float64{r, theta, phi}} }

func PosProlSph(lambda, nu, phi float64, shape Shape) Pos {
	return Pos{Sys: ProlSph, C: [3]float64{lambda, nu, phi}, Shape: shape}
}

// Validate checks that the coordinates lie in the domain of the system.
func (p Pos) Validate() error {
	if !p.Sys.Valid() {
		return fmt.Errorf("position: %w", ErrUnsupported)
	}
	for i, c := range p.C {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%s coordinate %s is %g: %w", p.Sys, p.Sys.Axis(i), c, ErrInvalidConfig)
		}
	}
	switch p.Sys {
	case Cyl:
		if p.C[0] < 0 {
			return fmt.Errorf("cylindrical R=%g < 0: %w", p.C[0], ErrInvalidConfig)
		}
	case Sph:
		if p.C[0] < 0 {
			return fmt.Errorf("spherical r=%g < 0: %w", p.C[0], ErrInvalidConfig)
		}
		if p.C[1] < 0 || p.C[1] > math.Pi {
			return fmt.Errorf("spherical theta=%g outside [0,pi]: %w", p.C[1], ErrInvalidConfig)
		}
	case ProlSph:
		if err := p.Shape.Validate(); err != nil {
			return err
		}
		a, g := p.Shape.Alpha, p.Shape.Gamma
		if p.C[0] < -a || p.C[1] > -a || p.C[1] < -g {
			return fmt.Errorf("prolate-spheroidal lambda=%g nu=%g outside [-alpha,inf) x [-gamma,-alpha]: %w",
				p.C[0], p.C[1], ErrInvalidConfig)
		}
	}
	return nil
}

// PosVel is a point with its velocity. Velocities are physical components
// for Car, Cyl and Sph (vx,vy,vz / vR,vz,vφ / vr,vθ,vφ) and coordinate rates
// (dλ/dt, dν/dt, dφ/dt) for ProlSph.
type PosVel struct {
	Pos
	V [3]float64
}

func PosVelCar(x, y, z, vx, vy, vz float64) PosVel {
	return PosVel{Pos: PosCar(x, y, z), V: [3]float64{vx, vy, vz}}
}

func PosVelCyl(R, z, phi, vR, vz, vphi float64) PosVel {
	return PosVel{Pos: PosCyl(R, z, phi), V: [3]float64{vR, vz, vphi}}
}

func PosVelSph(r, theta, phi, vr, vtheta, vphi float64) PosVel {
	return PosVel{Pos: PosSph(r, theta, phi), V: [3]float64{vr, vtheta, vphi}}
}

func PosVelProlSph(lambda, nu, phi, dlambda, dnu, dphi float64, shape Shape) PosVel {
	return PosVel{Pos: PosProlSph(lambda, nu, phi, shape), V: [3]float64{dlambda, dnu, dphi}}
}

// PosVelFrom builds a PosVel from the flat (position, velocity) layout.
func PosVelFrom(sys System, v [6]float64, shape Shape) PosVel {
	return PosVel{
		Pos: Pos{Sys: sys, C: [3]float64{v[0], v[1], v[2]}, Shape: shapeOf(sys, shape)},
		V:   [3]float64{v[3], v[4], v[5]},
	}
}

// Unpack returns position then velocity components.
func (pv PosVel) Unpack() [6]float64 {
	return [6]float64{pv.C[0], pv.C[1], pv.C[2], pv.V[0], pv.V[1], pv.V[2]}
}

// Grad holds the first partial derivatives of a scalar field.
type Grad struct {
	Sys   System
	D     [3]float64
	Shape Shape
}

// Hess holds the second partial derivatives of a scalar field in packed
// order (0,0) (1,1) (2,2) (0,1) (1,2) (0,2).
type Hess struct {
	Sys   System
	D     [6]float64
	Shape Shape
}

// At returns ∂²f/∂q_i∂q_j.
func (h Hess) At(i, j int) float64 {
	return h.D[packed(i, j)]
}

// PosDeriv is the Jacobian of a conversion From -> To evaluated at a point:
// M[i][a] = ∂To_i/∂From_a.
type PosDeriv struct {
	From, To           System
	FromShape, ToShape Shape
	M                  [3][3]float64
}

// PosDeriv2 holds the second derivatives of a conversion From -> To:
// T[i][k] = ∂²To_i/∂From_a∂From_b with k = packed(a, b).
type PosDeriv2 struct {
	From, To           System
	FromShape, ToShape Shape
	T                  [3][6]float64
}

// packedPairs maps a packed index back to its coordinate pair.
var packedPairs = [6][2]int{{0, 0}, {1, 1}, {2, 2}, {0, 1}, {1, 2}, {0, 2}}

func packed(i, j int) int {
	if i == j {
		return i
	}
	if i > j {
		i, j = j, i
	}
	if i == 0 {
		if j == 1 {
			return 3
		}
		return 5
	}
	return 4
}

func identityDeriv(sys System, shape Shape) (PosDeriv, PosDeriv2) {
	d := PosDeriv{From: sys, To: sys, FromShape: shape, ToShape: shape}
	for i := 0; i < 3; i++ {
		d.M[i][i] = 1
	}
	return d, PosDeriv2{From: sys, To: sys, FromShape: shape, ToShape: shape}
}

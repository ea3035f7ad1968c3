package coord

import (
	"fmt"
	"math"
)

// maxNewtonIter caps the polishing iteration of the prolate-spheroidal
// inversion.
const maxNewtonIter = 16

// prolSphToCyl evaluates R² = (λ+α)(ν+α)/(α-γ) and z² = (λ+γ)(ν+γ)/(γ-α).
// The system covers z ≥ 0 only; the sign of z is not recoverable from (λ, ν).
func prolSphToCyl(c [3]float64, s Shape) [3]float64 {
	a, g := s.Alpha, s.Gamma
	R2 := float64((c[0]+a)*(c[1]+a)) / (a - g)
	z2 := float64((c[0]+g)*(c[1]+g)) / (g - a)
	return [3]float64{math.Sqrt(math.Max(R2, 0)), math.Sqrt(math.Max(z2, 0)), c[2]}
}

// prolSphSeed holds the intermediate quantities of the closed-form inversion
// R²/(t+α) + z²/(t+γ) = 1. They are shared with the derivative code.
type prolSphSeed struct {
	R, z   float64
	R2, z2 float64
	del    float64 // z² - γ + α
	b      float64 // α + γ - R² - z²
	det    float64 // (R²+del)² + 4R²(γ-α), free of cancellation
	sqDet  float64
}

func newProlSphSeed(R, z float64, s Shape) prolSphSeed {
	a, g := s.Alpha, s.Gamma
	R2, z2 := float64(R*R), float64(z*z)
	del := z2 - g + a
	b := a + g - R2 - z2
	q := R2 + del
	det := float64(q*q) + 4*R2*(g-a)
	return prolSphSeed{R: R, z: z, R2: R2, z2: z2, del: del, b: b, det: det, sqDet: math.Sqrt(det)}
}

// cylToProlSph inverts the prolate-spheroidal map. The quadratic roots are
// clamped to their ranges, set exactly on the axis and in the equatorial
// plane, and otherwise polished by Newton steps on the original equation.
func cylToProlSph(c [3]float64, s Shape) ([3]float64, error) {
	a, g := s.Alpha, s.Gamma
	sd := newProlSphSeed(c[0], c[1], s)

	lambda := 0.5 * (-sd.b + sd.sqDet)
	nu := 0.5 * (-sd.b - sd.sqDet)
	lambda = math.Max(-a, lambda)
	nu = math.Min(-a, math.Max(nu, -g))

	if sd.z2 == 0 {
		nu = -g
	}
	if sd.R2 == 0 {
		if sd.del >= 0 {
			lambda, nu = sd.z2-g, -a
		} else {
			lambda, nu = -a, sd.z2-g
		}
	}

	if sd.R2 > 0 && sd.z2 > 0 {
		var err error
		if lambda, err = polishRoot(sd.R2, sd.z2, s, lambda, -a, math.Inf(1)); err != nil {
			return [3]float64{}, fmt.Errorf("lambda at R=%g z=%g: %w", c[0], c[1], err)
		}
		if nu, err = polishRoot(sd.R2, sd.z2, s, nu, -g, -a); err != nil {
			return [3]float64{}, fmt.Errorf("nu at R=%g z=%g: %w", c[0], c[1], err)
		}
	}
	return [3]float64{lambda, nu, c[2]}, nil
}

// polishRoot runs Newton on f(t) = R²/(t+α) + z²/(t+γ) - 1 inside [lo, hi].
func polishRoot(R2, z2 float64, s Shape, t, lo, hi float64) (float64, error) {
	const eps = 0x1p-52
	for i := 0; i < maxNewtonIter; i++ {
		ta, tg := t+s.Alpha, t+s.Gamma
		if ta == 0 || tg == 0 {
			return t, nil
		}
		u, v := R2/ta, z2/tg
		f := u + v - 1
		if math.Abs(f) <= 4*eps*(math.Abs(u)+math.Abs(v)+1) {
			return t, nil
		}
		df := -(u/ta + v/tg)
		next := math.Min(hi, math.Max(lo, t-f/df))
		if math.IsNaN(next) {
			break
		}
		if math.Abs(next-t) <= 2*eps*math.Abs(t) {
			return next, nil
		}
		t = next
	}
	return t, ErrNoConvergence
}

// cylToProlSphJacobian returns ∂(λ,ν)/∂(R,z) and the second derivatives,
// written so that neither the axis nor the equatorial plane divides by zero.
// Only the focal point (det = 0) is singular.
func cylToProlSphJacobian(sd prolSphSeed, s Shape, second bool) (m [2][2]float64, t [2][3]float64, ok bool) {
	if sd.det == 0 {
		return m, t, false
	}
	g := s.Gamma
	sq := sd.sqDet
	zk := sd.z * (sd.R2 + sd.del) / sq
	Rk := sd.R * (2*g - sd.b) / sq

	m[0] = [2]float64{sd.R + Rk, sd.z + zk}
	m[1] = [2]float64{sd.R - Rk, sd.z - zk}
	if !second {
		return m, t, true
	}

	kR := 2*(sd.R2-Rk*Rk)/sq + (2*g-sd.b)/sq
	kz := 2*(sd.z2-zk*zk)/sq + (sd.R2+sd.del)/sq
	mixed := 2 * (sd.R*sd.z - Rk*zk) / sq
	// packed (R,R), (z,z), (R,z)
	t[0] = [3]float64{1 + kR, 1 + kz, mixed}
	t[1] = [3]float64{1 - kR, 1 - kz, -mixed}
	return m, t, true
}

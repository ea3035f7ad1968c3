package coord

import (
	"fmt"
	"math"
)

// DerivMask selects which derivatives ToPosDeriv returns.
type DerivMask uint8

const (
	WantDeriv DerivMask = 1 << iota
	WantDeriv2

	WantBoth = WantDeriv | WantDeriv2
)

// DerivResult is the converted point plus the requested derivatives.
// Deriv and Deriv2 are nil unless asked for.
type DerivResult struct {
	Pos    Pos
	Deriv  *PosDeriv
	Deriv2 *PosDeriv2
}

// ToPosDeriv converts p to dst and returns the derivatives of the
// destination coordinates with respect to the source coordinates.
//
// It fails with ErrSingular when the source point sits where the map is not
// differentiable: x = y = 0 in Car, R = 0 in Cyl, r = 0 or sin θ = 0 in Sph,
// and the focal point or the degenerate boundary of ProlSph.
func ToPosDeriv(p Pos, dst System, shape Shape, want DerivMask) (DerivResult, error) {
	p.Shape = shapeOf(p.Sys, p.Shape)
	shape, err := prepare(p, dst, shape)
	if err != nil {
		return DerivResult{}, err
	}
	second := want&WantDeriv2 != 0

	var d PosDeriv
	var d2 PosDeriv2
	var q Pos
	switch {
	case p.Sys == dst && p.Shape == shape:
		q = p
		d, d2 = identityDeriv(dst, shape)
	case viaCyl(p.Sys, dst):
		sub := WantDeriv
		if second {
			sub = WantBoth
		}
		first, err := ToPosDeriv(p, Cyl, Shape{}, sub)
		if err != nil {
			return DerivResult{}, err
		}
		last, err := ToPosDeriv(first.Pos, dst, shape, sub)
		if err != nil {
			return DerivResult{}, err
		}
		q = last.Pos
		if d, err = Compose(*first.Deriv, *last.Deriv); err != nil {
			return DerivResult{}, err
		}
		if second {
			if d2, err = Compose2(*first.Deriv, *first.Deriv2, *last.Deriv, *last.Deriv2); err != nil {
				return DerivResult{}, err
			}
		}
	default:
		c, m, t, err := directDeriv(p, dst, shape, second)
		if err != nil {
			return DerivResult{}, fmt.Errorf("derivative %s -> %s: %w", p.Sys, dst, err)
		}
		q = Pos{Sys: dst, C: c, Shape: shape}
		d = PosDeriv{From: p.Sys, To: dst, FromShape: p.Shape, ToShape: shape, M: m}
		d2 = PosDeriv2{From: p.Sys, To: dst, FromShape: p.Shape, ToShape: shape, T: t}
	}

	res := DerivResult{Pos: q}
	if want&WantDeriv != 0 {
		res.Deriv = &d
	}
	if second {
		res.Deriv2 = &d2
	}
	return res, nil
}

// IsSingular reports whether derivative conversions out of p are undefined
// for the Car/Cyl/Sph pairs: the z axis in Car and Cyl, and the origin or
// the polar axis in Sph.
func IsSingular(p Pos) bool {
	switch p.Sys {
	case Car:
		return p.C[0] == 0 && p.C[1] == 0
	case Cyl:
		return p.C[0] == 0
	case Sph:
		return p.C[0] == 0 || math.Sin(p.C[1]) == 0
	case ProlSph:
		a, g := p.Shape.Alpha, p.Shape.Gamma
		return p.C[0]+a == 0 || p.C[1]+a == 0 || p.C[0]+g == 0 || p.C[1]+g == 0
	}
	return false
}

func directDeriv(p Pos, dst System, shape Shape, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	switch pair(p.Sys, dst) {
	case pair(Car, Cyl):
		return carToCylDeriv(p.C, second)
	case pair(Car, Sph):
		return carToSphDeriv(p.C, second)
	case pair(Cyl, Car):
		return cylToCarDeriv(p.C, second)
	case pair(Cyl, Sph):
		return cylToSphDeriv(p.C, second)
	case pair(Sph, Car):
		return sphToCarDeriv(p.C, second)
	case pair(Sph, Cyl):
		return sphToCylDeriv(p.C, second)
	case pair(ProlSph, Cyl):
		return prolSphToCylDeriv(p.C, p.Shape, second)
	case pair(Cyl, ProlSph):
		return cylToProlSphDeriv(p.C, shape, second)
	}
	err = ErrUnsupported
	return
}

func carToCylDeriv(p [3]float64, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	x, y, z := p[0], p[1], p[2]
	R2 := x*x + y*y
	R := math.Sqrt(R2)
	if R == 0 {
		err = singular(Car, Cyl, p, "on the z axis")
		return
	}
	co, s := x/R, y/R
	c = [3]float64{R, z, math.Atan2(y, x)}
	m = [3][3]float64{
		{co, s, 0},
		{0, 0, 1},
		{-s / R, co / R, 0},
	}
	if second {
		t[0][0] = s * s / R
		t[0][1] = co * co / R
		t[0][3] = -s * co / R
		t[2][0] = 2 * s * co / R2
		t[2][1] = -t[2][0]
		t[2][3] = (s*s - co*co) / R2
	}
	return
}

func carToSphDeriv(p [3]float64, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	x, y, z := p[0], p[1], p[2]
	x2, y2, z2 := x*x, y*y, z*z
	R2 := x2 + y2
	R := math.Sqrt(R2)
	if R == 0 {
		err = singular(Car, Sph, p, "on the z axis")
		return
	}
	r2 := R2 + z2
	r := math.Sqrt(r2)
	ir := 1 / r
	c = [3]float64{r, math.Atan2(R, z), math.Atan2(y, x)}

	k := z / (R * r2)
	m = [3][3]float64{
		{x * ir, y * ir, z * ir},
		{x * k, y * k, -R / r2},
		{-y / R2, x / R2, 0},
	}
	if !second {
		return
	}

	ir3 := ir / r2
	t[0] = [6]float64{(r2 - x2) * ir3, (r2 - y2) * ir3, R2 * ir3, -x * y * ir3, -y * z * ir3, -x * z * ir3}

	ir4 := 1 / (r2 * r2)
	k = z * ir4 / (R * R2)
	kk := (R2 - z2) * ir4 / R
	t[1] = [6]float64{
		(r2*y2 - 2*R2*x2) * k,
		(r2*x2 - 2*R2*y2) * k,
		2 * R * z * ir4,
		-x * y * (r2 + 2*R2) * k,
		y * kk,
		x * kk,
	}

	iR4 := 1 / (R2 * R2)
	t[2][0] = 2 * x * y * iR4
	t[2][1] = -t[2][0]
	t[2][3] = (y2 - x2) * iR4
	return
}

func cylToCarDeriv(p [3]float64, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	R, z, phi := p[0], p[1], p[2]
	if R == 0 {
		err = singular(Cyl, Car, p, "on the z axis")
		return
	}
	s, co := math.Sincos(phi)
	x, y := R*co, R*s
	c = [3]float64{x, y, z}
	m = [3][3]float64{
		{co, 0, -y},
		{s, 0, x},
		{0, 1, 0},
	}
	if second {
		t[0][5] = -s
		t[0][2] = -x
		t[1][5] = co
		t[1][2] = -y
	}
	return
}

func cylToSphDeriv(p [3]float64, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	R, z, phi := p[0], p[1], p[2]
	if R == 0 {
		err = singular(Cyl, Sph, p, "on the z axis")
		return
	}
	r := math.Hypot(R, z)
	ir := 1 / r
	ct, st := z*ir, R*ir
	c = [3]float64{r, math.Atan2(R, z), phi}
	m = [3][3]float64{
		{st, ct, 0},
		{ct * ir, -st * ir, 0},
		{0, 0, 1},
	}
	if second {
		t[0][0] = ct * ct * ir
		t[0][1] = st * st * ir
		t[0][3] = -ct * st * ir
		t[1][0] = -2 * ct * st * ir * ir
		t[1][1] = -t[1][0]
		t[1][3] = (st*st - ct*ct) * ir * ir
	}
	return
}

func sphToCarDeriv(p [3]float64, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	r, theta, phi := p[0], p[1], p[2]
	st, ct := math.Sincos(theta)
	sp, cp := math.Sincos(phi)
	if r == 0 {
		err = singular(Sph, Car, p, "at the origin")
		return
	}
	if st == 0 {
		err = singular(Sph, Car, p, "on the z axis")
		return
	}
	R := r * st
	x, y, z := R*cp, R*sp, r*ct
	c = [3]float64{x, y, z}
	m = [3][3]float64{
		{st * cp, z * cp, -y},
		{st * sp, z * sp, x},
		{ct, -R, 0},
	}
	if second {
		t[0] = [6]float64{0, -x, -x, ct * cp, -z * sp, -st * sp}
		t[1] = [6]float64{0, -y, -y, ct * sp, z * cp, st * cp}
		t[2] = [6]float64{0, -z, 0, -st, 0, 0}
	}
	return
}

func sphToCylDeriv(p [3]float64, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	r, theta, phi := p[0], p[1], p[2]
	st, ct := math.Sincos(theta)
	if r == 0 {
		err = singular(Sph, Cyl, p, "at the origin")
		return
	}
	if st == 0 {
		err = singular(Sph, Cyl, p, "on the z axis")
		return
	}
	R, z := r*st, r*ct
	c = [3]float64{R, z, phi}
	m = [3][3]float64{
		{st, z, 0},
		{ct, -R, 0},
		{0, 0, 1},
	}
	if second {
		t[0][3] = ct
		t[0][1] = -R
		t[1][3] = -st
		t[1][1] = -z
	}
	return
}

func prolSphToCylDeriv(p [3]float64, s Shape, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	la, na := p[0]+s.Alpha, p[1]+s.Alpha
	lg, ng := p[0]+s.Gamma, p[1]+s.Gamma
	if la == 0 || na == 0 {
		err = singular(ProlSph, Cyl, p, "on the z axis")
		return
	}
	if lg == 0 || ng == 0 {
		err = singular(ProlSph, Cyl, p, "in the equatorial plane")
		return
	}
	c = prolSphToCyl(p, s)
	R, z := c[0], c[1]
	m = [3][3]float64{
		{0.5 * R / la, 0.5 * R / na, 0},
		{0.5 * z / lg, 0.5 * z / ng, 0},
		{0, 0, 1},
	}
	if second {
		t[0][0] = -0.25 * R / (la * la)
		t[0][1] = -0.25 * R / (na * na)
		t[0][3] = 0.25 * R / (la * na)
		t[1][0] = -0.25 * z / (lg * lg)
		t[1][1] = -0.25 * z / (ng * ng)
		t[1][3] = 0.25 * z / (lg * ng)
	}
	return
}

func cylToProlSphDeriv(p [3]float64, s Shape, second bool) (c [3]float64, m [3][3]float64, t [3][6]float64, err error) {
	if c, err = cylToProlSph(p, s); err != nil {
		return
	}
	mm, tt, ok := cylToProlSphJacobian(newProlSphSeed(p[0], p[1], s), s, second)
	if !ok {
		err = singular(Cyl, ProlSph, p, "focal point")
		return
	}
	m = [3][3]float64{
		{mm[0][0], mm[0][1], 0},
		{mm[1][0], mm[1][1], 0},
		{0, 0, 1},
	}
	if second {
		for i := 0; i < 2; i++ {
			t[i][0] = tt[i][0]
			t[i][1] = tt[i][1]
			t[i][3] = tt[i][2]
		}
	}
	return
}

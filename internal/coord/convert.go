package coord

import (
	"fmt"
	"math"
)

// ToPos converts p to dst. shape is the target shape and is only read when
// dst is ProlSph. Pairs without a closed form go through Cyl.
func ToPos(p Pos, dst System, shape Shape) (Pos, error) {
	p.Shape = shapeOf(p.Sys, p.Shape)
	shape, err := prepare(p, dst, shape)
	if err != nil {
		return Pos{}, err
	}
	if p.Sys == dst && p.Shape == shape {
		return p, nil
	}
	if viaCyl(p.Sys, dst) {
		mid, err := ToPos(p, Cyl, Shape{})
		if err != nil {
			return Pos{}, err
		}
		return ToPos(mid, dst, shape)
	}

	var c [3]float64
	switch pair(p.Sys, dst) {
	case pair(Car, Cyl):
		c = carToCyl(p.C)
	case pair(Car, Sph):
		c = carToSph(p.C)
	case pair(Cyl, Car):
		c = cylToCar(p.C)
	case pair(Cyl, Sph):
		c = cylToSph(p.C)
	case pair(Sph, Car):
		c = sphToCar(p.C)
	case pair(Sph, Cyl):
		c = sphToCyl(p.C)
	case pair(Cyl, ProlSph):
		if c, err = cylToProlSph(p.C, shape); err != nil {
			return Pos{}, fmt.Errorf("convert %s -> %s: %w", p.Sys, dst, err)
		}
	case pair(ProlSph, Cyl):
		c = prolSphToCyl(p.C, p.Shape)
	default:
		return Pos{}, fmt.Errorf("convert %s -> %s: %w", p.Sys, dst, ErrUnsupported)
	}
	return Pos{Sys: dst, C: c, Shape: shape}, nil
}

// ToPosVel converts a point and its velocity to dst.
//
// On the z axis (Car/Cyl -> Cyl/Sph with R = 0) the azimuth is taken from the
// direction of the in-plane velocity, which then becomes vR, and vφ is set to
// zero. At the origin the polar angle is taken from the velocity direction in
// the same way. None of this is an error. The prolate-spheroidal velocity
// cannot be inverted on the axis or in the equatorial plane and returns
// ErrSingular there.
func ToPosVel(pv PosVel, dst System, shape Shape) (PosVel, error) {
	pv.Shape = shapeOf(pv.Sys, pv.Shape)
	shape, err := prepare(pv.Pos, dst, shape)
	if err != nil {
		return PosVel{}, err
	}
	for i, v := range pv.V {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return PosVel{}, fmt.Errorf("%s velocity %d is %g: %w", pv.Sys, i, v, ErrInvalidConfig)
		}
	}
	if pv.Sys == dst && pv.Shape == shape {
		return pv, nil
	}
	if viaCyl(pv.Sys, dst) {
		mid, err := ToPosVel(pv, Cyl, Shape{})
		if err != nil {
			return PosVel{}, err
		}
		return ToPosVel(mid, dst, shape)
	}

	var c, v [3]float64
	switch pair(pv.Sys, dst) {
	case pair(Car, Cyl):
		c, v = carToCylVel(pv.C, pv.V)
	case pair(Car, Sph):
		c, v = carToSphVel(pv.C, pv.V)
	case pair(Cyl, Car):
		c, v = cylToCarVel(pv.C, pv.V)
	case pair(Cyl, Sph):
		c, v = cylToSphVel(pv.C, pv.V)
	case pair(Sph, Car):
		c, v = sphToCarVel(pv.C, pv.V)
	case pair(Sph, Cyl):
		c, v = sphToCylVel(pv.C, pv.V)
	case pair(Cyl, ProlSph):
		c, v, err = cylToProlSphVel(pv.C, pv.V, shape)
	case pair(ProlSph, Cyl):
		c, v, err = prolSphToCylVel(pv.C, pv.V, pv.Shape)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return PosVel{}, fmt.Errorf("convert %s -> %s: %w", pv.Sys, dst, err)
	}
	return PosVel{Pos: Pos{Sys: dst, C: c, Shape: shape}, V: v}, nil
}

// prepare validates the source and returns the normalized target shape.
func prepare(p Pos, dst System, shape Shape) (Shape, error) {
	if !dst.Valid() {
		return Shape{}, fmt.Errorf("destination %v: %w", dst, ErrUnsupported)
	}
	if err := p.Validate(); err != nil {
		return Shape{}, err
	}
	shape = shapeOf(dst, shape)
	if dst == ProlSph {
		if err := shape.Validate(); err != nil {
			return Shape{}, err
		}
	}
	return shape, nil
}

// viaCyl reports whether src -> dst has no direct formula.
// Only Cyl talks to ProlSph directly.
func viaCyl(src, dst System) bool {
	if src == ProlSph {
		return dst != Cyl
	}
	return dst == ProlSph && src != Cyl
}

func pair(a, b System) int { return int(a)*4 + int(b) }

func carToCyl(c [3]float64) [3]float64 {
	R := math.Hypot(c[0], c[1])
	phi := 0.0
	if R != 0 {
		phi = math.Atan2(c[1], c[0])
	}
	return [3]float64{R, c[2], phi}
}

func carToSph(c [3]float64) [3]float64 {
	R := math.Hypot(c[0], c[1])
	phi := 0.0
	if R != 0 {
		phi = math.Atan2(c[1], c[0])
	}
	return [3]float64{math.Hypot(R, c[2]), math.Atan2(R, c[2]), phi}
}

func cylToCar(c [3]float64) [3]float64 {
	s, co := math.Sincos(c[2])
	return [3]float64{c[0] * co, c[0] * s, c[1]}
}

func cylToSph(c [3]float64) [3]float64 {
	return [3]float64{math.Hypot(c[0], c[1]), math.Atan2(c[0], c[1]), c[2]}
}

func sphToCar(c [3]float64) [3]float64 {
	st, ct := math.Sincos(c[1])
	sp, cp := math.Sincos(c[2])
	R := c[0] * st
	return [3]float64{R * cp, R * sp, c[0] * ct}
}

func sphToCyl(c [3]float64) [3]float64 {
	st, ct := math.Sincos(c[1])
	return [3]float64{c[0] * st, c[0] * ct, c[2]}
}

func carToCylVel(c, v [3]float64) (p, w [3]float64) {
	R := math.Hypot(c[0], c[1])
	if R == 0 {
		vR := math.Hypot(v[0], v[1])
		phi := 0.0
		if vR != 0 {
			phi = math.Atan2(v[1], v[0])
		}
		return [3]float64{0, c[2], phi}, [3]float64{vR, v[2], 0}
	}
	co, s := c[0]/R, c[1]/R
	return [3]float64{R, c[2], math.Atan2(c[1], c[0])},
		[3]float64{v[0]*co + v[1]*s, v[2], -v[0]*s + v[1]*co}
}

func carToSphVel(c, v [3]float64) (p, w [3]float64) {
	x, y, z := c[0], c[1], c[2]
	R := math.Hypot(x, y)
	if R == 0 {
		vR := math.Hypot(v[0], v[1])
		phi := 0.0
		if vR != 0 {
			phi = math.Atan2(v[1], v[0])
		}
		switch {
		case z == 0:
			return [3]float64{0, math.Atan2(vR, v[2]), phi}, [3]float64{math.Hypot(vR, v[2]), 0, 0}
		case z > 0:
			return [3]float64{z, 0, phi}, [3]float64{v[2], vR, 0}
		default:
			return [3]float64{-z, math.Pi, phi}, [3]float64{-v[2], -vR, 0}
		}
	}
	r := math.Hypot(R, z)
	temp := x*v[0] + y*v[1]
	return [3]float64{r, math.Atan2(R, z), math.Atan2(y, x)},
		[3]float64{
			(temp + z*v[2]) / r,
			(temp*z/R - v[2]*R) / r,
			(x*v[1] - y*v[0]) / R,
		}
}

func cylToCarVel(c, v [3]float64) (p, w [3]float64) {
	s, co := math.Sincos(c[2])
	return [3]float64{c[0] * co, c[0] * s, c[1]},
		[3]float64{v[0]*co - v[2]*s, v[0]*s + v[2]*co, v[1]}
}

func cylToSphVel(c, v [3]float64) (p, w [3]float64) {
	R, z := c[0], c[1]
	r := math.Hypot(R, z)
	if r == 0 {
		return [3]float64{0, math.Atan2(v[0], v[1]), c[2]}, [3]float64{math.Hypot(v[0], v[1]), 0, 0}
	}
	st, ct := R/r, z/r
	return [3]float64{r, math.Atan2(R, z), c[2]},
		[3]float64{v[0]*st + v[1]*ct, v[0]*ct - v[1]*st, v[2]}
}

func sphToCarVel(c, v [3]float64) (p, w [3]float64) {
	st, ct := math.Sincos(c[1])
	sp, cp := math.Sincos(c[2])
	R := c[0] * st
	vmer := v[0]*st + v[1]*ct
	return [3]float64{R * cp, R * sp, c[0] * ct},
		[3]float64{vmer*cp - v[2]*sp, vmer*sp + v[2]*cp, v[0]*ct - v[1]*st}
}

func sphToCylVel(c, v [3]float64) (p, w [3]float64) {
	st, ct := math.Sincos(c[1])
	return [3]float64{c[0] * st, c[0] * ct, c[2]},
		[3]float64{v[0]*st + v[1]*ct, v[0]*ct - v[1]*st, v[2]}
}

func cylToProlSphVel(c, v [3]float64, s Shape) (p, w [3]float64, err error) {
	if p, err = cylToProlSph(c, s); err != nil {
		return p, w, err
	}
	m, _, ok := cylToProlSphJacobian(newProlSphSeed(c[0], c[1], s), s, false)
	if !ok {
		return p, w, singular(Cyl, ProlSph, c, "focal point")
	}
	w[0] = m[0][0]*v[0] + m[0][1]*v[1]
	w[1] = m[1][0]*v[0] + m[1][1]*v[1]
	if c[0] != 0 && v[2] != 0 {
		w[2] = v[2] / c[0]
	}
	return p, w, nil
}

func prolSphToCylVel(c, v [3]float64, s Shape) (p, w [3]float64, err error) {
	p = prolSphToCyl(c, s)
	la, na := c[0]+s.Alpha, c[1]+s.Alpha
	lg, ng := c[0]+s.Gamma, c[1]+s.Gamma
	if la == 0 || na == 0 {
		return p, w, singular(ProlSph, Cyl, c, "velocity undefined on the z axis")
	}
	if lg == 0 || ng == 0 {
		return p, w, singular(ProlSph, Cyl, c, "velocity undefined in the equatorial plane")
	}
	R, z := p[0], p[1]
	w[0] = 0.5 * R * (v[0]/la + v[1]/na)
	w[1] = 0.5 * z * (v[0]/lg + v[1]/ng)
	w[2] = R * v[2]
	return p, w, nil
}

package coord

import "math"

// Lz returns the z component of the specific angular momentum.
func Lz(pv PosVel) float64 {
	switch pv.Sys {
	case Car:
		return pv.C[0]*pv.V[1] - pv.C[1]*pv.V[0]
	case Cyl:
		return pv.C[0] * pv.V[2]
	case Sph:
		return pv.C[0] * math.Sin(pv.C[1]) * pv.V[2]
	case ProlSph:
		R := prolSphToCyl(pv.C, pv.Shape)[0]
		return R * R * pv.V[2]
	}
	return math.NaN()
}

// Ltotal returns the magnitude of the specific angular momentum. For ProlSph
// it goes through Cyl and is NaN where that velocity conversion is singular.
func Ltotal(pv PosVel) float64 {
	switch pv.Sys {
	case Car:
		x, y, z := pv.C[0], pv.C[1], pv.C[2]
		vx, vy, vz := pv.V[0], pv.V[1], pv.V[2]
		lx, ly, lz := y*vz-z*vy, z*vx-x*vz, x*vy-y*vx
		return math.Sqrt(lx*lx + ly*ly + lz*lz)
	case Cyl:
		R, z := pv.C[0], pv.C[1]
		vR, vz, vphi := pv.V[0], pv.V[1], pv.V[2]
		lm := R*vz - z*vR
		return math.Sqrt((R*R+z*z)*vphi*vphi + lm*lm)
	case Sph:
		return math.Hypot(pv.V[1], pv.V[2]) * pv.C[0]
	case ProlSph:
		cyl, err := ToPosVel(pv, Cyl, Shape{})
		if err != nil {
			return math.NaN()
		}
		return Ltotal(cyl)
	}
	return math.NaN()
}

// Speed2 returns the squared speed.
func Speed2(pv PosVel) float64 {
	if pv.Sys == ProlSph {
		cyl, err := ToPosVel(pv, Cyl, Shape{})
		if err != nil {
			return math.NaN()
		}
		pv = cyl
	}
	return pv.V[0]*pv.V[0] + pv.V[1]*pv.V[1] + pv.V[2]*pv.V[2]
}

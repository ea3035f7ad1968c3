package coord

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// EqualPos reports whether a and b are in the same system and every
// coordinate agrees within the absolute tolerance eps.
func EqualPos(a, b Pos, eps float64) bool {
	return a.Sys == b.Sys && shapeOf(a.Sys, a.Shape) == shapeOf(b.Sys, b.Shape) &&
		equalAbs(a.C[:], b.C[:], eps)
}

func EqualPosVel(a, b PosVel, eps float64) bool {
	return EqualPos(a.Pos, b.Pos, eps) && equalAbs(a.V[:], b.V[:], eps)
}

func EqualGrad(a, b Grad, eps float64) bool {
	return a.Sys == b.Sys && equalAbs(a.D[:], b.D[:], eps)
}

func EqualHess(a, b Hess, eps float64) bool {
	return a.Sys == b.Sys && equalAbs(a.D[:], b.D[:], eps)
}

// MaxDiff returns the largest absolute componentwise difference.
// It panics if the lengths differ.
func MaxDiff(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("coord: slice length mismatch")
	}
	if len(a) == 0 {
		return 0
	}
	d := make([]float64, len(a))
	floats.SubTo(d, a, b)
	return floats.Norm(d, math.Inf(1))
}

func equalAbs(a, b []float64, eps float64) bool {
	return floats.EqualFunc(a, b, func(x, y float64) bool {
		return scalar.EqualWithinAbs(x, y, eps)
	})
}

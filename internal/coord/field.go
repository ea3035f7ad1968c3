package coord

import (
	"fmt"
	"math"
)

// ScalarField is a function of position evaluated natively in one system,
// such as a gravitational potential. EvalScalar fills only the outputs that
// are non-nil.
type ScalarField interface {
	System() System
	Shape() Shape
	EvalScalar(p Pos, value *float64, grad *Grad, hess *Hess) error
}

// RadialFunction is a function of spherical radius only.
type RadialFunction interface {
	EvalDeriv(r float64) (f, df, d2f float64)
}

// EvalAndConvert evaluates f at pos, which may be in any system, and returns
// the gradient and Hessian in the system of pos. Outputs left nil are not
// computed.
func EvalAndConvert(f ScalarField, pos Pos, value *float64, grad *Grad, hess *Hess) error {
	src := f.System()
	if grad == nil && hess == nil {
		p, err := ToPos(pos, src, f.Shape())
		if err != nil {
			return err
		}
		return f.EvalScalar(p, value, nil, nil)
	}

	r, err := ToPosDeriv(pos, src, f.Shape(), mask(hess != nil))
	if err != nil {
		return err
	}
	var g Grad
	var h Hess
	if err := f.EvalScalar(r.Pos, value, &g, optional(&h, hess != nil)); err != nil {
		return err
	}
	g, h, err = pullBack(g, h, r, hess != nil)
	if err != nil {
		return err
	}
	if grad != nil {
		*grad = g
	}
	if hess != nil {
		*hess = h
	}
	return nil
}

// EvalAndConvertTwoStep is EvalAndConvert routed through an intermediate
// system: pos goes to mid and then to the field's system, and the
// derivatives come back the same way. With exact arithmetic the result does
// not depend on mid.
func EvalAndConvertTwoStep(f ScalarField, mid System, pos Pos, value *float64, grad *Grad, hess *Hess) error {
	if mid == ProlSph && f.System() != ProlSph && pos.Sys != ProlSph {
		return fmt.Errorf("two-step via %s needs a shape: %w", mid, ErrUnsupported)
	}
	midShape := f.Shape()
	if pos.Sys == ProlSph && mid == ProlSph {
		midShape = pos.Shape
	}

	want := mask(hess != nil)
	r1, err := ToPosDeriv(pos, mid, midShape, want)
	if err != nil {
		return err
	}
	r2, err := ToPosDeriv(r1.Pos, f.System(), f.Shape(), want)
	if err != nil {
		return err
	}

	var g Grad
	var h Hess
	if err := f.EvalScalar(r2.Pos, value, optional(&g, grad != nil || hess != nil), optional(&h, hess != nil)); err != nil {
		return err
	}
	if grad == nil && hess == nil {
		return nil
	}
	if g, h, err = pullBack(g, h, r2, hess != nil); err != nil {
		return err
	}
	if g, h, err = pullBack(g, h, r1, hess != nil); err != nil {
		return err
	}
	if grad != nil {
		*grad = g
	}
	if hess != nil {
		*hess = h
	}
	return nil
}

// EvalAndConvertSph evaluates a radial function at pos and expresses its
// gradient and Hessian in the system of pos (Car, Cyl or Sph). At r = 0 the
// Hessian is the isotropic limit f''(0) when f'(0) = 0; a cusp (f'(0) ≠ 0)
// has no Hessian there and is reported as singular, as is any requested
// derivative that diverges at r = 0.
func EvalAndConvertSph(f RadialFunction, pos Pos, value *float64, grad *Grad, hess *Hess) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	var r float64
	switch pos.Sys {
	case Car:
		r = math.Sqrt(pos.C[0]*pos.C[0] + pos.C[1]*pos.C[1] + pos.C[2]*pos.C[2])
	case Cyl:
		r = math.Hypot(pos.C[0], pos.C[1])
	case Sph:
		r = pos.C[0]
	default:
		return fmt.Errorf("radial field in %s: %w", pos.Sys, ErrUnsupported)
	}

	fv, df, d2f := f.EvalDeriv(r)
	if value != nil {
		*value = fv
	}
	if grad == nil && hess == nil {
		return nil
	}
	if r == 0 && (!finite(df) || hess != nil && !finite(d2f)) {
		return singular(pos.Sys, pos.Sys, pos.C, "radial function derivative diverges at r=0")
	}

	if pos.Sys == Sph {
		if grad != nil {
			*grad = Grad{Sys: Sph, D: [3]float64{df, 0, 0}}
		}
		if hess != nil {
			*hess = Hess{Sys: Sph, D: [6]float64{d2f, 0, 0, 0, 0, 0}}
		}
		return nil
	}

	// Unit vector components along the non-angular axes: (x,y,z) for Car,
	// (R,z) for Cyl.
	var u [3]float64
	n := 3
	if pos.Sys == Cyl {
		n = 2
	}
	dfr, dd := d2f, 0.0
	if r > 0 {
		for i := 0; i < n; i++ {
			u[i] = pos.C[i] / r
		}
		dfr = df / r
		dd = d2f - dfr
	} else if df != 0 && hess != nil {
		return singular(pos.Sys, pos.Sys, pos.C, "radial function has a cusp at r=0")
	}

	if grad != nil {
		g := Grad{Sys: pos.Sys}
		for i := 0; i < n; i++ {
			g.D[i] = df * u[i]
		}
		*grad = g
	}
	if hess != nil {
		h := Hess{Sys: pos.Sys}
		for k, ij := range packedPairs {
			i, j := ij[0], ij[1]
			if i >= n || j >= n {
				continue
			}
			h.D[k] = u[i] * u[j] * dd
			if i == j {
				h.D[k] += dfr
			}
		}
		*hess = h
	}
	return nil
}

func pullBack(g Grad, h Hess, r DerivResult, second bool) (Grad, Hess, error) {
	out, err := ToGrad(g, *r.Deriv)
	if err != nil {
		return Grad{}, Hess{}, err
	}
	if !second {
		return out, Hess{}, nil
	}
	hout, err := ToHess(g, h, *r.Deriv, *r.Deriv2)
	if err != nil {
		return Grad{}, Hess{}, err
	}
	return out, hout, nil
}

func mask(second bool) DerivMask {
	if second {
		return WantBoth
	}
	return WantDeriv
}

func optional[T any](p *T, want bool) *T {
	if want {
		return p
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

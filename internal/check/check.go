// Package check runs consistency checks against the coordinate engine:
// position/velocity round trips with conserved quantities, gradient and
// Hessian round trips, two-step equivalence, radial-profile agreement and the
// prolate-spheroidal regression case. All comparisons are absolute.
package check

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/field"
)

// Outcome classifies a single check.
type Outcome string

const (
	Pass Outcome = "pass"
	Fail Outcome = "fail"
	// Expected marks a singular-point failure at a point that is known to
	// be singular.
	Expected Outcome = "expected"
)

// Result is the outcome of one check.
type Result struct {
	Name    string  `json:"name" yaml:"name"`
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	MaxErr  float64 `json:"max_err" yaml:"max_err"`
	Detail  string  `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// worse records err if it exceeds the current maximum. NaN always wins.
func (r *Result) worse(err float64) {
	if math.IsNaN(r.MaxErr) {
		return
	}
	if math.IsNaN(err) || err > r.MaxErr {
		r.MaxErr = err
	}
}

// failf marks the result failed and appends a detail line.
func (r *Result) failf(format string, args ...any) {
	r.Outcome = Fail
	msg := fmt.Sprintf(format, args...)
	if r.Detail == "" {
		r.Detail = msg
		return
	}
	r.Detail += "; " + msg
}

// finish keeps MaxErr finite so that a Result always encodes as JSON.
func (r Result) finish() Result {
	if math.IsNaN(r.MaxErr) || math.IsInf(r.MaxErr, 0) {
		r.failf("non-finite error %v", r.MaxErr)
		r.MaxErr = 0
	}
	return r
}

// fromError turns a conversion error into a Result. Singular errors at a
// singular point are Expected; everything else fails.
func fromError(name string, err error, singularPoint bool) Result {
	r := Result{Name: name, Outcome: Fail, Detail: err.Error()}
	if errors.Is(err, coord.ErrSingular) && singularPoint {
		r.Outcome = Expected
	}
	return r
}

// singularPair reports whether p or its image in dst is singular.
func singularPair(p coord.Pos, dst coord.System, shape coord.Shape) bool {
	if coord.IsSingular(p) {
		return true
	}
	img, err := coord.ToPos(p, dst, shape)
	return err == nil && coord.IsSingular(img)
}

// PosVelRoundTrip converts pv to dst and back, and checks that the
// position, velocity, Lz, |L| and v² all survive.
func PosVelRoundTrip(pv coord.PosVel, dst coord.System, shape coord.Shape, tol float64) Result {
	name := fmt.Sprintf("posvel %s->%s %v", pv.Sys.Tag(), dst.Tag(), pv.Unpack())
	there, err := coord.ToPosVel(pv, dst, shape)
	if err != nil {
		return fromError(name, err, singularPair(pv.Pos, dst, shape))
	}
	back, err := coord.ToPosVel(there, pv.Sys, pv.Shape)
	if err != nil {
		return fromError(name, err, singularPair(there.Pos, pv.Sys, pv.Shape))
	}

	r := Result{Name: name, Outcome: Pass}
	if back.Sys != pv.Sys || back.Shape != pv.Shape {
		r.failf("came back in %s", back.Sys)
		return r
	}
	a, b := pv.Unpack(), back.Unpack()
	d := coord.MaxDiff(a[:], b[:])
	r.worse(d)
	if !(d <= tol) {
		r.failf("round trip %v", b)
	}

	invariants := []struct {
		name string
		f    func(coord.PosVel) float64
	}{
		{"Lz", coord.Lz},
		{"Ltotal", coord.Ltotal},
		{"v2", coord.Speed2},
	}
	for _, inv := range invariants {
		want, got := inv.f(pv), inv.f(there)
		d := math.Abs(want - got)
		r.worse(d)
		if !(d <= tol) {
			r.failf("%s %g != %g", inv.name, got, want)
		}
	}
	return r.finish()
}

// DerivRoundTrip checks, for the field f at p, that
//   - p survives the trip to dst and back,
//   - the gradient and Hessian computed at the image of p and pulled back
//     through the p->dst derivatives equal those computed at p directly,
//   - the two-step path through mid agrees with the direct one.
//
// Every comparison is an absolute max difference against tol. A singular
// error counts as Expected only when p or its image in dst is singular.
func DerivRoundTrip(f coord.ScalarField, p coord.Pos, dst, mid coord.System, shape coord.Shape, tol float64) Result {
	name := fmt.Sprintf("deriv %s->%s via %s %v field=%s", p.Sys.Tag(), dst.Tag(), mid.Tag(), p.C, f.System().Tag())
	sing := singularPair(p, dst, shape)

	there, err := coord.ToPosDeriv(p, dst, shape, coord.WantBoth)
	if err != nil {
		return fromError(name, err, sing)
	}
	back, err := coord.ToPos(there.Pos, p.Sys, p.Shape)
	if err != nil {
		return fromError(name, err, sing)
	}

	r := Result{Name: name, Outcome: Pass}
	d := coord.MaxDiff(p.C[:], back.C[:])
	r.worse(d)
	if !(d <= tol) {
		r.failf("point round trip %v", back.C)
	}

	var v0, vDst, vTwo float64
	var g0, gDst, gTwo coord.Grad
	var h0, hDst, hTwo coord.Hess
	if err := coord.EvalAndConvert(f, p, &v0, &g0, &h0); err != nil {
		return fromError(name, err, sing)
	}
	if err := coord.EvalAndConvert(f, there.Pos, &vDst, &gDst, &hDst); err != nil {
		return fromError(name, err, sing)
	}
	gBack, err := coord.ToGrad(gDst, *there.Deriv)
	if err != nil {
		return fromError(name, err, sing)
	}
	hBack, err := coord.ToHess(gDst, hDst, *there.Deriv, *there.Deriv2)
	if err != nil {
		return fromError(name, err, sing)
	}
	if err := coord.EvalAndConvertTwoStep(f, mid, p, &vTwo, &gTwo, &hTwo); err != nil {
		return fromError(name, err, singularPair(p, mid, shape) || sing)
	}

	compare := func(what string, want, got []float64) {
		d := coord.MaxDiff(want, got)
		r.worse(d)
		if !(d <= tol) {
			r.failf("%s %v != %v", what, got, want)
		}
	}
	compare("value", []float64{v0}, []float64{vDst})
	compare("grad", g0.D[:], gBack.D[:])
	compare("hess", h0.D[:], hBack.D[:])
	compare("two-step value", []float64{v0}, []float64{vTwo})
	compare("two-step grad", g0.D[:], gTwo.D[:])
	compare("two-step hess", h0.D[:], hTwo.D[:])
	return r.finish()
}

// RadialAgreement evaluates the radial profile prof at p twice, once through
// the closed-form radial path and once as a spherical field pulled back by
// the chain rule, and requires value, gradient and Hessian to agree.
func RadialAgreement(name string, prof coord.RadialFunction, p coord.Pos, shape coord.Shape, tol float64) Result {
	name = fmt.Sprintf("radial %s %s %v", name, p.Sys.Tag(), p.C)
	var v1, v2 float64
	var g1, g2 coord.Grad
	var h1, h2 coord.Hess
	if err := coord.EvalAndConvertSph(prof, p, &v1, &g1, &h1); err != nil {
		return fromError(name, err, coord.IsSingular(p))
	}
	if err := coord.EvalAndConvert(field.Spherical{Profile: prof}, p, &v2, &g2, &h2); err != nil {
		return fromError(name, err, singularPair(p, coord.Sph, shape))
	}

	r := Result{Name: name, Outcome: Pass}
	for _, c := range []struct {
		what      string
		want, got []float64
	}{
		{"value", []float64{v1}, []float64{v2}},
		{"grad", g1.D[:], g2.D[:]},
		{"hess", h1.D[:], h2.D[:]},
	} {
		d := coord.MaxDiff(c.want, c.got)
		r.worse(d)
		if !(d <= tol) {
			r.failf("%s %v != %v", c.what, c.got, c.want)
		}
	}
	return r.finish()
}

// ProlSphRegression converts a prolate-spheroidal point to cylindrical and
// back and requires both λ and ν to return within tol.
func ProlSphRegression(lambda, nu float64, shape coord.Shape, tol float64) Result {
	name := fmt.Sprintf("prolsph regression lambda=%.17g nu=%.17g alpha=%g gamma=%g", lambda, nu, shape.Alpha, shape.Gamma)
	p := coord.PosProlSph(lambda, nu, 0, shape)
	cyl, err := coord.ToPos(p, coord.Cyl, coord.Shape{})
	if err != nil {
		return fromError(name, err, false)
	}
	back, err := coord.ToPos(cyl, coord.ProlSph, shape)
	if err != nil {
		return fromError(name, err, false)
	}
	r := Result{Name: name, Outcome: Pass}
	for i, want := range []float64{lambda, nu} {
		d := math.Abs(back.C[i] - want)
		r.worse(d)
		if !(d <= tol) {
			r.failf("%s = %.17g, want %.17g", coord.ProlSph.Axis(i), back.C[i], want)
		}
	}
	return r.finish()
}

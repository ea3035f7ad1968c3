package check

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/field"
)

const tol = 1e-10

var shape = coord.Shape{Alpha: -2.56, Gamma: -1}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestPosVelRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pv   coord.PosVel
		dst  coord.System
		want Outcome
	}{
		{"generic car to sph", coord.PosVelCar(1, 2, 3, 4, 5, 6), coord.Sph, Pass},
		{"axis car to cyl", coord.PosVelCar(0, 0, 1, 2, 3, 4), coord.Cyl, Pass},
		{"origin sph to car", coord.PosVelSph(0, 2, -1, 2, 0, 0), coord.Car, Pass},
		{"generic cyl to prolsph", coord.PosVelCyl(1.3, 0.7, 0.4, 0.2, -0.5, 0.9), coord.ProlSph, Pass},
		{"axis cyl to prolsph", coord.PosVelCyl(0, 3, 0, 1, 0, 0), coord.ProlSph, Expected},
		{"equator car to prolsph", coord.PosVelCar(1, 1, 0, 1, 1, 1), coord.ProlSph, Expected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := PosVelRoundTrip(tt.pv, tt.dst, shape, tol)
			assert.Equal(t, tt.want, r.Outcome, r.Detail)
			assert.False(t, math.IsNaN(r.MaxErr))
		})
	}
}

func TestDerivRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		f        coord.ScalarField
		p        coord.Pos
		dst, mid coord.System
		want     Outcome
	}{
		{"car field from sph", field.DefaultHenonHeiles(), coord.PosSph(1.7, 0.9, -2.5), coord.Cyl, coord.Car, Pass},
		{"cyl field from car", field.HenonHeilesCyl{}, coord.PosCar(0.8, -1.3, 0.6), coord.Sph, coord.Cyl, Pass},
		{"sph field from cyl", field.HarmonicMix{}, coord.PosCyl(1.1, 0.5, 2.2), coord.Car, coord.Sph, Pass},
		{"near the pole", field.HarmonicMix{}, coord.PosSph(1, 3.14159, 2), coord.Car, coord.Cyl, Pass},
		{"on the axis", field.DefaultHenonHeiles(), coord.PosCyl(0, 2, 0), coord.Car, coord.Sph, Expected},
		{"origin", field.HarmonicMix{}, coord.PosCar(0, 0, 0), coord.Cyl, coord.Sph, Expected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DerivRoundTrip(tt.f, tt.p, tt.dst, tt.mid, shape, tol)
			assert.Equal(t, tt.want, r.Outcome, r.Detail)
		})
	}
}

// driftingField returns a different value on every call.
type driftingField struct {
	field.HenonHeiles
	calls float64
}

func (d *driftingField) EvalScalar(p coord.Pos, value *float64, grad *coord.Grad, hess *coord.Hess) error {
	if err := d.HenonHeiles.EvalScalar(p, value, grad, hess); err != nil {
		return err
	}
	d.calls++
	if value != nil {
		*value += d.calls
	}
	return nil
}

func TestDerivRoundTrip_DetectsInconsistency(t *testing.T) {
	f := &driftingField{HenonHeiles: field.DefaultHenonHeiles()}
	r := DerivRoundTrip(f, coord.PosCar(1, 2, 3), coord.Sph, coord.Cyl, shape, tol)
	assert.Equal(t, Fail, r.Outcome)
	assert.Contains(t, r.Detail, "value")
	assert.Greater(t, r.MaxErr, tol)
}

// hessDriftField perturbs the radial-radial Hessian entry by a growing
// amount on every evaluation.
type hessDriftField struct {
	field.HarmonicMix
	calls float64
}

func (d *hessDriftField) EvalScalar(p coord.Pos, value *float64, grad *coord.Grad, hess *coord.Hess) error {
	if err := d.HarmonicMix.EvalScalar(p, value, grad, hess); err != nil {
		return err
	}
	if hess != nil {
		d.calls++
		hess.D[0] += 1e-6 * d.calls
	}
	return nil
}

func TestDerivRoundTrip_SmallHessianErrorNearPole(t *testing.T) {
	f := &hessDriftField{}
	r := DerivRoundTrip(f, coord.PosSph(1, 3.14159, 2), coord.Car, coord.Cyl, shape, tol)
	assert.Equal(t, Fail, r.Outcome)
	assert.Contains(t, r.Detail, "hess")
	assert.Greater(t, r.MaxErr, 5e-7)
}

func TestRadialAgreement(t *testing.T) {
	plummer := field.Plummer{Mass: 1, Scale: 0.7}
	cored := field.Dehnen{Mass: 2, Scale: 1.5, Gamma: 0}
	tests := []struct {
		name string
		prof coord.RadialFunction
		p    coord.Pos
		want Outcome
	}{
		{"plummer car", plummer, coord.PosCar(0.8, -1.3, 0.6), Pass},
		{"plummer cyl", plummer, coord.PosCyl(1.1, 0.5, 2.2), Pass},
		{"dehnen sph", cored, coord.PosSph(1.7, 0.9, -2.5), Pass},
		{"dehnen sph origin", cored, coord.PosSph(0, 2, -1), Pass},
		{"plummer on the axis", plummer, coord.PosCar(0, 0, 1), Expected},
		{"dehnen car origin", cored, coord.PosCar(0, 0, 0), Expected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RadialAgreement(tt.name, tt.prof, tt.p, shape, tol)
			assert.Equal(t, tt.want, r.Outcome, r.Detail)
			if tt.want == Pass {
				assert.LessOrEqual(t, r.MaxErr, tol)
			}
		})
	}
}

func TestProlSphRegression(t *testing.T) {
	r := ProlSphRegression(2.5600000000780003, 2.5599999701470493, shape, RegressionTolerance)
	assert.Equal(t, Pass, r.Outcome, r.Detail)

	r = ProlSphRegression(3, 0.5, shape, RegressionTolerance)
	assert.Equal(t, Fail, r.Outcome, "nu below -gamma is invalid")
}

func TestFromError(t *testing.T) {
	sing := &coord.SingularError{From: coord.Car, To: coord.Sph, Reason: "at the origin"}
	assert.Equal(t, Expected, fromError("x", sing, true).Outcome)
	assert.Equal(t, Fail, fromError("x", sing, false).Outcome)
	assert.Equal(t, Fail, fromError("x", coord.ErrNoConvergence, true).Outcome)
}

func TestResult_FinishRejectsNaN(t *testing.T) {
	r := Result{Name: "x", Outcome: Pass}
	r.worse(0.5)
	r.worse(math.NaN())
	r.worse(0.25)
	r.worse(2)
	assert.True(t, math.IsNaN(r.MaxErr), "a later finite error replaced NaN")
	r = r.finish()
	assert.Equal(t, Fail, r.Outcome)
	assert.Equal(t, 0.0, r.MaxErr)
}

func TestDefaultSuite_AllPass(t *testing.T) {
	suite := DefaultSuite(shape, tol)
	require.NotEmpty(t, suite.Cases)

	rep := Run(context.Background(), suite, 4, testLogger())
	for _, r := range rep.Results {
		if r.Outcome == Fail {
			t.Errorf("%s: %s (max err %g)", r.Name, r.Detail, r.MaxErr)
		}
	}
	assert.True(t, rep.OK())
	assert.NotEmpty(t, rep.RunID)
	assert.Len(t, rep.Results, len(suite.Cases))
	assert.Equal(t, len(suite.Cases), rep.Passed+rep.Expected+rep.Failed)
	assert.Positive(t, rep.Expected, "the reference points include axis and origin cases")
	assert.Positive(t, rep.Passed)

	radial := 0
	for _, r := range rep.Results {
		if r.Outcome == Pass {
			assert.LessOrEqual(t, r.MaxErr, tol, r.Name)
		}
		if strings.HasPrefix(r.Name, "radial ") {
			radial++
		}
	}
	assert.Equal(t, 2*len(ReferencePoints()), radial)
}

func TestRun_PreservesOrder(t *testing.T) {
	var cases []Case
	for i := 0; i < 50; i++ {
		name := strings.Repeat("x", i+1)
		cases = append(cases, Case{Name: name, Run: func() Result { return Result{Outcome: Pass} }})
	}
	rep := Run(context.Background(), Suite{Name: "order", Cases: cases}, 8, testLogger())
	for i, r := range rep.Results {
		assert.Equal(t, cases[i].Name, r.Name)
	}
	assert.Equal(t, 50, rep.Passed)
}

func TestRun_Deterministic(t *testing.T) {
	suite := DefaultSuite(shape, tol)
	a := Run(context.Background(), suite, 1, testLogger())
	b := Run(context.Background(), suite, 7, testLogger())
	require.Len(t, b.Results, len(a.Results))
	for i := range a.Results {
		assert.Equal(t, a.Results[i].Name, b.Results[i].Name)
		assert.Equal(t, a.Results[i].Outcome, b.Results[i].Outcome)
	}
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	stop := errors.New("stop")
	cases := []Case{
		{Name: "first", Run: func() Result { cancel(stop); return Result{Outcome: Pass} }},
	}
	for i := 0; i < 20; i++ {
		cases = append(cases, Case{Name: "later", Run: func() Result { return Result{Outcome: Pass} }})
	}

	rep := Run(ctx, Suite{Cases: cases}, 1, testLogger())
	assert.Len(t, rep.Results, len(cases))
	assert.Equal(t, len(cases), rep.Passed+rep.Failed+rep.Expected)
	assert.Positive(t, rep.Failed)
	for _, r := range rep.Results {
		if r.Outcome == Fail {
			assert.Contains(t, r.Detail, "stop")
		}
	}
}

func TestThird(t *testing.T) {
	assert.Equal(t, coord.Sph, third(coord.Car, coord.Cyl))
	assert.Equal(t, coord.Car, third(coord.Sph, coord.Cyl))
	assert.Equal(t, coord.Cyl, third(coord.Sph, coord.Car))
}

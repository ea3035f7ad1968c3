package check

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/field"
	"github.com/star/galcoord/internal/metrics"
)

// RegressionTolerance is the tolerance for the near-degenerate
// prolate-spheroidal round trip.
const RegressionTolerance = 1e-16

// Case is one named check.
type Case struct {
	Name string
	Run  func() Result
}

// Suite is an ordered list of checks.
type Suite struct {
	Name  string
	Cases []Case
}

// Report is the ordered outcome of a suite run.
type Report struct {
	RunID    string        `json:"run_id" yaml:"run_id"`
	Suite    string        `json:"suite" yaml:"suite"`
	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Passed   int           `json:"passed" yaml:"passed"`
	Failed   int           `json:"failed" yaml:"failed"`
	Expected int           `json:"expected" yaml:"expected"`
	Results  []Result      `json:"results" yaml:"results"`
}

// OK reports whether no check failed.
func (r Report) OK() bool { return r.Failed == 0 }

// Reference phase-space points, five per system, covering generic points,
// points on the z axis and the origin.
var (
	carPoints = [][6]float64{
		{1, 2, 3, 4, 5, 6},
		{0, -1, 2, -3, 4, -5},
		{2, 0, -1, 0, 3, -4},
		{0, 0, 1, 2, 3, 4},
		{0, 0, 0, -1, -2, -3},
	}
	cylPoints = [][6]float64{
		{1, 2, 3, 4, 5, 6},
		{2, -1, 0, -3, 4, -5},
		{0, 2, 0, 0, -1, 0},
		{0, -1, 2, 1, 2, 0},
		{0, 0, 0, 1, -2, 0},
	}
	sphPoints = [][6]float64{
		{1, 2, 3, 4, 5, 6},
		{2, 1, 0, -3, 4, -5},
		{1, 0, 0, -1, 0, 0},
		{1, 3.14159, 2, 1, 2, 1e-4},
		{0, 2, -1, 2, 0, 0},
	}
)

// ReferencePoints returns the reference points of the default suite as
// phase-space values.
func ReferencePoints() []coord.PosVel {
	var out []coord.PosVel
	for _, set := range []struct {
		sys    coord.System
		points [][6]float64
	}{
		{coord.Car, carPoints},
		{coord.Cyl, cylPoints},
		{coord.Sph, sphPoints},
	} {
		for _, p := range set.points {
			out = append(out, coord.PosVelFrom(set.sys, p, coord.Shape{}))
		}
	}
	return out
}

var planar = []coord.System{coord.Car, coord.Cyl, coord.Sph}

// DefaultSuite builds the standard consistency suite:
//   - every reference point to every other Car/Cyl/Sph system and back,
//   - every reference point with z >= 0 to the prolate-spheroidal system
//     and back (that system only covers the upper half space),
//   - gradient and Hessian round trips for three fields native to Car, Cyl
//     and Sph, each through the remaining system as intermediate,
//   - Plummer and cored Dehnen profiles evaluated through the radial
//     shortcut and through the chain rule at every reference point,
//   - the near-degenerate prolate-spheroidal regression for two spellings
//     of the same focal parameter.
func DefaultSuite(shape coord.Shape, tol float64) Suite {
	s := Suite{Name: "default"}
	add := func(name string, run func() Result) {
		s.Cases = append(s.Cases, Case{Name: name, Run: run})
	}

	points := ReferencePoints()
	for _, pv := range points {
		for _, dst := range planar {
			if dst == pv.Sys {
				continue
			}
			add("posvel", func() Result { return PosVelRoundTrip(pv, dst, shape, tol) })
		}
		if upperHalf(pv.Pos) {
			add("posvel", func() Result { return PosVelRoundTrip(pv, coord.ProlSph, shape, tol) })
		}
	}

	fields := []coord.ScalarField{field.DefaultHenonHeiles(), field.HenonHeilesCyl{}, field.HarmonicMix{}}
	for _, f := range fields {
		for _, pv := range points {
			for _, dst := range planar {
				if dst == pv.Sys {
					continue
				}
				mid := third(pv.Sys, dst)
				add("deriv", func() Result { return DerivRoundTrip(f, pv.Pos, dst, mid, shape, tol) })
			}
		}
	}

	profiles := []struct {
		name string
		prof coord.RadialFunction
	}{
		{"plummer", field.Plummer{Mass: 1, Scale: 0.7}},
		{"dehnen", field.Dehnen{Mass: 2, Scale: 1.5, Gamma: 0}},
	}
	for _, pr := range profiles {
		for _, pv := range points {
			add("radial", func() Result { return RadialAgreement(pr.name, pr.prof, pv.Pos, shape, tol) })
		}
	}

	const (
		lambda = 2.5600000000780003
		nu     = 2.5599999701470493
	)
	for _, alpha := range []float64{-2.56, -(1.6 * 1.6)} {
		rs := coord.Shape{Alpha: alpha, Gamma: -1}
		add("prolsph regression", func() Result { return ProlSphRegression(lambda, nu, rs, RegressionTolerance) })
	}
	return s
}

func upperHalf(p coord.Pos) bool {
	cyl, err := coord.ToPos(p, coord.Cyl, coord.Shape{})
	return err == nil && cyl.C[1] >= 0
}

// third returns the Car/Cyl/Sph system that is neither a nor b.
func third(a, b coord.System) coord.System {
	for _, s := range planar {
		if s != a && s != b {
			return s
		}
	}
	return a
}

type caseJob struct {
	index int
	c     Case
}

type caseResult struct {
	index  int
	result Result
}

// Run evaluates the suite on a fixed pool of workers. Results keep the
// order of suite.Cases regardless of completion order. If ctx is cancelled
// the cases that did not run are reported as failed.
func Run(ctx context.Context, suite Suite, workers int, logger *slog.Logger) Report {
	if workers < 1 {
		workers = 1
	}
	rep := Report{
		RunID:   uuid.NewString(),
		Suite:   suite.Name,
		Started: time.Now().UTC(),
		Results: make([]Result, len(suite.Cases)),
	}
	done := make([]bool, len(suite.Cases))

	jobs := make(chan caseJob, workers*2)
	results := make(chan caseResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res := job.c.Run()
				if res.Name == "" {
					res.Name = job.c.Name
				}
				select {
				case results <- caseResult{index: job.index, result: res}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, c := range suite.Cases {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- caseJob{index: i, c: c}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		rep.Results[res.index] = res.result
		done[res.index] = true
	}

	for i, ok := range done {
		if !ok {
			rep.Results[i] = Result{Name: suite.Cases[i].Name, Outcome: Fail, Detail: "not run: " + context.Cause(ctx).Error()}
		}
	}

	for _, res := range rep.Results {
		switch res.Outcome {
		case Pass:
			rep.Passed++
		case Expected:
			rep.Expected++
		default:
			rep.Failed++
			logger.Warn("consistency check failed",
				"component", "check",
				"run_id", rep.RunID,
				"name", res.Name,
				"detail", res.Detail,
			)
		}
		metrics.ObserveCheck(string(res.Outcome))
	}
	rep.Duration = time.Since(rep.Started)

	logger.Info("consistency suite finished",
		"component", "check",
		"run_id", rep.RunID,
		"suite", rep.Suite,
		"passed", rep.Passed,
		"failed", rep.Failed,
		"expected", rep.Expected,
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep
}

// Package trajectory converts sequences of phase-space points between
// coordinate systems on a fixed pool of workers.
package trajectory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/metrics"
)

// convertJob is a unit of work for the worker pool.
type convertJob struct {
	index int
	point coord.PosVel
}

// convertResult is the output of a single point conversion.
type convertResult struct {
	index int
	point coord.PosVel
	err   error
}

// PointError reports a point that could not be converted.
type PointError struct {
	Index int   `json:"index" yaml:"index"`
	Err   error `json:"-" yaml:"-"`
}

func (e PointError) Error() string { return fmt.Sprintf("point %d: %v", e.Index, e.Err) }
func (e PointError) Unwrap() error { return e.Err }

// Stats summarizes one batch.
type Stats struct {
	Converted int           `json:"converted" yaml:"converted"`
	Failed    int           `json:"failed" yaml:"failed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Errors    []PointError  `json:"-" yaml:"-"`
}

// Pool manages a fixed number of goroutines for parallel conversion.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// NewPool creates a pool with the given number of workers (at least one).
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Convert converts every point to dst. The output has one slot per input
// point in input order; slots of failed points hold the zero PosVel and are
// listed in Stats.Errors. If ctx is cancelled, points not yet converted are
// counted as skipped and ctx's error is returned.
func (p *Pool) Convert(ctx context.Context, points []coord.PosVel, dst coord.System, shape coord.Shape) ([]coord.PosVel, Stats, error) {
	start := time.Now()
	if len(points) == 0 {
		return nil, Stats{}, nil
	}

	jobs := make(chan convertJob, p.workers*2)
	results := make(chan convertResult, p.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				out, err := coord.ToPosVel(job.point, dst, shape)
				metrics.ObserveConversion(job.point.Sys, dst, metrics.KindPosVel, err)
				select {
				case results <- convertResult{index: job.index, point: out, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for i, pt := range points {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- convertJob{index: i, point: pt}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]coord.PosVel, len(points))
	var st Stats
	for res := range results {
		if res.err != nil {
			st.Failed++
			st.Errors = append(st.Errors, PointError{Index: res.index, Err: res.err})
			p.logger.Warn("conversion failed",
				"component", "trajectory",
				"index", res.index,
				"dst", dst.Tag(),
				"error", res.err,
			)
			continue
		}
		st.Converted++
		out[res.index] = res.point
	}
	st.Skipped = len(points) - st.Converted - st.Failed
	slices.SortFunc(st.Errors, func(a, b PointError) int { return cmp.Compare(a.Index, b.Index) })
	st.Duration = time.Since(start)
	metrics.ObserveTrajectoryBatch(st.Duration)

	if err := ctx.Err(); err != nil && st.Skipped > 0 {
		return out, st, fmt.Errorf("trajectory: %d of %d points skipped: %w", st.Skipped, len(points), err)
	}
	return out, st, nil
}

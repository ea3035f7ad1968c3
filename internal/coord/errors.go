package coord

import (
	"errors"
	"fmt"
)

var (
	// ErrSingular is returned when a derivative transform is undefined at the
	// requested point (axis, pole, origin or focal point).
	ErrSingular = errors.New("coordinate singularity")

	// ErrNoConvergence is returned when the prolate-spheroidal inversion does
	// not settle within its iteration cap.
	ErrNoConvergence = errors.New("root finder did not converge")

	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrShapeMismatch  = errors.New("prolate-spheroidal shape mismatch")
	ErrSystemMismatch = errors.New("coordinate system mismatch")
	ErrUnsupported    = errors.New("unsupported coordinate system")
)

// SingularError describes where a conversion became singular.
type SingularError struct {
	From, To System
	Reason   string
	Point    [3]float64
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("%s -> %s at (%g, %g, %g): %s",
		e.From, e.To, e.Point[0], e.Point[1], e.Point[2], e.Reason)
}

func (e *SingularError) Unwrap() error { return ErrSingular }

func singular(from, to System, p [3]float64, reason string) error {
	return &SingularError{From: from, To: to, Reason: reason, Point: p}
}

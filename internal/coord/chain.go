package coord

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Compose chains the Jacobians of A -> B and B -> C into A -> C.
func Compose(d1, d2 PosDeriv) (PosDeriv, error) {
	if err := link(d1.To, d2.From, d1.ToShape, d2.FromShape); err != nil {
		return PosDeriv{}, err
	}
	out := PosDeriv{From: d1.From, To: d2.To, FromShape: d1.FromShape, ToShape: d2.ToShape}
	var prod mat.Dense
	prod.Mul(dense3(d2.M), dense3(d1.M))
	for i := 0; i < 3; i++ {
		for a := 0; a < 3; a++ {
			out.M[i][a] = prod.At(i, a)
		}
	}
	return out, nil
}

// Compose2 chains second derivatives:
//
//	T[i][ab] = Σ_j M2[i][j] T1[j][ab] + Σ_jk T2[i][jk] M1[j][a] M1[k][b]
func Compose2(d1 PosDeriv, d1b PosDeriv2, d2 PosDeriv, d2b PosDeriv2) (PosDeriv2, error) {
	if err := link(d1.To, d2.From, d1.ToShape, d2.FromShape); err != nil {
		return PosDeriv2{}, err
	}
	if d1b.From != d1.From || d1b.To != d1.To || d2b.From != d2.From || d2b.To != d2.To {
		return PosDeriv2{}, fmt.Errorf("compose second derivatives: %w", ErrSystemMismatch)
	}
	out := PosDeriv2{From: d1.From, To: d2.To, FromShape: d1.FromShape, ToShape: d2.ToShape}
	for i := 0; i < 3; i++ {
		for k, ab := range packedPairs {
			a, b := ab[0], ab[1]
			var sum float64
			for j := 0; j < 3; j++ {
				sum += d2.M[i][j] * d1b.T[j][k]
				for l := 0; l < 3; l++ {
					sum += d2b.T[i][packed(j, l)] * d1.M[j][a] * d1.M[l][b]
				}
			}
			out.T[i][k] = sum
		}
	}
	return out, nil
}

// ToGrad re-expresses g in d.From. d must describe a conversion from the
// target system into the system of g: d.To == g.Sys.
//
//	g'_a = Σ_i g_i ∂To_i/∂From_a
func ToGrad(g Grad, d PosDeriv) (Grad, error) {
	if err := link(d.To, g.Sys, d.ToShape, g.Shape); err != nil {
		return Grad{}, fmt.Errorf("gradient: %w", err)
	}
	out := Grad{Sys: d.From, Shape: shapeOf(d.From, d.FromShape)}
	for a := 0; a < 3; a++ {
		for i := 0; i < 3; i++ {
			out.D[a] += g.D[i] * d.M[i][a]
		}
	}
	return out, nil
}

// ToHess re-expresses h in d.From. Both the Jacobian term and the
// curvature term of the coordinate map are applied:
//
//	H'_ab = Σ_ij H_ij M[i][a] M[j][b] + Σ_i g_i T[i][ab]
func ToHess(g Grad, h Hess, d PosDeriv, d2 PosDeriv2) (Hess, error) {
	if g.Sys != h.Sys {
		return Hess{}, fmt.Errorf("hessian in %s with gradient in %s: %w", h.Sys, g.Sys, ErrSystemMismatch)
	}
	if err := link(d.To, h.Sys, d.ToShape, h.Shape); err != nil {
		return Hess{}, fmt.Errorf("hessian: %w", err)
	}
	if err := checkShape(g.Sys, g.Shape, h.Shape); err != nil {
		return Hess{}, fmt.Errorf("hessian: %w", err)
	}
	if d2.From != d.From || d2.To != d.To {
		return Hess{}, fmt.Errorf("hessian second derivatives %s -> %s: %w", d2.From, d2.To, ErrSystemMismatch)
	}

	// J^T H J via gonum, then the curvature term by hand.
	var hj, jhj mat.Dense
	J := dense3(d.M)
	hj.Mul(symDense(h), J)
	jhj.Mul(J.T(), &hj)

	out := Hess{Sys: d.From, Shape: shapeOf(d.From, d.FromShape)}
	for k, ab := range packedPairs {
		v := jhj.At(ab[0], ab[1])
		for i := 0; i < 3; i++ {
			v += g.D[i] * d2.T[i][k]
		}
		out.D[k] = v
	}
	return out, nil
}

// link checks that a derivative ending in (to, toShape) can feed a value or
// derivative living in (sys, shape).
func link(to, sys System, toShape, shape Shape) error {
	if to != sys {
		return fmt.Errorf("%s vs %s: %w", to, sys, ErrSystemMismatch)
	}
	return checkShape(sys, shapeOf(to, toShape), shapeOf(sys, shape))
}

func dense3(m [3][3]float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

func symDense(h Hess) *mat.SymDense {
	s := mat.NewSymDense(3, nil)
	for k, ij := range packedPairs {
		s.SetSym(ij[0], ij[1], h.D[k])
	}
	return s
}

package coord

import (
	"math"
	"testing"
)

func TestEqualPos(t *testing.T) {
	a := PosCar(1, 2, 3)
	tests := []struct {
		name string
		b    Pos
		want bool
	}{
		{"identical", PosCar(1, 2, 3), true},
		{"within tolerance", PosCar(1+1e-12, 2, 3-1e-12), true},
		{"outside tolerance", PosCar(1, 2+1e-9, 3), false},
		{"other system", PosCyl(1, 2, 3), false},
		{"nan", PosCar(math.NaN(), 2, 3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EqualPos(a, tt.b, 1e-10); got != tt.want {
				t.Errorf("EqualPos(%v, %v) = %v, want %v", a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEqualPos_ProlSphShape(t *testing.T) {
	a := PosProlSph(3, 2, 0, testShape)
	b := PosProlSph(3, 2, 0, Shape{Alpha: -3, Gamma: -1})
	if EqualPos(a, b, 1) {
		t.Error("positions with different shapes compared equal")
	}
}

func TestEqualHess_Packed(t *testing.T) {
	a := Hess{Sys: Sph, D: [6]float64{1, 2, 3, 4, 5, 6}}
	b := a
	b.D[5] += 1e-6
	if EqualHess(a, b, 1e-7) {
		t.Error("expected mismatch in the (0,2) component")
	}
	if !EqualHess(a, b, 1e-5) {
		t.Error("expected match at looser tolerance")
	}
	if a.At(2, 0) != 6 || a.At(1, 2) != 5 || a.At(1, 0) != 4 {
		t.Errorf("At does not follow the packed layout: %v", a.D)
	}
}

func TestMaxDiff(t *testing.T) {
	if got := MaxDiff([]float64{1, -2, 3}, []float64{1.5, 2, 3}); got != 4 {
		t.Errorf("MaxDiff = %v, want 4", got)
	}
	if got := MaxDiff(nil, nil); got != 0 {
		t.Errorf("MaxDiff(empty) = %v, want 0", got)
	}
}

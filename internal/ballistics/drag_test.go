package ballistics

import (
	"errors"
	"math"
	"testing"
)

func TestDragFactorReference(t *testing.T) {
	k := DefaultConstants().DragFactor()
	want := 0.5 * 1.225 * 0.005 * 0.1 / 250
	if math.Abs(k-want) > 1e-18 {
		t.Errorf("DragFactor = %g, want %g", k, want)
	}
}

func TestQuadraticDragIgnoresSign(t *testing.T) {
	d := QuadraticDrag{K: 0.5}
	for _, v := range []float64{-20, -1, 0, 1, 20} {
		if got, want := d.Deceleration(v), 0.5*v*v; got != want {
			t.Errorf("Deceleration(%g) = %g, want %g", v, got, want)
		}
		if d.Deceleration(v) != d.Deceleration(-v) {
			t.Errorf("Deceleration(%g) differs from Deceleration(%g)", v, -v)
		}
	}
}

func TestSignedQuadraticDragOpposesMotion(t *testing.T) {
	d := SignedQuadraticDrag{K: 0.5}
	tests := []struct {
		v, want float64
	}{
		{10, 50},
		{-10, -50},
		{0, 0},
	}
	for _, tt := range tests {
		if got := d.Deceleration(tt.v); got != tt.want {
			t.Errorf("Deceleration(%g) = %g, want %g", tt.v, got, tt.want)
		}
	}
}

func TestNewDragModel(t *testing.T) {
	c := DefaultConstants()

	for name, want := range map[string]string{"": DragLiteral, DragLiteral: DragLiteral, DragSigned: DragSigned} {
		m, err := NewDragModel(name, c)
		if err != nil {
			t.Fatalf("NewDragModel(%q): %v", name, err)
		}
		if m.Name() != want {
			t.Errorf("NewDragModel(%q).Name() = %q, want %q", name, m.Name(), want)
		}
	}

	if _, err := NewDragModel("cubic", c); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input for unknown drag model, got %v", err)
	}
}

package ballistics

import "fmt"

// DragModel turns one velocity component into the deceleration subtracted from it per second
type DragModel interface {
	Deceleration(v float64) float64
	Name() string
}

// Drag model names accepted by NewDragModel
const (
	DragLiteral = "literal"
	DragSigned  = "signed"
)

// QuadraticDrag returns k·v² regardless of the sign of v.
// Subtracting it always lowers the component, so a falling munition keeps speeding up
// instead of approaching a terminal velocity. This matches the reference solver.
type QuadraticDrag struct {
	K float64
}

func (d QuadraticDrag) Deceleration(v float64) float64 {
	return d.K * v * v
}

func (d QuadraticDrag) Name() string { return DragLiteral }

// SignedQuadraticDrag returns sign(v)·k·v² so drag always opposes motion
type SignedQuadraticDrag struct {
	K float64
}

func (d SignedQuadraticDrag) Deceleration(v float64) float64 {
	if v < 0 {
		return -d.K * v * v
	}
	return d.K * v * v
}

func (d SignedQuadraticDrag) Name() string { return DragSigned }

// NewDragModel builds a drag model by name for the given constants
func NewDragModel(name string, c Constants) (DragModel, error) {
	k := c.DragFactor()
	switch name {
	case "", DragLiteral:
		return QuadraticDrag{K: k}, nil
	case DragSigned:
		return SignedQuadraticDrag{K: k}, nil
	default:
		return nil, &InvalidInputError{
			Field:  "drag_model",
			Reason: fmt.Sprintf("unknown model %q (must be %q or %q)", name, DragLiteral, DragSigned),
		}
	}
}

package ballistics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput matches every InvalidInputError
	ErrInvalidInput = errors.New("invalid input")
	// ErrIntegrationBound matches every IntegrationBoundError
	ErrIntegrationBound = errors.New("integration bound exceeded")
)

// InvalidInputError reports a non-physical input detected before integration
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s (%g): %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidInput(field string, value float64, reason string) error {
	return &InvalidInputError{Field: field, Value: value, Reason: reason}
}

// IntegrationBoundError is returned when the step cap is reached before ground impact.
// With the default drag model this cannot happen for valid inputs.
type IntegrationBoundError struct {
	Steps    int
	Altitude float64
}

func (e *IntegrationBoundError) Error() string {
	return fmt.Sprintf("munition still %.1f m above ground after %d steps", e.Altitude, e.Steps)
}

func (e *IntegrationBoundError) Is(target error) bool {
	return target == ErrIntegrationBound
}

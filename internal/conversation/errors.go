package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("invalid input")

	// ErrAskInFlight is returned when Ask is called while another Ask is
	// still waiting for the model.
	ErrAskInFlight = errors.New("a request is already in flight")
)

// ValidationError describes rejected user input. Rejected input is never
// added to the history.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

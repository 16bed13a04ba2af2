package sim

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDt   = errors.New("sim: dt must be positive and finite")
	ErrInvariant   = errors.New("sim: invariant violated")
	ErrGenomeInUse = errors.New("sim: a different genome is already in use")
	ErrNoGenome    = errors.New("sim: no genome")
)

// StepError reports a step that was aborted. The world still holds the
// generation committed before the step.
type StepError struct {
	Step  int
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sim: step %d rolled back: %v", e.Step, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

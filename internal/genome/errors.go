package genome

import (
	"errors"
	"strings"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("genome: validation failed")

	// ErrUnknownParam indicates a live-tuning field name that no mode has.
	ErrUnknownParam = errors.New("genome: unknown parameter")
)

// ValidationError lists every problem found while loading a genome.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "genome: invalid: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

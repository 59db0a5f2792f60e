package timeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCannotInferStart is returned when a fact without start has no preceding fact
	ErrCannotInferStart = errors.New("cannot infer start: no fact precedes this point")
	// ErrCannotInferEnd is returned when a fact without end has no following fact
	ErrCannotInferEnd = errors.New("cannot infer end: no fact follows this point")
	// ErrIntegrity is matched by every IntegrityError
	ErrIntegrity = errors.New("timeline integrity violation")
	// ErrTooManyConflicts is returned when a query finds more facts than the limit allows
	ErrTooManyConflicts = errors.New("too many conflicting facts")
)

// IntegrityError reports more than one fact at an instant where at most one may be
type IntegrityError struct {
	Instant time.Time
	Count   int
}

// NewIntegrityError creates an IntegrityError
func NewIntegrityError(instant time.Time, count int) *IntegrityError {
	return &IntegrityError{Instant: instant, Count: count}
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %d facts found at %s", ErrIntegrity, e.Count, e.Instant.Format(time.RFC3339))
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// IsBoundaryError reports whether err means a missing start or end could not be inferred
func IsBoundaryError(err error) bool {
	return errors.Is(err, ErrCannotInferStart) || errors.Is(err, ErrCannotInferEnd)
}

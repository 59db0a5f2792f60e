package timelog

import (
	"errors"

	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeline"
)

// IsRejection reports whether err rejects the factoid or fact itself, as
// opposed to an infrastructure failure that may succeed on retry
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := factoid.KindOf(err); ok {
		return true
	}
	for _, target := range []error{
		timeline.ErrCannotInferStart,
		timeline.ErrCannotInferEnd,
		timeline.ErrIntegrity,
		timeline.ErrTooManyConflicts,
		models.ErrInvalidSpan,
		models.ErrFactTooShort,
		models.ErrMissingActivityName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

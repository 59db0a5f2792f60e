// Package timeline resolves conflicts when a fact is forced into a timeline
// of non-overlapping facts.
package timeline

import (
	"context"
	"time"

	"github.com/benvon/smart-timelog/internal/models"
)

// Timeline answers the queries the resolver needs. Implementations ignore
// deleted facts and facts that are still running, and exclude the query
// fact itself when it has an ID.
type Timeline interface {
	// Antecedent returns the closest fact ending at or before the fact's
	// start, or its end when the start is unset.
	Antecedent(ctx context.Context, fact *models.Fact) (*models.Fact, error)
	// Subsequent returns the closest fact starting at or after the fact's
	// end, or its start when the end is unset.
	Subsequent(ctx context.Context, fact *models.Fact) (*models.Fact, error)
	// Surrounding returns the facts whose span strictly contains instant.
	Surrounding(ctx context.Context, instant time.Time) ([]*models.Fact, error)
	// StartingAt returns the fact starting exactly at the fact's start.
	// More than one match is an *IntegrityError.
	StartingAt(ctx context.Context, fact *models.Fact) (*models.Fact, error)
	// EndingAt returns the fact ending exactly at the fact's end.
	// More than one match is an *IntegrityError.
	EndingAt(ctx context.Context, fact *models.Fact) (*models.Fact, error)
	// StrictlyDuring returns the facts inside the open interval (start, end).
	// Finding more than limit facts fails with ErrTooManyConflicts.
	StrictlyDuring(ctx context.Context, start, end time.Time, limit int) ([]*models.Fact, error)
}

// RunningTimeline is a Timeline that can also report the fact still running
type RunningTimeline interface {
	Timeline
	// Running returns the latest live fact without an end, other than fact.
	Running(ctx context.Context, fact *models.Fact) (*models.Fact, error)
}

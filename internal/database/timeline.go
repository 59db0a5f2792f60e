package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeline"
	"github.com/google/uuid"
)

// closedLive restricts a query to finished facts that are not deleted.
// $1 is the timeline and $2 the ID of the query fact, which is excluded.
const closedLive = `
	WHERE f.timeline_id = $1
	AND f.id <> $2
	AND NOT f.deleted
	AND f.start_time IS NOT NULL
	AND f.end_time IS NOT NULL
`

// FactTimeline answers the conflict resolver's queries for one timeline
type FactTimeline struct {
	db         querier
	timelineID string
}

var _ timeline.RunningTimeline = (*FactTimeline)(nil)

// NewFactTimeline creates the queries for timelineID
func NewFactTimeline(db *DB, timelineID string) *FactTimeline {
	return &FactTimeline{db: db, timelineID: timelineID}
}

func (t *FactTimeline) Antecedent(ctx context.Context, fact *models.Fact) (*models.Fact, error) {
	ref := fact.Start
	if ref == nil {
		ref = fact.End
	}
	if ref == nil {
		return nil, nil
	}

	query := `SELECT ` + factColumns + factFrom + closedLive + `
		AND f.end_time <= $3
		ORDER BY f.end_time DESC, f.start_time DESC
		LIMIT 1
	`
	return t.one(ctx, query, fact, *ref)
}

func (t *FactTimeline) Subsequent(ctx context.Context, fact *models.Fact) (*models.Fact, error) {
	ref := fact.End
	if ref == nil {
		ref = fact.Start
	}
	if ref == nil {
		return nil, nil
	}

	query := `SELECT ` + factColumns + factFrom + closedLive + `
		AND f.start_time >= $3
		ORDER BY f.start_time ASC, f.end_time ASC
		LIMIT 1
	`
	return t.one(ctx, query, fact, *ref)
}

func (t *FactTimeline) Surrounding(ctx context.Context, instant time.Time) ([]*models.Fact, error) {
	query := `SELECT ` + factColumns + factFrom + closedLive + `
		AND f.start_time < $3
		AND f.end_time > $3
		ORDER BY f.start_time
	`
	facts, err := queryFacts(ctx, t.db, query, t.timelineID, excluded(nil), instant)
	if err != nil {
		return nil, fmt.Errorf("failed to query surrounding facts: %w", err)
	}
	return facts, nil
}

func (t *FactTimeline) StartingAt(ctx context.Context, fact *models.Fact) (*models.Fact, error) {
	if fact.Start == nil {
		return nil, nil
	}
	query := `SELECT ` + factColumns + factFrom + closedLive + `AND f.start_time = $3 LIMIT 2`
	return t.exactlyOne(ctx, query, fact, *fact.Start)
}

func (t *FactTimeline) EndingAt(ctx context.Context, fact *models.Fact) (*models.Fact, error) {
	if fact.End == nil {
		return nil, nil
	}
	query := `SELECT ` + factColumns + factFrom + closedLive + `AND f.end_time = $3 LIMIT 2`
	return t.exactlyOne(ctx, query, fact, *fact.End)
}

func (t *FactTimeline) StrictlyDuring(ctx context.Context, start, end time.Time, limit int) ([]*models.Fact, error) {
	query := `SELECT ` + factColumns + factFrom + closedLive + `
		AND f.start_time > $3
		AND f.end_time < $4
		ORDER BY f.start_time
	`
	args := []any{t.timelineID, excluded(nil), start, end}
	if limit > 0 {
		query += " LIMIT $5"
		args = append(args, limit+1)
	}

	facts, err := queryFacts(ctx, t.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts during span: %w", err)
	}
	if limit > 0 && len(facts) > limit {
		return nil, timeline.ErrTooManyConflicts
	}
	return facts, nil
}

func (t *FactTimeline) Running(ctx context.Context, fact *models.Fact) (*models.Fact, error) {
	query := `SELECT ` + factColumns + factFrom + `
		WHERE f.timeline_id = $1
		AND f.id <> $2
		AND NOT f.deleted
		AND f.start_time IS NOT NULL
		AND f.end_time IS NULL
		ORDER BY f.start_time DESC
		LIMIT 1
	`
	facts, err := queryFacts(ctx, t.db, query, t.timelineID, excluded(fact))
	if err != nil {
		return nil, fmt.Errorf("failed to query running fact: %w", err)
	}
	if len(facts) == 0 {
		return nil, nil
	}
	return facts[0], nil
}

func (t *FactTimeline) one(ctx context.Context, query string, fact *models.Fact, ref time.Time) (*models.Fact, error) {
	facts, err := queryFacts(ctx, t.db, query, t.timelineID, excluded(fact), ref)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbouring fact: %w", err)
	}
	if len(facts) == 0 {
		return nil, nil
	}
	return facts[0], nil
}

func (t *FactTimeline) exactlyOne(ctx context.Context, query string, fact *models.Fact, instant time.Time) (*models.Fact, error) {
	facts, err := queryFacts(ctx, t.db, query, t.timelineID, excluded(fact), instant)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts at %s: %w", instant.Format(time.RFC3339), err)
	}
	switch len(facts) {
	case 0:
		return nil, nil
	case 1:
		return facts[0], nil
	default:
		return nil, timeline.NewIntegrityError(instant, len(facts))
	}
}

// excluded returns the ID to leave out of a query. New facts have the nil
// UUID, which no stored fact carries.
func excluded(fact *models.Fact) any {
	if fact == nil {
		return uuid.Nil
	}
	return fact.ID
}

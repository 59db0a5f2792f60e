package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultConflictLimit bounds the facts a single insertion may swallow
const DefaultConflictLimit = 10

// Action is what the resolver did to a conflicting fact
type Action string

const (
	ActionDelete    Action = "delete"
	ActionSplit     Action = "split"
	ActionTrimEnd   Action = "trim_end"
	ActionTrimStart Action = "trim_start"
)

// Resolution is the outcome of forcing a fact into a timeline
type Resolution struct {
	// Edits are edited copies of existing facts, ordered by start. The right
	// half of a split has no ID yet.
	Edits []*models.Fact
	// Originals holds an unedited copy of every conflicting fact by ID
	Originals map[uuid.UUID]*models.Fact
}

// Resolver computes the edits needed to insert a fact without overlaps.
// It only reads from the timeline; persisting the edits is up to the caller,
// who must also keep insertions into one timeline from running concurrently.
type Resolver struct {
	timeline Timeline
	logger   *zap.Logger
	limit    int
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLogger logs every classification at debug level
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConflictLimit overrides DefaultConflictLimit
func WithConflictLimit(limit int) ResolverOption {
	return func(r *Resolver) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

// NewResolver creates a resolver over tl
func NewResolver(tl Timeline, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		timeline: tl,
		logger:   zap.NewNop(),
		limit:    DefaultConflictLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InsertForcefully resolves tl's conflicts with fact and returns the edited copies
func InsertForcefully(ctx context.Context, tl Timeline, fact *models.Fact) ([]*models.Fact, error) {
	resolution, err := NewResolver(tl).InsertForcefully(ctx, fact)
	if err != nil {
		return nil, err
	}
	return resolution.Edits, nil
}

// InsertForcefully infers a missing start or end of fact from its neighbours,
// finds every fact it overlaps and returns edited copies of them. Facts that
// fall inside fact are deleted, facts that contain it are split in two and
// the rest are trimmed. Only fact's missing boundaries are ever changed on
// fact itself.
func (r *Resolver) InsertForcefully(ctx context.Context, fact *models.Fact) (*Resolution, error) {
	if fact.Start == nil && fact.End == nil {
		return nil, ErrCannotInferStart
	}

	conflicts := newConflictSet(fact.ID)

	if fact.Start == nil {
		if err := r.inferStart(ctx, fact); err != nil {
			return nil, err
		}
	} else if err := r.edgeConflicts(ctx, conflicts, *fact.Start, func() (*models.Fact, error) {
		return r.timeline.StartingAt(ctx, fact)
	}); err != nil {
		return nil, err
	}

	if fact.End == nil {
		if err := r.inferEnd(ctx, fact); err != nil {
			return nil, err
		}
	} else if err := r.edgeConflicts(ctx, conflicts, *fact.End, func() (*models.Fact, error) {
		return r.timeline.EndingAt(ctx, fact)
	}); err != nil {
		return nil, err
	}

	start, end := *fact.Start, *fact.End
	if !end.After(start) {
		return nil, fmt.Errorf("%w: %s is not after %s", models.ErrInvalidSpan,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	during, err := r.timeline.StrictlyDuring(ctx, start, end, r.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find facts during %s - %s: %w",
			start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	conflicts.add(during...)

	resolution := &Resolution{Originals: make(map[uuid.UUID]*models.Fact, len(conflicts.facts))}
	for _, conflict := range conflicts.ordered() {
		resolution.Originals[conflict.ID] = conflict.Copy()
		edits, action := resolveConflict(start, end, conflict)
		r.logger.Debug("conflict_resolved",
			zap.String("fact_id", conflict.ID.String()),
			zap.String("action", string(action)),
			zap.Int("edits", len(edits)))
		resolution.Edits = append(resolution.Edits, edits...)
	}
	sortByStart(resolution.Edits)
	return resolution, nil
}

// InsertOngoing places fact, which has a start but no end, after every
// finished fact. The fact surrounding its start is trimmed to end there, and
// on a RunningTimeline the fact still running is closed at that start, or
// deleted when it starts at the same instant. A finished fact starting at or
// after the start leaves no room for an ongoing fact.
func (r *Resolver) InsertOngoing(ctx context.Context, fact *models.Fact) (*Resolution, error) {
	if fact.Start == nil {
		return nil, ErrCannotInferStart
	}
	if fact.End != nil {
		return r.InsertForcefully(ctx, fact)
	}
	start := *fact.Start

	subsequent, err := r.timeline.Subsequent(ctx, fact)
	if err != nil {
		return nil, fmt.Errorf("failed to find subsequent fact: %w", err)
	}
	if subsequent != nil {
		return nil, ErrCannotInferEnd
	}

	conflicts, err := r.timeline.Surrounding(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to find facts surrounding %s: %w", start.Format(time.RFC3339), err)
	}
	if len(conflicts) > 1 {
		return nil, NewIntegrityError(start, len(conflicts))
	}
	if running, ok := r.timeline.(RunningTimeline); ok {
		current, err := running.Running(ctx, fact)
		if err != nil {
			return nil, fmt.Errorf("failed to find running fact: %w", err)
		}
		if current != nil {
			if current.Start.After(start) {
				return nil, ErrCannotInferEnd
			}
			conflicts = append(conflicts, current)
		}
	}

	resolution := &Resolution{Originals: make(map[uuid.UUID]*models.Fact, len(conflicts))}
	for _, conflict := range conflicts {
		resolution.Originals[conflict.ID] = conflict.Copy()
		edited := conflict.Copy()
		action := ActionTrimEnd
		if conflict.Start.Equal(start) {
			edited.MarkDeleted()
			action = ActionDelete
		} else {
			edited.SetEnd(start)
		}
		r.logger.Debug("conflict_resolved",
			zap.String("fact_id", conflict.ID.String()),
			zap.String("action", string(action)),
			zap.Int("edits", 1))
		resolution.Edits = append(resolution.Edits, edited)
	}
	sortByStart(resolution.Edits)
	return resolution, nil
}

func (r *Resolver) inferStart(ctx context.Context, fact *models.Fact) error {
	antecedent, err := r.timeline.Antecedent(ctx, fact)
	if err != nil {
		return fmt.Errorf("failed to find antecedent fact: %w", err)
	}
	if antecedent == nil || antecedent.End == nil || !antecedent.End.Before(*fact.End) {
		return ErrCannotInferStart
	}
	start := *antecedent.End
	fact.Start = &start
	return nil
}

func (r *Resolver) inferEnd(ctx context.Context, fact *models.Fact) error {
	subsequent, err := r.timeline.Subsequent(ctx, fact)
	if err != nil {
		return fmt.Errorf("failed to find subsequent fact: %w", err)
	}
	if subsequent == nil || subsequent.Start == nil || !subsequent.Start.After(*fact.Start) {
		return ErrCannotInferEnd
	}
	end := *subsequent.Start
	fact.End = &end
	return nil
}

// edgeConflicts collects the fact surrounding instant, or when there is none,
// the fact sitting exactly on that edge.
func (r *Resolver) edgeConflicts(ctx context.Context, conflicts *conflictSet, instant time.Time, atEdge func() (*models.Fact, error)) error {
	surrounding, err := r.timeline.Surrounding(ctx, instant)
	if err != nil {
		return fmt.Errorf("failed to find facts surrounding %s: %w", instant.Format(time.RFC3339), err)
	}
	if len(surrounding) > 1 {
		return NewIntegrityError(instant, len(surrounding))
	}
	if len(surrounding) == 1 {
		conflicts.add(surrounding[0])
		return nil
	}

	edge, err := atEdge()
	if err != nil {
		return fmt.Errorf("failed to find fact at %s: %w", instant.Format(time.RFC3339), err)
	}
	if edge != nil {
		conflicts.add(edge)
	}
	return nil
}

// resolveConflict classifies conflict against the span [start, end] and
// returns its edited copies
func resolveConflict(start, end time.Time, conflict *models.Fact) ([]*models.Fact, Action) {
	switch {
	case !conflict.Start.Before(start):
		edited := conflict.Copy()
		if !end.Before(*conflict.End) {
			edited.MarkDeleted()
			return []*models.Fact{edited}, ActionDelete
		}
		edited.SetStart(end)
		return []*models.Fact{edited}, ActionTrimStart

	case !end.Before(*conflict.End):
		edited := conflict.Copy()
		edited.SetEnd(start)
		return []*models.Fact{edited}, ActionTrimEnd

	default:
		return split(start, end, conflict), ActionSplit
	}
}

func split(start, end time.Time, conflict *models.Fact) []*models.Fact {
	origin := conflict.ID

	left := conflict.Copy()
	left.SetEnd(start)
	left.SplitFrom = &origin

	right := conflict.Copy()
	right.ID = uuid.Nil
	right.SetStart(end)
	right.SplitFrom = &origin

	return []*models.Fact{left, right}
}

// conflictSet deduplicates conflicting facts by ID
type conflictSet struct {
	exclude uuid.UUID
	facts   map[uuid.UUID]*models.Fact
}

func newConflictSet(exclude uuid.UUID) *conflictSet {
	return &conflictSet{exclude: exclude, facts: make(map[uuid.UUID]*models.Fact)}
}

func (s *conflictSet) add(facts ...*models.Fact) {
	for _, fact := range facts {
		if fact == nil || fact.Start == nil || fact.End == nil {
			continue
		}
		if s.exclude != uuid.Nil && fact.ID == s.exclude {
			continue
		}
		if _, seen := s.facts[fact.ID]; !seen {
			s.facts[fact.ID] = fact
		}
	}
}

func (s *conflictSet) ordered() []*models.Fact {
	facts := make([]*models.Fact, 0, len(s.facts))
	for _, fact := range s.facts {
		facts = append(facts, fact)
	}
	sortByStart(facts)
	return facts
}

func sortByStart(facts []*models.Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		a, b := facts[i], facts[j]
		if a.Start == nil || b.Start == nil {
			return a.Start == nil && b.Start != nil
		}
		if !a.Start.Equal(*b.Start) {
			return a.Start.Before(*b.Start)
		}
		return a.ID.String() < b.ID.String()
	})
}

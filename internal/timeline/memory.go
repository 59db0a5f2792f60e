package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/google/uuid"
)

// MemoryTimeline is an in-process Timeline. It backs dry runs and tests.
type MemoryTimeline struct {
	mu    sync.RWMutex
	facts []*models.Fact
}

var _ RunningTimeline = (*MemoryTimeline)(nil)

// NewMemoryTimeline creates a timeline holding copies of facts
func NewMemoryTimeline(facts ...*models.Fact) *MemoryTimeline {
	tl := &MemoryTimeline{}
	tl.Add(facts...)
	return tl
}

// Add stores copies of facts, assigning IDs to new ones. The stored copies
// are returned.
func (tl *MemoryTimeline) Add(facts ...*models.Fact) []*models.Fact {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	added := make([]*models.Fact, 0, len(facts))
	for _, fact := range facts {
		added = append(added, tl.store(fact).Copy())
	}
	return added
}

// Apply persists a resolution: edits replace the facts with the same ID,
// split fragments without ID are added, and fact itself is stored last.
// The stored copy of fact is returned.
func (tl *MemoryTimeline) Apply(fact *models.Fact, edits []*models.Fact) *models.Fact {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	for _, edit := range edits {
		tl.store(edit)
	}
	return tl.store(fact).Copy()
}

func (tl *MemoryTimeline) store(fact *models.Fact) *models.Fact {
	stored := fact.Copy()
	stored.ClearDirty()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
		tl.facts = append(tl.facts, stored)
		return stored
	}
	for i, existing := range tl.facts {
		if existing.ID == stored.ID {
			tl.facts[i] = stored
			return stored
		}
	}
	tl.facts = append(tl.facts, stored)
	return stored
}

// Facts returns copies of the facts that are not deleted, ordered by start
func (tl *MemoryTimeline) Facts() []*models.Fact {
	return tl.snapshot(false)
}

// All returns copies of every fact, deleted ones included, ordered by start
func (tl *MemoryTimeline) All() []*models.Fact {
	return tl.snapshot(true)
}

func (tl *MemoryTimeline) snapshot(includeDeleted bool) []*models.Fact {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var out []*models.Fact
	for _, fact := range tl.facts {
		if includeDeleted || !fact.Deleted {
			out = append(out, fact.Copy())
		}
	}
	sortByStart(out)
	return out
}

// Get returns a copy of the fact with the given ID, deleted or not
func (tl *MemoryTimeline) Get(id uuid.UUID) (*models.Fact, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	for _, fact := range tl.facts {
		if fact.ID == id {
			return fact.Copy(), true
		}
	}
	return nil, false
}

// closed returns the live, finished facts other than exclude
func (tl *MemoryTimeline) closed(exclude uuid.UUID) []*models.Fact {
	var out []*models.Fact
	for _, fact := range tl.facts {
		if fact.Deleted || fact.Start == nil || fact.End == nil {
			continue
		}
		if exclude != uuid.Nil && fact.ID == exclude {
			continue
		}
		out = append(out, fact)
	}
	return out
}

func (tl *MemoryTimeline) Antecedent(_ context.Context, fact *models.Fact) (*models.Fact, error) {
	ref := fact.Start
	if ref == nil {
		ref = fact.End
	}
	if ref == nil {
		return nil, nil
	}

	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var best *models.Fact
	for _, candidate := range tl.closed(fact.ID) {
		if candidate.End.After(*ref) {
			continue
		}
		if best == nil || candidate.End.After(*best.End) ||
			(candidate.End.Equal(*best.End) && candidate.Start.After(*best.Start)) {
			best = candidate
		}
	}
	return copyOrNil(best), nil
}

func (tl *MemoryTimeline) Subsequent(_ context.Context, fact *models.Fact) (*models.Fact, error) {
	ref := fact.End
	if ref == nil {
		ref = fact.Start
	}
	if ref == nil {
		return nil, nil
	}

	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var best *models.Fact
	for _, candidate := range tl.closed(fact.ID) {
		if candidate.Start.Before(*ref) {
			continue
		}
		if best == nil || candidate.Start.Before(*best.Start) ||
			(candidate.Start.Equal(*best.Start) && candidate.End.Before(*best.End)) {
			best = candidate
		}
	}
	return copyOrNil(best), nil
}

func (tl *MemoryTimeline) Surrounding(_ context.Context, instant time.Time) ([]*models.Fact, error) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var out []*models.Fact
	for _, candidate := range tl.closed(uuid.Nil) {
		if candidate.Start.Before(instant) && candidate.End.After(instant) {
			out = append(out, candidate.Copy())
		}
	}
	return out, nil
}

func (tl *MemoryTimeline) StartingAt(_ context.Context, fact *models.Fact) (*models.Fact, error) {
	if fact.Start == nil {
		return nil, nil
	}
	return tl.exactlyAt(fact.ID, *fact.Start, func(f *models.Fact) time.Time { return *f.Start })
}

func (tl *MemoryTimeline) EndingAt(_ context.Context, fact *models.Fact) (*models.Fact, error) {
	if fact.End == nil {
		return nil, nil
	}
	return tl.exactlyAt(fact.ID, *fact.End, func(f *models.Fact) time.Time { return *f.End })
}

func (tl *MemoryTimeline) exactlyAt(exclude uuid.UUID, instant time.Time, edge func(*models.Fact) time.Time) (*models.Fact, error) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var found []*models.Fact
	for _, candidate := range tl.closed(exclude) {
		if edge(candidate).Equal(instant) {
			found = append(found, candidate)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0].Copy(), nil
	default:
		return nil, NewIntegrityError(instant, len(found))
	}
}

func (tl *MemoryTimeline) StrictlyDuring(_ context.Context, start, end time.Time, limit int) ([]*models.Fact, error) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var out []*models.Fact
	for _, candidate := range tl.closed(uuid.Nil) {
		if candidate.Start.After(start) && candidate.End.Before(end) {
			out = append(out, candidate.Copy())
		}
	}
	if limit > 0 && len(out) > limit {
		return nil, ErrTooManyConflicts
	}
	sortByStart(out)
	return out, nil
}

// Running returns the latest live fact without an end, other than fact
func (tl *MemoryTimeline) Running(_ context.Context, fact *models.Fact) (*models.Fact, error) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	var best *models.Fact
	for _, candidate := range tl.facts {
		if candidate.Deleted || candidate.Start == nil || candidate.End != nil {
			continue
		}
		if fact.ID != uuid.Nil && candidate.ID == fact.ID {
			continue
		}
		if best == nil || candidate.Start.After(*best.Start) {
			best = candidate
		}
	}
	return copyOrNil(best), nil
}

func copyOrNil(fact *models.Fact) *models.Fact {
	if fact == nil {
		return nil
	}
	return fact.Copy()
}

package timelog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeline"
	"github.com/google/uuid"
)

// MemoryStore keeps timelines in process. The CLI uses it for dry runs.
type MemoryStore struct {
	mu        sync.Mutex
	timelines map[string]*timeline.MemoryTimeline
}

var (
	_ database.FactRepositoryInterface    = (*MemoryStore)(nil)
	_ database.CatalogRepositoryInterface = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{timelines: make(map[string]*timeline.MemoryTimeline)}
}

// Memory returns the in-process timeline for timelineID, creating it if needed
func (m *MemoryStore) Memory(timelineID string) *timeline.MemoryTimeline {
	m.mu.Lock()
	defer m.mu.Unlock()

	tl, ok := m.timelines[timelineID]
	if !ok {
		tl = timeline.NewMemoryTimeline()
		m.timelines[timelineID] = tl
	}
	return tl
}

func (m *MemoryStore) Timeline(timelineID string) timeline.Timeline {
	return m.Memory(timelineID)
}

func (m *MemoryStore) GetByID(_ context.Context, timelineID string, id uuid.UUID) (*models.Fact, error) {
	fact, ok := m.Memory(timelineID).Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrFactNotFound, id)
	}
	return fact, nil
}

func (m *MemoryStore) List(_ context.Context, timelineID string, filter database.ListFilter) ([]*models.Fact, error) {
	tl := m.Memory(timelineID)
	all := tl.Facts()
	if filter.IncludeDeleted {
		all = tl.All()
	}

	var out []*models.Fact
	for _, fact := range all {
		if filter.Start != nil && fact.End != nil && !fact.End.After(*filter.Start) {
			continue
		}
		if filter.End != nil && fact.Start != nil && !fact.Start.Before(*filter.End) {
			continue
		}
		out = append(out, fact)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveResolution(_ context.Context, timelineID string, fact *models.Fact, edits []*models.Fact) (*models.Fact, error) {
	return m.Memory(timelineID).Apply(fact, edits), nil
}

// ListActivities returns the activities used by live facts, ordered by name then category
func (m *MemoryStore) ListActivities(_ context.Context, timelineID string) ([]*models.Activity, error) {
	seen := make(map[[2]string]bool)
	var out []*models.Activity
	for _, fact := range m.Memory(timelineID).Facts() {
		key := [2]string{fact.ActivityName(), fact.CategoryName()}
		if fact.Activity == nil || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.NewActivity(key[0], key[1]))
	}
	slices.SortFunc(out, func(a, b *models.Activity) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(categoryName(a), categoryName(b))
	})
	return out, nil
}

// ListTags returns the tags used by live facts, ordered by name
func (m *MemoryStore) ListTags(_ context.Context, timelineID string) ([]*models.Tag, error) {
	seen := make(map[string]bool)
	var out []*models.Tag
	for _, fact := range m.Memory(timelineID).Facts() {
		for _, name := range fact.TagNames() {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, &models.Tag{Name: name})
		}
	}
	slices.SortFunc(out, func(a, b *models.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func categoryName(a *models.Activity) string {
	if a.Category == nil {
		return ""
	}
	return a.Category.Name
}

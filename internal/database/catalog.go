package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ensureCategory returns the ID of the named category, creating it if needed
func ensureCategory(ctx context.Context, q querier, timelineID, name string) (uuid.NullUUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.NullUUID{}, nil
	}

	query := `
		INSERT INTO categories (id, timeline_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (timeline_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	var id uuid.UUID
	if err := q.QueryRowContext(ctx, query, uuid.New(), timelineID, name).Scan(&id); err != nil {
		return uuid.NullUUID{}, fmt.Errorf("failed to ensure category %q: %w", name, err)
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

// ensureActivity returns the ID of the activity in its category, creating both if needed
func ensureActivity(ctx context.Context, q querier, timelineID string, activity *models.Activity) (uuid.UUID, error) {
	if activity == nil || strings.TrimSpace(activity.Name) == "" {
		return uuid.Nil, models.ErrMissingActivityName
	}

	categoryID, err := ensureCategory(ctx, q, timelineID, activity.CategoryName())
	if err != nil {
		return uuid.Nil, err
	}

	query := `
		INSERT INTO activities (id, timeline_id, name, category_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (timeline_id, name, category_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	var id uuid.UUID
	if err := q.QueryRowContext(ctx, query, uuid.New(), timelineID, strings.TrimSpace(activity.Name), categoryID).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to ensure activity %q: %w", activity.Name, err)
	}
	return id, nil
}

// ensureTags returns the IDs of the named tags, creating missing ones
func ensureTags(ctx context.Context, q querier, timelineID string, names []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(names))
	query := `
		INSERT INTO tags (id, timeline_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (timeline_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	for _, name := range names {
		var id uuid.UUID
		if err := q.QueryRowContext(ctx, query, uuid.New(), timelineID, name).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to ensure tag %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// replaceFactTags sets the tags of a fact to exactly names
func replaceFactTags(ctx context.Context, q querier, timelineID string, factID uuid.UUID, names []string) error {
	tagIDs, err := ensureTags(ctx, q, timelineID, names)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM fact_tags WHERE fact_id = $1`, factID); err != nil {
		return fmt.Errorf("failed to clear fact tags: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tagIDs))
	for _, id := range tagIDs {
		ids = append(ids, id.String())
	}
	query := `
		INSERT INTO fact_tags (fact_id, tag_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, factID, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to link fact tags: %w", err)
	}
	return nil
}

// CatalogRepository lists the activities and tags of a timeline
type CatalogRepository struct {
	db *DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListActivities returns the visible activities of a timeline ordered by name
func (r *CatalogRepository) ListActivities(ctx context.Context, timelineID string) ([]*models.Activity, error) {
	query := `
		SELECT a.id, a.name, a.deleted, a.hidden, c.id, c.name, c.deleted, c.hidden
		FROM activities a
		LEFT JOIN categories c ON c.id = a.category_id
		WHERE a.timeline_id = $1 AND NOT a.deleted AND NOT a.hidden
		ORDER BY a.name, c.name NULLS FIRST
	`
	rows, err := r.db.QueryContext(ctx, query, timelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		activity := &models.Activity{}
		var category struct {
			id      uuid.NullUUID
			name    *string
			deleted *bool
			hidden  *bool
		}
		if err := rows.Scan(&activity.ID, &activity.Name, &activity.Deleted, &activity.Hidden,
			&category.id, &category.name, &category.deleted, &category.hidden); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if category.id.Valid {
			activity.Category = &models.Category{ID: category.id.UUID, Name: *category.name}
			activity.Category.Deleted = category.deleted != nil && *category.deleted
			activity.Category.Hidden = category.hidden != nil && *category.hidden
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return activities, nil
}

// ListTags returns the visible tags of a timeline ordered by name
func (r *CatalogRepository) ListTags(ctx context.Context, timelineID string) ([]*models.Tag, error) {
	query := `
		SELECT id, name, deleted, hidden
		FROM tags
		WHERE timeline_id = $1 AND NOT deleted AND NOT hidden
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, timelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag := &models.Tag{}
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Deleted, &tag.Hidden); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeline"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const factColumns = `
	f.id, f.start_time, f.end_time, f.description, f.deleted, f.split_from,
	a.id, a.name, a.deleted, a.hidden,
	c.id, c.name, c.deleted, c.hidden
`

const factFrom = `
	FROM facts f
	JOIN activities a ON a.id = f.activity_id
	LEFT JOIN categories c ON c.id = a.category_id
`

// FactRepository handles fact database operations
type FactRepository struct {
	db *DB
}

// NewFactRepository creates a new fact repository
func NewFactRepository(db *DB) *FactRepository {
	return &FactRepository{db: db}
}

// Timeline returns the timeline queries for one timeline
func (r *FactRepository) Timeline(timelineID string) timeline.Timeline {
	return &FactTimeline{db: r.db, timelineID: timelineID}
}

// GetByID retrieves a fact, deleted or not
func (r *FactRepository) GetByID(ctx context.Context, timelineID string, id uuid.UUID) (*models.Fact, error) {
	query := `SELECT ` + factColumns + factFrom + `WHERE f.timeline_id = $1 AND f.id = $2`

	fact, err := scanFact(r.db.QueryRowContext(ctx, query, timelineID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFactNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fact: %w", err)
	}

	if err := loadTags(ctx, r.db, []*models.Fact{fact}); err != nil {
		return nil, err
	}
	return fact, nil
}

// ListFilter narrows List to facts overlapping [Start, End]
type ListFilter struct {
	Start          *time.Time
	End            *time.Time
	IncludeDeleted bool
	Limit          int
}

// List retrieves the facts of a timeline ordered by start
func (r *FactRepository) List(ctx context.Context, timelineID string, filter ListFilter) ([]*models.Fact, error) {
	query := `SELECT ` + factColumns + factFrom + `WHERE f.timeline_id = $1`
	args := []any{timelineID}
	argIndex := 2

	if !filter.IncludeDeleted {
		query += " AND NOT f.deleted"
	}
	if filter.Start != nil {
		query += fmt.Sprintf(" AND (f.end_time IS NULL OR f.end_time > $%d)", argIndex)
		args = append(args, *filter.Start)
		argIndex++
	}
	if filter.End != nil {
		query += fmt.Sprintf(" AND (f.start_time IS NULL OR f.start_time < $%d)", argIndex)
		args = append(args, *filter.End)
		argIndex++
	}

	query += " ORDER BY f.start_time ASC NULLS FIRST, f.id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	facts, err := queryFacts(ctx, r.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	return facts, nil
}

// SaveResolution stores fact and the edits computed for it in one
// transaction. Edited facts are updated only in the fields named by their
// dirty reasons; split fragments without ID are inserted. The stored fact
// is returned.
func (r *FactRepository) SaveResolution(ctx context.Context, timelineID string, fact *models.Fact, edits []*models.Fact) (*models.Fact, error) {
	saved := fact.Copy()

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, edit := range edits {
			if edit.IsNew() {
				if _, err := insertFact(ctx, tx, timelineID, edit); err != nil {
					return fmt.Errorf("failed to insert split fact: %w", err)
				}
				continue
			}
			if err := updateDirty(ctx, tx, timelineID, edit); err != nil {
				return err
			}
		}

		if saved.IsNew() {
			id, err := insertFact(ctx, tx, timelineID, saved)
			if err != nil {
				return fmt.Errorf("failed to insert fact: %w", err)
			}
			saved.ID = id
			return nil
		}
		return replaceFact(ctx, tx, timelineID, saved)
	})
	if err != nil {
		return nil, err
	}

	saved.ClearDirty()
	return saved, nil
}

func insertFact(ctx context.Context, q querier, timelineID string, fact *models.Fact) (uuid.UUID, error) {
	activityID, err := ensureActivity(ctx, q, timelineID, fact.Activity)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO facts (id, timeline_id, activity_id, start_time, end_time, description, deleted, split_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	if _, err := q.ExecContext(ctx, query,
		id,
		timelineID,
		activityID,
		nullTime(fact.Start),
		nullTime(fact.End),
		fact.Description,
		fact.Deleted,
		nullUUID(fact.SplitFrom),
	); err != nil {
		return uuid.Nil, err
	}

	if err := replaceFactTags(ctx, q, timelineID, id, fact.TagNames()); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// replaceFact overwrites every field of an existing fact
func replaceFact(ctx context.Context, q querier, timelineID string, fact *models.Fact) error {
	activityID, err := ensureActivity(ctx, q, timelineID, fact.Activity)
	if err != nil {
		return err
	}

	query := `
		UPDATE facts
		SET activity_id = $1, start_time = $2, end_time = $3, description = $4, deleted = $5, updated_at = NOW()
		WHERE id = $6 AND timeline_id = $7
	`
	result, err := q.ExecContext(ctx, query,
		activityID,
		nullTime(fact.Start),
		nullTime(fact.End),
		fact.Description,
		fact.Deleted,
		fact.ID,
		timelineID,
	)
	if err != nil {
		return fmt.Errorf("failed to update fact: %w", err)
	}
	if err := expectOneRow(result, fact.ID); err != nil {
		return err
	}
	return replaceFactTags(ctx, q, timelineID, fact.ID, fact.TagNames())
}

// updateDirty writes only the fields conflict resolution changed
func updateDirty(ctx context.Context, q querier, timelineID string, fact *models.Fact) error {
	set, args := dirtyAssignments(fact)
	if len(set) == 0 {
		return nil
	}

	args = append(args, fact.ID, timelineID)
	query := fmt.Sprintf("UPDATE facts SET %s, updated_at = NOW() WHERE id = $%d AND timeline_id = $%d",
		strings.Join(set, ", "), len(args)-1, len(args))

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update fact %s: %w", fact.ID, err)
	}
	return expectOneRow(result, fact.ID)
}

// dirtyAssignments maps dirty reasons to SET clauses and their arguments
func dirtyAssignments(fact *models.Fact) ([]string, []any) {
	var set []string
	var args []any
	for _, reason := range fact.DirtyReasons() {
		switch reason {
		case models.DirtyStart:
			args = append(args, nullTime(fact.Start))
			set = append(set, fmt.Sprintf("start_time = $%d", len(args)))
		case models.DirtyEnd:
			args = append(args, nullTime(fact.End))
			set = append(set, fmt.Sprintf("end_time = $%d", len(args)))
		case models.DirtyDeleted:
			args = append(args, fact.Deleted)
			set = append(set, fmt.Sprintf("deleted = $%d", len(args)))
		}
	}
	if fact.SplitFrom != nil && len(set) > 0 {
		args = append(args, *fact.SplitFrom)
		set = append(set, fmt.Sprintf("split_from = $%d", len(args)))
	}
	return set, args
}

func expectOneRow(result sql.Result, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrFactNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*models.Fact, error) {
	fact := &models.Fact{Activity: &models.Activity{}}
	var start, end sql.NullTime
	var splitFrom uuid.NullUUID
	var categoryID uuid.NullUUID
	var categoryName sql.NullString
	var categoryDeleted, categoryHidden sql.NullBool

	err := row.Scan(
		&fact.ID,
		&start,
		&end,
		&fact.Description,
		&fact.Deleted,
		&splitFrom,
		&fact.Activity.ID,
		&fact.Activity.Name,
		&fact.Activity.Deleted,
		&fact.Activity.Hidden,
		&categoryID,
		&categoryName,
		&categoryDeleted,
		&categoryHidden,
	)
	if err != nil {
		return nil, err
	}

	if start.Valid {
		fact.Start = &start.Time
	}
	if end.Valid {
		fact.End = &end.Time
	}
	if splitFrom.Valid {
		fact.SplitFrom = &splitFrom.UUID
	}
	if categoryID.Valid {
		fact.Activity.Category = &models.Category{
			ID:      categoryID.UUID,
			Name:    categoryName.String,
			Deleted: categoryDeleted.Bool,
			Hidden:  categoryHidden.Bool,
		}
	}
	return fact, nil
}

func queryFacts(ctx context.Context, q querier, query string, args ...any) ([]*models.Fact, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []*models.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts: %w", err)
	}

	if err := loadTags(ctx, q, facts); err != nil {
		return nil, err
	}
	return facts, nil
}

// loadTags fills the tags of facts with a single query
func loadTags(ctx context.Context, q querier, facts []*models.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*models.Fact, len(facts))
	ids := make([]string, 0, len(facts))
	for _, fact := range facts {
		byID[fact.ID] = fact
		ids = append(ids, fact.ID.String())
	}

	query := `
		SELECT ft.fact_id, t.id, t.name, t.deleted, t.hidden
		FROM fact_tags ft
		JOIN tags t ON t.id = ft.tag_id
		WHERE ft.fact_id = ANY($1::uuid[])
		ORDER BY t.name
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var factID uuid.UUID
		var tag models.Tag
		if err := rows.Scan(&factID, &tag.ID, &tag.Name, &tag.Deleted, &tag.Hidden); err != nil {
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		if fact, ok := byID[factID]; ok {
			fact.Tags = append(fact.Tags, tag)
		}
	}
	return rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

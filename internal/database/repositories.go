package database

import (
	"context"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeline"
	"github.com/google/uuid"
)

// FactRepositoryInterface defines the fact operations the service layer uses.
// This interface enables better testability by allowing mock implementations
type FactRepositoryInterface interface {
	Timeline(timelineID string) timeline.Timeline
	GetByID(ctx context.Context, timelineID string, id uuid.UUID) (*models.Fact, error)
	List(ctx context.Context, timelineID string, filter ListFilter) ([]*models.Fact, error)
	SaveResolution(ctx context.Context, timelineID string, fact *models.Fact, edits []*models.Fact) (*models.Fact, error)
}

// CatalogRepositoryInterface defines the interface for activity and tag listings
type CatalogRepositoryInterface interface {
	ListActivities(ctx context.Context, timelineID string) ([]*models.Activity, error)
	ListTags(ctx context.Context, timelineID string) ([]*models.Tag, error)
}

// Ensure concrete types implement the interfaces
var (
	_ FactRepositoryInterface    = (*FactRepository)(nil)
	_ CatalogRepositoryInterface = (*CatalogRepository)(nil)
)

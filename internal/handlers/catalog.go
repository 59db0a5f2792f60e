package handlers

import (
	"net/http"

	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/request"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CatalogHandler lists the activities and tags known to a timeline
type CatalogHandler struct {
	repo   database.CatalogRepositoryInterface
	logger *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(repo database.CatalogRepositoryInterface, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{repo: repo, logger: logger}
}

// RegisterRoutes registers catalog routes on a router already carrying the /api/v1 prefix
func (h *CatalogHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/activities", h.ListActivities).Methods("GET")
	r.HandleFunc("/tags", h.ListTags).Methods("GET")
}

func (h *CatalogHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	timelineID := request.TimelineFromContext(r)
	activities, err := h.repo.ListActivities(r.Context(), timelineID)
	if err != nil {
		h.logger.Error("failed_to_list_activities", zap.String("timeline_id", timelineID), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve activities")
		return
	}
	if activities == nil {
		activities = []*models.Activity{}
	}
	respondJSON(w, http.StatusOK, activities)
}

func (h *CatalogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	timelineID := request.TimelineFromContext(r)
	tags, err := h.repo.ListTags(r.Context(), timelineID)
	if err != nil {
		h.logger.Error("failed_to_list_tags", zap.String("timeline_id", timelineID), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve tags")
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	respondJSON(w, http.StatusOK, tags)
}

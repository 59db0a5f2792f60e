package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/benvon/smart-timelog/internal/queue"
	"github.com/benvon/smart-timelog/internal/request"
	"github.com/benvon/smart-timelog/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MaxImportLines is the maximum number of factoids in one import job
const MaxImportLines = 10000

// JobEnqueuer is the part of the job queue the import endpoint uses
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// ImportHandler queues batch imports for the worker
type ImportHandler struct {
	queue  JobEnqueuer
	logger *zap.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(jobQueue JobEnqueuer, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{queue: jobQueue, logger: logger}
}

// RegisterRoutes registers import routes on a router already carrying the /api/v1 prefix
func (h *ImportHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/imports", h.CreateImport).Methods("POST")
}

// ImportRequest carries factoids, one per line, all parsed with the same hint
type ImportRequest struct {
	Lines    []string `json:"lines" validate:"required,min=1,max=10000,dive,max=2000"`
	Hint     string   `json:"hint,omitempty" validate:"omitempty,time_hint"`
	Timezone string   `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

// ImportResponse identifies the queued job
type ImportResponse struct {
	JobID uuid.UUID `json:"job_id"`
	Lines int       `json:"lines"`
}

// CreateImport validates the batch and enqueues an import job
func (h *ImportHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	timelineID := request.TimelineFromContext(r)
	if timelineID == "" {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No timeline for this request")
		return
	}

	var req ImportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validationMessage(err))
		return
	}

	lines := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, validation.SanitizeText(line))
	}
	if strings.TrimSpace(strings.Join(lines, "")) == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Import contains no factoids")
		return
	}

	job := queue.NewImportJob(timelineID, lines, hintOrDefault(req.Hint), req.Timezone)
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("failed_to_enqueue_import",
			zap.String("timeline_id", timelineID),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Import could not be queued")
		return
	}

	h.logger.Info("import_enqueued",
		zap.String("timeline_id", timelineID),
		zap.String("job_id", job.ID.String()),
		zap.Int("lines", len(lines)),
	)
	respondJSON(w, http.StatusAccepted, ImportResponse{JobID: job.ID, Lines: len(lines)})
}

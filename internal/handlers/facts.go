package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/request"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/benvon/smart-timelog/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// DefaultHint applies when a request names no hint: a start, optionally followed by an end
	DefaultHint = factoid.HintStart
	// MaxFactoidLength is the maximum length of one factoid
	MaxFactoidLength = 2000
	// DefaultListLimit is the default number of facts returned by a listing
	DefaultListLimit = 500
	// MaxListLimit is the maximum number of facts returned by a listing
	MaxListLimit = 5000
)

// FactService is the part of the timelog service the fact endpoints use
type FactService interface {
	Parse(raw string, req timelog.ParseRequest) (*factoid.Result, error)
	Add(ctx context.Context, timelineID, raw string, req timelog.ParseRequest) (*timelog.InsertResult, error)
	List(ctx context.Context, timelineID string, filter database.ListFilter) ([]*models.Fact, error)
	Get(ctx context.Context, timelineID string, id uuid.UUID) (*models.Fact, error)
}

var _ FactService = (*timelog.Service)(nil)

// FactHandler handles factoid parsing and fact storage
type FactHandler struct {
	service FactService
	logger  *zap.Logger
}

// NewFactHandler creates a new fact handler
func NewFactHandler(service FactService, logger *zap.Logger) *FactHandler {
	return &FactHandler{service: service, logger: logger}
}

// RegisterRoutes registers fact routes on a router already carrying the /api/v1 prefix
func (h *FactHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/factoids/parse", h.ParseFactoid).Methods("POST")
	r.HandleFunc("/facts", h.CreateFact).Methods("POST")
	r.HandleFunc("/facts", h.ListFacts).Methods("GET")
	r.HandleFunc("/facts/{id}", h.GetFact).Methods("GET")
}

// ParseFactoidRequest asks for a dry parse of one factoid
type ParseFactoidRequest struct {
	Factoid  string `json:"factoid" validate:"required,max=2000"`
	Hint     string `json:"hint,omitempty" validate:"omitempty,time_hint"`
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Lenient  bool   `json:"lenient,omitempty"`
}

// ParseFactoidResponse reports the parse outcome. A failed parse is still a 200:
// the error kind is the answer.
type ParseFactoidResponse struct {
	Valid      bool            `json:"valid"`
	Result     *factoid.Result `json:"result,omitempty"`
	Serialized string          `json:"serialized,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// CreateFactRequest adds one factoid to the caller's timeline
type CreateFactRequest struct {
	Factoid  string `json:"factoid" validate:"required,max=2000"`
	Hint     string `json:"hint,omitempty" validate:"omitempty,time_hint"`
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

// ListFactsResponse is a page of facts
type ListFactsResponse struct {
	Facts []*models.Fact `json:"facts"`
	Count int            `json:"count"`
	Limit int            `json:"limit"`
}

// ParseFactoid parses a factoid without storing it
func (h *FactHandler) ParseFactoid(w http.ResponseWriter, r *http.Request) {
	var req ParseFactoidRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validationMessage(err))
		return
	}

	result, err := h.service.Parse(validation.SanitizeText(req.Factoid), timelog.ParseRequest{
		Hint:     hintOrDefault(req.Hint),
		Timezone: req.Timezone,
		Lenient:  req.Lenient,
	})

	resp := ParseFactoidResponse{Valid: err == nil, Result: result}
	if err != nil {
		kind, ok := factoid.KindOf(err)
		if !ok {
			respondServiceError(w, err)
			return
		}
		resp.ErrorKind = string(kind)
		resp.Error = err.Error()
	} else if !result.Deferred() {
		resp.Serialized = result.Fact().SerializedString()
	}

	respondJSON(w, http.StatusOK, resp)
}

// CreateFact parses a factoid and inserts it, editing the facts it overlaps
func (h *FactHandler) CreateFact(w http.ResponseWriter, r *http.Request) {
	timelineID := request.TimelineFromContext(r)
	if timelineID == "" {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No timeline for this request")
		return
	}

	var req CreateFactRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validationMessage(err))
		return
	}

	result, err := h.service.Add(r.Context(), timelineID, validation.SanitizeText(req.Factoid), timelog.ParseRequest{
		Hint:     hintOrDefault(req.Hint),
		Timezone: req.Timezone,
	})
	if err != nil {
		status, _ := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed_to_add_fact",
				zap.String("timeline_id", timelineID),
				zap.Error(err),
			)
		}
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// ListFacts lists the facts overlapping the optional start/end window
func (h *FactHandler) ListFacts(w http.ResponseWriter, r *http.Request) {
	timelineID := request.TimelineFromContext(r)
	if timelineID == "" {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No timeline for this request")
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	facts, err := h.service.List(r.Context(), timelineID, filter)
	if err != nil {
		h.logger.Error("failed_to_list_facts",
			zap.String("timeline_id", timelineID),
			zap.Error(err),
		)
		respondServiceError(w, err)
		return
	}
	if facts == nil {
		facts = []*models.Fact{}
	}

	respondJSON(w, http.StatusOK, ListFactsResponse{Facts: facts, Count: len(facts), Limit: filter.Limit})
}

// GetFact returns one fact of the caller's timeline
func (h *FactHandler) GetFact(w http.ResponseWriter, r *http.Request) {
	timelineID := request.TimelineFromContext(r)
	if timelineID == "" {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "No timeline for this request")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid fact ID")
		return
	}

	fact, err := h.service.Get(r.Context(), timelineID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, fact)
}

func hintOrDefault(name string) factoid.TimeHint {
	if name == "" {
		return DefaultHint
	}
	hint, err := factoid.ParseTimeHint(name)
	if err != nil {
		return DefaultHint
	}
	return hint
}

// parseListFilter reads start, end, include_deleted and limit from the query string
func parseListFilter(r *http.Request) (database.ListFilter, error) {
	q := r.URL.Query()
	filter := database.ListFilter{Limit: DefaultListLimit}

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"start", &filter.Start},
		{"end", &filter.End},
	} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		t, err := parseQueryTime(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid %s: %q (use RFC 3339 or YYYY-MM-DD)", bound.name, raw)
		}
		*bound.dst = &t
	}
	if filter.Start != nil && filter.End != nil && !filter.End.After(*filter.Start) {
		return filter, fmt.Errorf("end must be after start")
	}

	if raw := q.Get("include_deleted"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid include_deleted: %q", raw)
		}
		filter.IncludeDeleted = include
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit: %q", raw)
		}
		filter.Limit = min(limit, MaxListLimit)
	}

	return filter, nil
}

func parseQueryTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

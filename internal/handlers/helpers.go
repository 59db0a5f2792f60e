package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/benvon/smart-timelog/internal/lock"
	"github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeline"
	"github.com/go-playground/validator/v10"
)

// MaxErrorMessageLength bounds messages echoed to clients
const MaxErrorMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response with a truncated message
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   logger.SanitizeString(message, MaxErrorMessageLength),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// decodeJSON reads one JSON object from the request body, rejecting unknown fields
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// validationMessage turns validator errors into one readable line
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "time_hint":
			msgs = append(msgs, fmt.Sprintf("%s must be one of none, start, end, both, after, then, still", fe.Field()))
		case "timezone":
			msgs = append(msgs, fmt.Sprintf("%s is not a known timezone", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// errorStatus maps service errors onto HTTP statuses and error types
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrFactNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, lock.ErrLockNotAcquired):
		return http.StatusLocked, "Locked"
	case errors.Is(err, timeline.ErrIntegrity),
		timeline.IsBoundaryError(err),
		errors.Is(err, timeline.ErrTooManyConflicts):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, models.ErrInvalidSpan),
		errors.Is(err, models.ErrFactTooShort),
		errors.Is(err, models.ErrMissingActivityName):
		return http.StatusUnprocessableEntity, "Invalid Fact"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Service Unavailable"
	}
	if _, ok := factoid.KindOf(err); ok {
		return http.StatusBadRequest, "Parse Error"
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// respondServiceError writes the envelope for err. Internal errors are not echoed.
func respondServiceError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		message = "The request could not be completed"
	}
	respondJSONError(w, status, errorType, message)
}

package queue

import (
	"errors"
	"time"

	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeImportFactoids parses and inserts a batch of factoids into one timeline
	JobTypeImportFactoids JobType = "import_factoids"
)

// DefaultMaxRetries bounds how often a job is re-enqueued after an infrastructure failure
const DefaultMaxRetries = 3

var (
	// ErrEmptyImport is returned for an import job without lines
	ErrEmptyImport = errors.New("import job has no lines")
	// ErrMissingTimeline is returned for a job without a timeline
	ErrMissingTimeline = errors.New("job has no timeline")
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID        `json:"id"`
	Type       JobType          `json:"type"`
	TimelineID string           `json:"timeline_id"`
	Lines      []string         `json:"lines"`
	Hint       factoid.TimeHint `json:"hint"`
	Timezone   string           `json:"timezone,omitempty"`
	Offset     int              `json:"offset"`               // Lines before Offset were handled by an earlier attempt
	NotBefore  *time.Time       `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time       `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	CreatedAt  time.Time        `json:"created_at"`
	RetryCount int              `json:"retry_count"`
	MaxRetries int              `json:"max_retries"`
}

// NewImportJob creates a job importing lines into a timeline. Relative and
// natural-language times in the lines resolve against the job's CreatedAt.
func NewImportJob(timelineID string, lines []string, hint factoid.TimeHint, timezone string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeImportFactoids,
		TimelineID: timelineID,
		Lines:      lines,
		Hint:       hint,
		Timezone:   timezone,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate checks that the job can be processed at all
func (j *Job) Validate() error {
	if j.TimelineID == "" {
		return ErrMissingTimeline
	}
	if j.Type == JobTypeImportFactoids && len(j.Lines) == 0 {
		return ErrEmptyImport
	}
	return nil
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry returns a copy of the job scheduled after delay, resuming at offset
func (j *Job) Retry(offset int, delay time.Duration) *Job {
	retry := *j
	notBefore := time.Now().Add(delay)
	retry.NotBefore = &notBefore
	retry.Offset = offset
	retry.RetryCount++
	retry.Lines = append([]string(nil), j.Lines...)
	return &retry
}

// Backoff returns the delay before the next attempt: 2^RetryCount seconds
func (j *Job) Backoff() time.Duration {
	return time.Duration(1<<min(j.RetryCount, 10)) * time.Second
}

// Package workers processes queued jobs.
package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/queue"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"go.uber.org/zap"
)

// ErrUnknownJobType is returned for jobs this worker cannot handle
var ErrUnknownJobType = errors.New("unknown job type")

// FactInserter is the part of the timelog service the importer uses
type FactInserter interface {
	Parser(req timelog.ParseRequest) (*factoid.Parser, error)
	Insert(ctx context.Context, timelineID string, fact *models.Fact) (*timelog.InsertResult, error)
}

var _ FactInserter = (*timelog.Service)(nil)

// LineError is a rejected import line
type LineError struct {
	Line    int    `json:"line"`
	Factoid string `json:"factoid"`
	Error   string `json:"error"`
}

// ImportReport summarizes one import attempt. Offset is the index of the
// first line not yet handled.
type ImportReport struct {
	Inserted int         `json:"inserted"`
	Skipped  int         `json:"skipped"`
	Rejected []LineError `json:"rejected,omitempty"`
	Offset   int         `json:"offset"`
}

// Importer processes import jobs
type Importer struct {
	service  FactInserter
	jobQueue queue.JobQueue // For re-enqueueing jobs with delays
	logger   *zap.Logger
}

// NewImporter creates a new importer
func NewImporter(service FactInserter, jobQueue queue.JobQueue, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{service: service, jobQueue: jobQueue, logger: logger}
}

// Import parses and inserts the job's lines in order, starting at its
// Offset. Rejected lines are reported and skipped. An infrastructure
// failure stops the import; the report's Offset says where to resume.
func (im *Importer) Import(ctx context.Context, job *queue.Job) (*ImportReport, error) {
	parser, err := im.service.Parser(timelog.ParseRequest{
		Hint:           job.Hint,
		Timezone:       job.Timezone,
		SkipResolution: true,
	})
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Offset: job.Offset}
	for i := job.Offset; i < len(job.Lines); i++ {
		line := job.Lines[i]
		if strings.TrimSpace(line) == "" {
			report.Skipped++
			report.Offset = i + 1
			continue
		}

		err := im.importLine(ctx, parser, job, line)
		switch {
		case err == nil:
			report.Inserted++
		case timelog.IsRejection(err):
			report.Rejected = append(report.Rejected, LineError{
				Line:    i + 1,
				Factoid: logger.SanitizeFactoid(line),
				Error:   err.Error(),
			})
		default:
			return report, fmt.Errorf("line %d: %w", i+1, err)
		}
		report.Offset = i + 1
	}
	return report, nil
}

func (im *Importer) importLine(ctx context.Context, parser *factoid.Parser, job *queue.Job, line string) error {
	result, err := parser.Parse(line, job.Hint)
	if err != nil {
		return err
	}
	if err := parser.ResolveDeferred(result, job.CreatedAt); err != nil {
		return err
	}
	_, err = im.service.Insert(ctx, job.TimelineID, result.Fact())
	return err
}

// ProcessJob handles one message and settles it: acked on success, re-enqueued
// with backoff after an infrastructure failure, dead-lettered otherwise
func (im *Importer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if !job.ShouldProcess() {
		if job.IsExpired() {
			return msg.Nack(false)
		}
		return msg.Nack(true)
	}

	if job.Type != queue.JobTypeImportFactoids {
		if nackErr := msg.Nack(false); nackErr != nil {
			im.logger.Warn("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}

	report, err := im.Import(ctx, job)
	if err != nil {
		return im.handleJobError(ctx, msg, job, report, err)
	}

	im.logger.Info("import_job_processed",
		zap.String("job_id", job.ID.String()),
		zap.String("timeline_id", logger.SanitizeTimelineID(job.TimelineID)),
		zap.Int("inserted", report.Inserted),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("skipped", report.Skipped),
	)
	for _, rejected := range report.Rejected {
		im.logger.Warn("import_line_rejected",
			zap.String("job_id", job.ID.String()),
			zap.Int("line", rejected.Line),
			zap.String("factoid", rejected.Factoid),
			zap.String("error", logger.SanitizeString(rejected.Error, logger.MaxErrorMessageLength)),
		)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// handleJobError re-enqueues the rest of the job when retries remain
func (im *Importer) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, report *ImportReport, err error) error {
	if report == nil || !job.CanRetry() || im.jobQueue == nil {
		im.logger.Error("import_job_failed",
			zap.String("job_id", job.ID.String()),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			im.logger.Warn("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("import job %s failed: %w", job.ID, err)
	}

	retry := job.Retry(report.Offset, job.Backoff())
	if enqueueErr := im.jobQueue.Enqueue(ctx, retry); enqueueErr != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			im.logger.Warn("job_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("failed to re-enqueue job %s: %w", job.ID, enqueueErr)
	}

	im.logger.Warn("import_job_retrying",
		zap.String("job_id", job.ID.String()),
		zap.Int("offset", retry.Offset),
		zap.Int("retry_count", retry.RetryCount),
		zap.Time("not_before", *retry.NotBefore),
		zap.Error(err),
	)
	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job after re-enqueue: %w", ackErr)
	}
	return nil
}

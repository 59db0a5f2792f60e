// Package timelog ties the factoid parser, the conflict resolver, the
// timeline lock and the fact store together.
package timelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-timelog/internal/config"
	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/benvon/smart-timelog/internal/lock"
	"github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/telemetry"
	"github.com/benvon/smart-timelog/internal/timeexpr"
	"github.com/benvon/smart-timelog/internal/timeline"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ParseRequest carries the per-call parser inputs
type ParseRequest struct {
	Hint     factoid.TimeHint
	Timezone string
	Lenient  bool
	// SkipResolution leaves natural-language and relative times for ResolveDeferred
	SkipResolution bool
}

// InsertResult is a stored fact and the edits its insertion applied
type InsertResult struct {
	Fact      *models.Fact               `json:"fact"`
	Edits     []*models.Fact             `json:"edits"`
	Originals map[uuid.UUID]*models.Fact `json:"-"`
	Parsed    *factoid.Result            `json:"parsed,omitempty"`
}

// Service implements the timelog use cases
type Service struct {
	store         database.FactRepositoryInterface
	locker        lock.Locker
	settings      config.ParserSettings
	location      *time.Location
	fallback      timeexpr.Fallback
	now           func() time.Time
	conflictLimit int
	lockWait      time.Duration
	logger        *zap.Logger
	tracer        trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithLocker sets the timeline lock. Without one, an in-process lock is used.
func WithLocker(locker lock.Locker) Option {
	return func(s *Service) { s.locker = locker }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFallback replaces the natural-language time fallback
func WithFallback(fallback timeexpr.Fallback) Option {
	return func(s *Service) { s.fallback = fallback }
}

// WithLockWait bounds how long Insert waits for the timeline lock
func WithLockWait(d time.Duration) Option {
	return func(s *Service) { s.lockWait = d }
}

func WithConflictLimit(limit int) Option {
	return func(s *Service) { s.conflictLimit = limit }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = telemetry.Tracer(tp) }
}

// NewService creates a service over store. A nil settings value keeps the parser defaults.
func NewService(store database.FactRepositoryInterface, settings *config.ParserSettings, opts ...Option) (*Service, error) {
	s := &Service{
		store:         store,
		now:           time.Now,
		conflictLimit: timeline.DefaultConflictLimit,
		logger:        zap.NewNop(),
	}
	if settings != nil {
		s.settings = *settings
	}
	for _, opt := range opts {
		opt(s)
	}

	loc, err := s.settings.Location()
	if err != nil {
		return nil, err
	}
	s.location = loc
	if s.locker == nil {
		s.locker = lock.NewMemoryLocker()
	}
	if s.fallback == nil {
		s.fallback = timeexpr.NewNaturalFallback()
	}
	if s.tracer == nil {
		s.tracer = telemetry.Tracer(nil)
	}
	return s, nil
}

// Parser builds the factoid parser for req
func (s *Service) Parser(req ParseRequest) (*factoid.Parser, error) {
	loc := s.location
	if req.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(req.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", req.Timezone, err)
		}
	}

	return factoid.New(
		factoid.WithRangeSeparators(s.settings.RangeSeparators...),
		factoid.WithItemSeparators(s.settings.ItemSeparators...),
		factoid.WithTagStamps(s.settings.TagStamps...),
		factoid.WithLenient(req.Lenient),
		factoid.WithLocation(loc),
		factoid.WithNow(s.now),
		factoid.WithFallback(s.fallback),
		factoid.WithSkipResolution(req.SkipResolution),
	), nil
}

// Parse parses one factoid without touching any timeline
func (s *Service) Parse(raw string, req ParseRequest) (*factoid.Result, error) {
	parser, err := s.Parser(req)
	if err != nil {
		return nil, err
	}
	return parser.Parse(raw, req.Hint)
}

// Add parses raw and inserts the resulting fact into the timeline
func (s *Service) Add(ctx context.Context, timelineID, raw string, req ParseRequest) (result *InsertResult, err error) {
	ctx, span := s.tracer.Start(ctx, "timelog.Add", trace.WithAttributes(
		attribute.String("timeline.id", timelineID),
		attribute.String("factoid.hint", req.Hint.String()),
	))
	defer func() { telemetry.End(span, err) }()

	req.Lenient = false
	req.SkipResolution = false
	parsed, err := s.Parse(raw, req)
	if err != nil {
		s.logger.Debug("factoid_rejected",
			zap.String("timeline_id", timelineID),
			zap.String("factoid", logger.SanitizeFactoid(raw)),
			zap.Error(err),
		)
		return nil, err
	}

	result, err = s.Insert(ctx, timelineID, parsed.Fact())
	if err != nil {
		return nil, err
	}
	result.Parsed = parsed
	return result, nil
}

// Insert stores fact in the timeline, inferring its missing boundary and
// trimming, splitting or deleting the facts it overlaps. Writers of one
// timeline are serialized by the timeline lock.
func (s *Service) Insert(ctx context.Context, timelineID string, fact *models.Fact) (result *InsertResult, err error) {
	ctx, span := s.tracer.Start(ctx, "timelog.Insert", trace.WithAttributes(
		attribute.String("timeline.id", timelineID),
	))
	defer func() { telemetry.End(span, err) }()

	fact = fact.Copy()

	lockCtx := ctx
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}
	unlock, err := s.locker.Lock(lockCtx, timelineID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	resolver := timeline.NewResolver(s.store.Timeline(timelineID),
		timeline.WithLogger(s.logger),
		timeline.WithConflictLimit(s.conflictLimit),
	)
	resolution, err := resolver.InsertForcefully(ctx, fact)
	if errors.Is(err, timeline.ErrCannotInferEnd) {
		// nothing follows the start, so the fact keeps running
		resolution, err = resolver.InsertOngoing(ctx, fact)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conflicts: %w", err)
	}
	if err := fact.Validate(s.settings.FactMinDelta); err != nil {
		return nil, err
	}

	stored, err := s.store.SaveResolution(ctx, timelineID, fact, resolution.Edits)
	if err != nil {
		return nil, fmt.Errorf("failed to save fact: %w", err)
	}

	span.SetAttributes(
		attribute.String("fact.id", stored.ID.String()),
		attribute.Int("fact.edits", len(resolution.Edits)),
	)
	s.logger.Info("fact_inserted",
		zap.String("timeline_id", timelineID),
		zap.String("fact_id", stored.ID.String()),
		zap.String("activity", logger.SanitizeString(stored.ActivityName(), 100)),
		zap.Int("edits", len(resolution.Edits)),
		zap.Bool("ongoing", stored.End == nil),
	)

	return &InsertResult{Fact: stored, Edits: resolution.Edits, Originals: resolution.Originals}, nil
}

// List returns the facts of a timeline ordered by start
func (s *Service) List(ctx context.Context, timelineID string, filter database.ListFilter) (facts []*models.Fact, err error) {
	ctx, span := s.tracer.Start(ctx, "timelog.List", trace.WithAttributes(
		attribute.String("timeline.id", timelineID),
	))
	defer func() { telemetry.End(span, err) }()

	facts, err = s.store.List(ctx, timelineID, filter)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("fact.count", len(facts)))
	return facts, nil
}

// Get returns one fact
func (s *Service) Get(ctx context.Context, timelineID string, id uuid.UUID) (fact *models.Fact, err error) {
	ctx, span := s.tracer.Start(ctx, "timelog.Get", trace.WithAttributes(
		attribute.String("timeline.id", timelineID),
		attribute.String("fact.id", id.String()),
	))
	defer func() { telemetry.End(span, err) }()

	return s.store.GetByID(ctx, timelineID, id)
}

// MinDelta returns the minimum accepted fact duration
func (s *Service) MinDelta() time.Duration {
	return s.settings.FactMinDelta
}

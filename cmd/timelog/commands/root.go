// Package commands implements the timelog command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/smart-timelog/internal/config"
	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/benvon/smart-timelog/internal/lock"
	"github.com/benvon/smart-timelog/internal/logger"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/queue"
	"github.com/benvon/smart-timelog/internal/services/oidc"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/benvon/smart-timelog/internal/validation"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Backend is the store a command reads and writes
type Backend struct {
	Facts   database.FactRepositoryInterface
	Catalog database.CatalogRepositoryInterface
	Locker  lock.Locker
	Closers []func() error
}

// Close releases every connection the backend holds
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.Closers) - 1; i >= 0; i-- {
		errs = append(errs, b.Closers[i]())
	}
	return errors.Join(errs...)
}

// MemoryBackend keeps facts in process. Nothing outlives the command.
func MemoryBackend() *Backend {
	store := timelog.NewMemoryStore()
	return &Backend{Facts: store, Catalog: store, Locker: lock.NewMemoryLocker()}
}

// Env supplies configuration and connections. Tests swap in fakes.
type Env struct {
	LoadConfig  func() (*config.Config, error)
	NewLogger   func(debug bool) (*zap.Logger, error)
	OpenBackend func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error)
	OpenQueue   func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (queue.JobQueue, error)
	HTTPClient  func(ctx context.Context, cfg *config.Config) *http.Client
	InitSchema  func(ctx context.Context, cfg *config.Config) error
	Now         func() time.Time
}

// DefaultEnv reads the environment and connects to Postgres, Redis and RabbitMQ
func DefaultEnv() Env {
	return Env{
		LoadConfig:  config.LoadClient,
		NewLogger:   logger.NewDevelopmentLogger,
		OpenBackend: openDatabaseBackend,
		OpenQueue: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (queue.JobQueue, error) {
			if err := cfg.RequireQueue(); err != nil {
				return nil, err
			}
			return queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, 1, logger)
		},
		HTTPClient: func(ctx context.Context, cfg *config.Config) *http.Client {
			client := oidc.ClientConfig{
				ClientID:     cfg.OIDCClientID,
				ClientSecret: cfg.OIDCClientSecret,
				TokenURL:     cfg.OIDCTokenURL,
			}
			return client.HTTPClient(ctx)
		},
		InitSchema: initDatabaseSchema,
		Now:        time.Now,
	}
}

func openDatabaseBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required (use --dry-run to work without a database)")
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	backend := &Backend{
		Facts:   database.NewFactRepository(db),
		Catalog: database.NewCatalogRepository(db),
		Closers: []func() error{db.Close},
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	backend.Closers = append(backend.Closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to connect to redis for timeline locks: %w", err)
	}
	backend.Locker = lock.NewRedisLocker(client, cfg.LockTTL, logger)
	return backend, nil
}

// Options are the flags shared by every command
type Options struct {
	Timeline       string
	Hint           string
	Timezone       string
	Lenient        bool
	DryRun         bool
	DurationFormat string
	Debug          bool
}

type app struct {
	env    Env
	opts   Options
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the timelog command tree
func NewRootCmd(env Env) *cobra.Command {
	a := &app{env: env}

	cmd := &cobra.Command{
		Use:           "timelog",
		Short:         "Record and query time-tracking facts",
		Long:          "Parse factoids such as \"09:00 to 10:30 coding@work #go, parser\" and keep a timeline without overlaps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = logger.Sync(a.logger)
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.opts.Timeline, "timeline", "", "Timeline to use (defaults to DEFAULT_TIMELINE)")
	flags.StringVar(&a.opts.Hint, "hint", factoid.HintStart.String(), "Datetimes to expect: none, start, end, both, after, then or still")
	flags.StringVar(&a.opts.Timezone, "tz", "", "Timezone for times without an offset (defaults to LOCAL_TIMEZONE)")
	flags.BoolVar(&a.opts.Lenient, "lenient", false, "Report what could be parsed instead of failing")
	flags.BoolVar(&a.opts.DryRun, "dry-run", false, "Use an in-memory timeline; nothing is stored")
	flags.StringVar(&a.opts.DurationFormat, "duration-format", models.DeltaStyleHoursMinutes, "Duration style: %M, %H:%M, HHhMMm, or empty for pedantic")
	flags.BoolVar(&a.opts.Debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newParseCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newImportCmd(a),
		newActivitiesCmd(a),
		newTagsCmd(a),
		newInitCmd(a),
	)
	return cmd
}

func (a *app) setup() error {
	cfg, err := a.env.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	if a.opts.Timeline == "" {
		a.opts.Timeline = cfg.DefaultTimeline
	}
	if err := validation.ValidateTimelineID(a.opts.Timeline); err != nil {
		return fmt.Errorf("invalid --timeline: %w", err)
	}
	if _, err := factoid.ParseTimeHint(a.opts.Hint); err != nil {
		return fmt.Errorf("invalid --hint: %w", err)
	}
	if _, err := models.FormatDelta(0, a.opts.DurationFormat); err != nil {
		return fmt.Errorf("invalid --duration-format: %w", err)
	}

	a.logger, err = a.env.NewLogger(a.opts.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func (a *app) parseRequest() timelog.ParseRequest {
	hint, _ := factoid.ParseTimeHint(a.opts.Hint)
	return timelog.ParseRequest{Hint: hint, Timezone: a.opts.Timezone, Lenient: a.opts.Lenient}
}

// backend opens the configured store, or an in-memory one for --dry-run
func (a *app) backend(ctx context.Context) (*Backend, error) {
	if a.opts.DryRun {
		return MemoryBackend(), nil
	}
	return a.env.OpenBackend(ctx, a.cfg, a.logger)
}

func (a *app) service(backend *Backend) (*timelog.Service, error) {
	settings, err := a.cfg.ParserSettings()
	if err != nil {
		return nil, err
	}
	return timelog.NewService(backend.Facts, settings,
		timelog.WithLocker(backend.Locker),
		timelog.WithLockWait(a.cfg.LockWait),
		timelog.WithLogger(a.logger),
		timelog.WithNow(a.env.Now),
	)
}

// withService runs fn against the configured backend and closes it afterwards
func (a *app) withService(ctx context.Context, fn func(*timelog.Service, *Backend) error) error {
	backend, err := a.backend(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			a.logger.Warn("failed_to_close_backend", zap.Error(err))
		}
	}()

	svc, err := a.service(backend)
	if err != nil {
		return err
	}
	return fn(svc, backend)
}

func (a *app) formatDelta(fact *models.Fact) string {
	d, ok := fact.Delta(a.env.Now())
	if !ok {
		return ""
	}
	s, err := models.FormatDelta(d, a.opts.DurationFormat)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

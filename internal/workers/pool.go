package workers

import (
	"context"
	"errors"

	"github.com/benvon/smart-timelog/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrDeliveryClosed is returned by Run when the broker closes the delivery channel
var ErrDeliveryClosed = errors.New("delivery channel closed")

// ProcessFunc settles one message
type ProcessFunc func(ctx context.Context, msg queue.MessageInterface) error

// Run feeds msgs to concurrency goroutines until ctx is cancelled or the
// delivery channel closes. Processing errors are logged; the message is
// already settled by then. Queue errors from errs are logged too.
func Run[M queue.MessageInterface](ctx context.Context, concurrency int, msgs <-chan M, errs <-chan error, process ProcessFunc, logger *zap.Logger) error {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-msgs:
					if !ok {
						return ErrDeliveryClosed
					}
					job := msg.GetJob()
					if err := process(ctx, msg); err != nil {
						logger.Error("failed_to_process_job",
							zap.Error(err),
							zap.String("job_id", job.ID.String()),
							zap.String("job_type", string(job.Type)),
						)
					}
				}
			}
		})
	}

	if errs != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case err, ok := <-errs:
					if !ok {
						return nil
					}
					logger.Error("queue_error", zap.Error(err))
				}
			}
		})
	}

	return g.Wait()
}

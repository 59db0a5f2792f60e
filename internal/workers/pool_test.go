package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benvon/smart-timelog/internal/queue"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRun_ProcessesUntilChannelCloses(t *testing.T) {
	t.Parallel()

	msgs := make(chan *mockMessage, 3)
	for i := 0; i < 3; i++ {
		msgs <- &mockMessage{job: newJob("09:00 to 10:00 coding@")}
	}
	close(msgs)

	var processed atomic.Int32
	err := Run(context.Background(), 2, msgs, nil, func(_ context.Context, msg queue.MessageInterface) error {
		processed.Add(1)
		return msg.Ack()
	}, zap.NewNop())

	if !errors.Is(err, ErrDeliveryClosed) {
		t.Errorf("Expected ErrDeliveryClosed, got %v", err)
	}
	if got := processed.Load(); got != 3 {
		t.Errorf("Expected 3 processed messages, got %d", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan *mockMessage)
	errs := make(chan error)

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, 4, msgs, errs, func(context.Context, queue.MessageInterface) error { return nil }, nil)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_LogsFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	msgs := make(chan *mockMessage, 1)
	errs := make(chan error, 1)
	msgs <- &mockMessage{job: newJob("broken")}
	errs <- errors.New("channel closed by broker")

	var once sync.Once
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processFunc := func(context.Context, queue.MessageInterface) error {
		return errors.New("import failed")
	}

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			if logs.FilterMessage("failed_to_process_job").Len() == 1 && logs.FilterMessage("queue_error").Len() == 1 {
				once.Do(cancel)
				return
			}
			select {
			case <-deadline:
				once.Do(cancel)
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()

	_ = Run(ctx, 1, msgs, errs, processFunc, zap.New(core))

	if n := logs.FilterMessage("failed_to_process_job").Len(); n != 1 {
		t.Errorf("Expected 1 processing failure log, got %d", n)
	}
	if n := logs.FilterMessage("queue_error").Len(); n != 1 {
		t.Errorf("Expected 1 queue error log, got %d", n)
	}
}

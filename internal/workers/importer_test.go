package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benvon/smart-timelog/internal/config"
	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/benvon/smart-timelog/internal/lock"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/queue"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/benvon/smart-timelog/internal/timeexpr"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// yesterdayFallback understands only "yesterday", as 09:00 the day before base
var yesterdayFallback = timeexpr.FallbackFunc(func(text string, base time.Time) (*timeexpr.Match, error) {
	if len(text) < len("yesterday") || text[:len("yesterday")] != "yesterday" {
		return nil, nil
	}
	y, m, d := base.AddDate(0, 0, -1).Date()
	return &timeexpr.Match{Text: "yesterday", Index: 0, Time: time.Date(y, m, d, 9, 0, 0, 0, base.Location())}, nil
})

// mockMessage records how a message was settled
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

// mockQueue is a mock implementation of JobQueue
type mockQueue struct {
	enqueueFunc func(ctx context.Context, job *queue.Job) error
	enqueued    []*queue.Job
}

func (m *mockQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.enqueueFunc != nil {
		if err := m.enqueueFunc(ctx, job); err != nil {
			return err
		}
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (m *mockQueue) Close() error { return nil }

func (m *mockQueue) HealthCheck(context.Context) error { return nil }

// flakyInserter fails inserts with err once calls reaches failAt
type flakyInserter struct {
	*timelog.Service
	failAt int
	err    error
	calls  int
}

func (f *flakyInserter) Insert(ctx context.Context, timelineID string, fact *models.Fact) (*timelog.InsertResult, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, f.err
	}
	return f.Service.Insert(ctx, timelineID, fact)
}

func newTestService(t *testing.T) (*timelog.Service, *timelog.MemoryStore) {
	t.Helper()

	store := timelog.NewMemoryStore()
	svc, err := timelog.NewService(store, &config.ParserSettings{Timezone: "UTC"},
		timelog.WithFallback(yesterdayFallback),
		timelog.WithLogger(zaptest.NewLogger(t)),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc, store
}

func newJob(lines ...string) *queue.Job {
	job := queue.NewImportJob("default", lines, factoid.HintBoth, "UTC")
	job.CreatedAt = time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	return job
}

func TestImporter_ProcessJob(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	importer := NewImporter(svc, &mockQueue{}, zaptest.NewLogger(t))

	msg := &mockMessage{job: newJob(
		"2024-03-15 09:00 - 2024-03-15 12:00 coding@work #go",
		"",
		"nonsense without an activity separator",
		"yesterday to 10:00 review@work",
		"2024-03-15 10:00 - 2024-03-15 10:30 standup@work",
	)}

	if err := importer.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked || msg.nacked {
		t.Errorf("Expected the job to be acked, got acked=%v nacked=%v", msg.acked, msg.nacked)
	}

	var got []string
	for _, f := range store.Memory("default").Facts() {
		got = append(got, f.SerializedString())
	}
	expected := []string{
		"2024-03-14 09:00:00 to 2024-03-14 10:00:00 review@work",
		"2024-03-15 09:00:00 to 2024-03-15 10:00:00 coding@work: #go",
		"2024-03-15 10:00:00 to 2024-03-15 10:30:00 standup@work",
		"2024-03-15 10:30:00 to 2024-03-15 12:00:00 coding@work: #go",
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("Timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestImporter_ImportReport(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	importer := NewImporter(svc, nil, nil)

	report, err := importer.Import(context.Background(), newJob(
		"2024-03-15 09:00 - 2024-03-15 10:00 coding@",
		"   ",
		"2024-03-15 11:00 - 2024-03-15 10:00 backwards@",
		"2024-03-15 12:00 lunch@",
	))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if report.Inserted != 1 || report.Skipped != 1 || report.Offset != 4 {
		t.Errorf("Expected 1 inserted, 1 skipped, offset 4, got %+v", report)
	}
	var lines []int
	for _, rejected := range report.Rejected {
		lines = append(lines, rejected.Line)
	}
	if diff := cmp.Diff([]int{3, 4}, lines); diff != "" {
		t.Errorf("Rejected lines mismatch (-want +got):\n%s", diff)
	}
}

func TestImporter_RetriesFromFailedLine(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	inserter := &flakyInserter{Service: svc, failAt: 2, err: lock.ErrLockNotAcquired}
	jobQueue := &mockQueue{}
	importer := NewImporter(inserter, jobQueue, zaptest.NewLogger(t))

	msg := &mockMessage{job: newJob(
		"2024-03-15 09:00 - 2024-03-15 10:00 first@",
		"2024-03-15 10:00 - 2024-03-15 11:00 second@",
		"2024-03-15 11:00 - 2024-03-15 12:00 third@",
	)}

	if err := importer.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("Expected the failed attempt to be acked after re-enqueue")
	}
	if len(jobQueue.enqueued) != 1 {
		t.Fatalf("Expected one re-enqueued job, got %d", len(jobQueue.enqueued))
	}

	retry := jobQueue.enqueued[0]
	if retry.Offset != 1 || retry.RetryCount != 1 {
		t.Errorf("Expected retry at offset 1 with count 1, got offset %d count %d", retry.Offset, retry.RetryCount)
	}
	if len(store.Memory("default").Facts()) != 1 {
		t.Errorf("Expected only the first line stored, got %d facts", len(store.Memory("default").Facts()))
	}

	retry.NotBefore = nil
	second := &mockMessage{job: retry}
	if err := importer.ProcessJob(context.Background(), second); err != nil {
		t.Fatalf("ProcessJob() on retry error = %v", err)
	}
	if !second.acked {
		t.Error("Expected the retry to be acked")
	}
	if len(store.Memory("default").Facts()) != 3 {
		t.Errorf("Expected all lines stored after the retry, got %d facts", len(store.Memory("default").Facts()))
	}
}

func TestImporter_DeadLetters(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("connection refused")
	expired := time.Now().Add(-time.Minute)

	tests := []struct {
		name          string
		job           func() *queue.Job
		failAt        int
		enqueueErr    error
		expectError   bool
		expectRequeue bool
	}{
		{
			name: "retries exhausted",
			job: func() *queue.Job {
				job := newJob("2024-03-15 09:00 - 2024-03-15 10:00 first@")
				job.RetryCount = job.MaxRetries
				return job
			},
			failAt:      1,
			expectError: true,
		},
		{
			name: "unknown job type",
			job: func() *queue.Job {
				job := newJob("x")
				job.Type = "reprocess"
				return job
			},
			expectError: true,
		},
		{
			name: "invalid timezone",
			job: func() *queue.Job {
				job := newJob("2024-03-15 09:00 - 2024-03-15 10:00 first@")
				job.Timezone = "Nowhere/Special"
				return job
			},
			expectError: true,
		},
		{
			name: "expired",
			job: func() *queue.Job {
				job := newJob("x")
				job.NotAfter = &expired
				return job
			},
		},
		{
			name:          "re-enqueue fails",
			job:           func() *queue.Job { return newJob("2024-03-15 09:00 - 2024-03-15 10:00 first@") },
			failAt:        1,
			enqueueErr:    errors.New("channel closed"),
			expectError:   true,
			expectRequeue: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _ := newTestService(t)
			inserter := &flakyInserter{Service: svc, failAt: tt.failAt, err: dbErr}
			jobQueue := &mockQueue{enqueueFunc: func(context.Context, *queue.Job) error { return tt.enqueueErr }}
			importer := NewImporter(inserter, jobQueue, zaptest.NewLogger(t))

			msg := &mockMessage{job: tt.job()}
			err := importer.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.expectError {
				t.Errorf("Expected error = %v, got %v", tt.expectError, err)
			}
			if msg.acked || !msg.nacked {
				t.Errorf("Expected a nack, got acked=%v nacked=%v", msg.acked, msg.nacked)
			}
			if msg.requeue != tt.expectRequeue {
				t.Errorf("Expected requeue = %v, got %v", tt.expectRequeue, msg.requeue)
			}
		})
	}
}

func TestImporter_NotYetDue(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	importer := NewImporter(svc, nil, nil)

	job := newJob("x")
	later := time.Now().Add(time.Hour)
	job.NotBefore = &later
	msg := &mockMessage{job: job}

	if err := importer.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.nacked || !msg.requeue {
		t.Error("Expected a job that is not due yet to be requeued")
	}
}

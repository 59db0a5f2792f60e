package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/benvon/smart-timelog/internal/factoid"
	"go.uber.org/zap/zaptest"
)

func TestNewPublishing(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	later := now.Add(90 * time.Second)
	earlier := now.Add(-time.Minute)

	tests := []struct {
		name             string
		notBefore        *time.Time
		notAfter         *time.Time
		expectDelay      any
		expectExpiration string
	}{
		{name: "immediate"},
		{name: "delayed", notBefore: &later, expectDelay: int64(90000)},
		{name: "not before already passed", notBefore: &earlier},
		{name: "expiring", notAfter: &later, expectExpiration: "90000"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := NewImportJob("default", []string{"09:00 coding@"}, factoid.HintStart, "")
			job.NotBefore, job.NotAfter = tt.notBefore, tt.notAfter

			publishing, err := newPublishing(job, now)
			if err != nil {
				t.Fatalf("newPublishing() error = %v", err)
			}
			if publishing.MessageId != job.ID.String() {
				t.Errorf("Expected message ID %s, got %s", job.ID, publishing.MessageId)
			}
			if publishing.Type != string(JobTypeImportFactoids) {
				t.Errorf("Expected type %s, got %s", JobTypeImportFactoids, publishing.Type)
			}
			if got := publishing.Headers["x-delay"]; got != tt.expectDelay {
				t.Errorf("Expected x-delay %v, got %v", tt.expectDelay, got)
			}
			if publishing.Expiration != tt.expectExpiration {
				t.Errorf("Expected expiration %q, got %q", tt.expectExpiration, publishing.Expiration)
			}
		})
	}
}

func TestDecodeJob(t *testing.T) {
	t.Parallel()

	job := NewImportJob("default", []string{"09:00 coding@"}, factoid.HintStart, "UTC")
	publishing, err := newPublishing(job, time.Now())
	if err != nil {
		t.Fatalf("newPublishing() error = %v", err)
	}

	decoded, err := decodeJob(publishing.Body)
	if err != nil {
		t.Fatalf("decodeJob() error = %v", err)
	}
	if decoded.ID != job.ID || decoded.Hint != factoid.HintStart {
		t.Errorf("Expected job %s with hint start, got %s with %s", job.ID, decoded.ID, decoded.Hint)
	}

	if _, err := decodeJob([]byte("{not json")); err == nil {
		t.Error("Expected an error for a malformed body")
	}
	if _, err := decodeJob([]byte(`{"type":"import_factoids","timeline_id":"default","lines":[]}`)); !errors.Is(err, ErrEmptyImport) {
		t.Errorf("Expected ErrEmptyImport, got %v", err)
	}
	if _, err := decodeJob([]byte(`{"type":"import_factoids","lines":["x"],"hint":"sideways"}`)); err == nil {
		t.Error("Expected an error for an unknown hint")
	}
}

func TestRabbitMQQueue_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("TEST_RABBITMQ_URL not set - skipping RabbitMQ integration test")
	}

	q, err := NewRabbitMQQueue(url, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = q.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	job := NewImportJob("it-roundtrip", []string{"09:00 - 10:00 coding@"}, factoid.HintBoth, "")
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	msgs, _, err := q.Consume(ctx, 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	for msg := range msgs {
		if msg.GetJob().ID != job.ID {
			_ = msg.Nack(true)
			continue
		}
		if err := msg.Ack(); err != nil {
			t.Errorf("Ack() error = %v", err)
		}
		cancel()
	}
}

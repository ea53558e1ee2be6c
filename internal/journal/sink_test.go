package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamware/chat-relay/internal/delivery"
	"github.com/streamware/chat-relay/internal/domain"
	"github.com/streamware/chat-relay/internal/scheduler"
)

type fakeRepository struct {
	createFunc func(ctx context.Context, rec *DeliveryRecord) error
	records    []DeliveryRecord
}

func (f *fakeRepository) Create(ctx context.Context, rec *DeliveryRecord) error {
	if f.createFunc != nil {
		if err := f.createFunc(ctx, rec); err != nil {
			return err
		}
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRepository) ListRecent(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	return f.records, nil
}

func newTestSink(t *testing.T, repo *fakeRepository, at time.Time) *Sink {
	t.Helper()

	sink, err := NewSink(repo, nil)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	sink.now = func() time.Time { return at }
	return sink
}

func testComment() domain.Comment {
	return domain.Comment{ID: "c-1", Text: "Great goal!", Priority: 7, Attempts: 2}
}

func TestNewSink_RequiresRepository(t *testing.T) {
	t.Parallel()

	if _, err := NewSink(nil, nil); err == nil {
		t.Fatal("NewSink() with nil repository expected error, got nil")
	}
}

func TestSink_CommentProcessed(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink := newTestSink(t, repo, at)

	sink.CommentProcessed(scheduler.ProcessedEvent{Comment: testComment(), Attempts: 2})

	if len(repo.records) != 1 {
		t.Fatalf("repository holds %d records, want 1", len(repo.records))
	}
	rec := repo.records[0]
	if rec.ID == "" {
		t.Fatal("record ID was not assigned")
	}
	if rec.CommentID != "c-1" || rec.Text != "Great goal!" || rec.Priority != 7 {
		t.Fatalf("record = %+v, want comment fields copied", rec)
	}
	if rec.Outcome != OutcomeProcessed || rec.Attempts != 2 {
		t.Fatalf("outcome = %s attempts = %d, want PROCESSED and 2", rec.Outcome, rec.Attempts)
	}
	if rec.Reason != nil || rec.Detail != nil {
		t.Fatalf("reason = %v detail = %v, want both nil", rec.Reason, rec.Detail)
	}
	if !rec.RecordedAt.Equal(at) {
		t.Fatalf("RecordedAt = %v, want %v", rec.RecordedAt, at)
	}
}

func TestSink_CommentFailed(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	sink := newTestSink(t, repo, time.Now())

	sink.CommentFailed(scheduler.FailedEvent{
		Comment:  testComment(),
		Reason:   domain.FailureMaxRetries,
		Attempts: 4,
	})

	if len(repo.records) != 1 {
		t.Fatalf("repository holds %d records, want 1", len(repo.records))
	}
	rec := repo.records[0]
	if rec.Outcome != OutcomeFailed || rec.Attempts != 4 {
		t.Fatalf("outcome = %s attempts = %d, want FAILED and 4", rec.Outcome, rec.Attempts)
	}
	if rec.Reason == nil || *rec.Reason != "max_retries" {
		t.Fatalf("reason = %v, want max_retries", rec.Reason)
	}
}

func TestSink_SchedulerError(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	sink := newTestSink(t, repo, time.Now())

	sink.SchedulerError(scheduler.ErrorEvent{
		Comment: testComment(),
		Err:     errors.New("gateway exploded"),
	})

	if len(repo.records) != 1 {
		t.Fatalf("repository holds %d records, want 1", len(repo.records))
	}
	rec := repo.records[0]
	if rec.Outcome != OutcomeError {
		t.Fatalf("outcome = %s, want ERROR", rec.Outcome)
	}
	if rec.Attempts != 2 {
		t.Fatalf("attempts = %d, want the comment's attempt count", rec.Attempts)
	}
	if rec.Reason == nil || *rec.Reason != "permanent" {
		t.Fatalf("reason = %v, want permanent for an unclassified error", rec.Reason)
	}
	if rec.Detail == nil || *rec.Detail != "gateway exploded" {
		t.Fatalf("detail = %v, want the error text", rec.Detail)
	}
}

func TestSink_SchedulerErrorTransient(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	sink := newTestSink(t, repo, time.Now())

	sink.SchedulerError(scheduler.ErrorEvent{
		Comment: testComment(),
		Err:     &delivery.DeliveryError{StatusCode: 503, Message: "unavailable", Transient: true},
	})

	rec := repo.records[0]
	if rec.Reason == nil || *rec.Reason != "transient" {
		t.Fatalf("reason = %v, want transient", rec.Reason)
	}
}

func TestSink_SwallowsRepositoryErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		createFunc: func(ctx context.Context, rec *DeliveryRecord) error {
			return errors.New("connection refused")
		},
	}
	sink := newTestSink(t, repo, time.Now())

	sink.CommentProcessed(scheduler.ProcessedEvent{Comment: testComment(), Attempts: 1})

	if len(repo.records) != 0 {
		t.Fatalf("repository holds %d records, want 0 after a write failure", len(repo.records))
	}
}

package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamware/chat-relay/internal/delivery"
	"github.com/streamware/chat-relay/internal/scheduler"
)

const recordTimeout = 5 * time.Second

var _ scheduler.EventSink = (*Sink)(nil)

// Sink journals scheduler outcomes. Persistence failures are logged and
// swallowed so a slow or unreachable database never blocks processing.
type Sink struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewSink(repo Repository, logger *zap.Logger) (*Sink, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sink{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *Sink) CommentProcessed(evt scheduler.ProcessedEvent) {
	s.record(&DeliveryRecord{
		CommentID: evt.Comment.ID,
		Text:      evt.Comment.Text,
		Priority:  evt.Comment.Priority,
		Attempts:  evt.Attempts,
		Outcome:   OutcomeProcessed,
	})
}

func (s *Sink) CommentFailed(evt scheduler.FailedEvent) {
	reason := evt.Reason.String()
	s.record(&DeliveryRecord{
		CommentID: evt.Comment.ID,
		Text:      evt.Comment.Text,
		Priority:  evt.Comment.Priority,
		Attempts:  evt.Attempts,
		Outcome:   OutcomeFailed,
		Reason:    &reason,
	})
}

func (s *Sink) SchedulerError(evt scheduler.ErrorEvent) {
	rec := &DeliveryRecord{
		CommentID: evt.Comment.ID,
		Text:      evt.Comment.Text,
		Priority:  evt.Comment.Priority,
		Attempts:  evt.Comment.Attempts,
		Outcome:   OutcomeError,
	}
	if evt.Err != nil {
		reason := errorClass(evt.Err)
		detail := evt.Err.Error()
		rec.Reason = &reason
		rec.Detail = &detail
	}
	s.record(rec)
}

// errorClass tags an error outcome with whether a later attempt could have
// succeeded. Purely informational; the scheduler has already dropped the
// comment.
func errorClass(err error) string {
	if delivery.IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

func (s *Sink) record(rec *DeliveryRecord) {
	rec.ID = uuid.NewString()
	rec.RecordedAt = s.now()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("failed to journal delivery outcome",
			zap.String("commentId", rec.CommentID),
			zap.String("outcome", string(rec.Outcome)),
			zap.Error(err))
	}
}

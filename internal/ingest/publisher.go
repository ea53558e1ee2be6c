package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/streamware/chat-relay/internal/delivery"
	"github.com/streamware/chat-relay/internal/scheduler"
)

const publishTimeout = 5 * time.Second

var _ scheduler.EventSink = (*OutcomeSink)(nil)

// OutcomeSink broadcasts terminal scheduler outcomes on the outcomes
// exchange. Publish failures are logged and swallowed; a broker outage
// must not stall comment processing.
type OutcomeSink struct {
	client *RabbitMQ
	logger *zap.Logger
	now    func() time.Time
}

func NewOutcomeSink(client *RabbitMQ, logger *zap.Logger) (*OutcomeSink, error) {
	if client == nil {
		return nil, fmt.Errorf("rabbitmq client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OutcomeSink{
		client: client,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *OutcomeSink) CommentProcessed(evt scheduler.ProcessedEvent) {
	s.publish(OutcomeMessage{
		CommentID: evt.Comment.ID,
		Outcome:   outcomeProcessed,
		Attempts:  evt.Attempts,
	})
}

func (s *OutcomeSink) CommentFailed(evt scheduler.FailedEvent) {
	s.publish(OutcomeMessage{
		CommentID: evt.Comment.ID,
		Outcome:   outcomeFailed,
		Reason:    evt.Reason.String(),
		Attempts:  evt.Attempts,
	})
}

func (s *OutcomeSink) SchedulerError(evt scheduler.ErrorEvent) {
	msg := OutcomeMessage{
		CommentID: evt.Comment.ID,
		Outcome:   outcomeError,
		Attempts:  evt.Comment.Attempts,
	}
	if evt.Err != nil {
		msg.Reason = "permanent"
		if delivery.IsTransient(evt.Err) {
			msg.Reason = "transient"
		}
		msg.Detail = evt.Err.Error()
	}
	s.publish(msg)
}

func (s *OutcomeSink) publish(msg OutcomeMessage) {
	msg.OccurredAt = s.now().UTC()

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal outcome message",
			zap.String("commentId", msg.CommentID),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	ch, err := s.client.channel(ctx)
	if err != nil {
		s.logger.Error("failed to open channel for outcome publish",
			zap.String("commentId", msg.CommentID),
			zap.Error(err),
		)
		return
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.OccurredAt,
		MessageId:    msg.CommentID,
		Body:         payload,
	}

	if err := ch.PublishWithContext(ctx, OutcomesExchange, "", false, false, publishing); err != nil {
		s.logger.Error("failed to publish outcome",
			zap.String("commentId", msg.CommentID),
			zap.String("outcome", msg.Outcome),
			zap.Error(err),
		)
	}
}

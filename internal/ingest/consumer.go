package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/streamware/chat-relay/internal/domain"
	"github.com/streamware/chat-relay/internal/scheduler"
)

// Enqueuer admits candidates into the delivery queue.
type Enqueuer interface {
	Enqueue(comment domain.Comment) (scheduler.EnqueueResult, error)
}

// Consumer drains the candidate queue into the scheduler, pacing intake
// so a chatty producer cannot flood the admission pipeline.
type Consumer struct {
	client   *RabbitMQ
	enqueuer Enqueuer
	throttle *rate.Limiter
	prefetch int
	logger   *zap.Logger
}

func NewConsumer(client *RabbitMQ, enqueuer Enqueuer, ratePerSec float64, prefetch int, logger *zap.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("rabbitmq client is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(math.Ceil(ratePerSec))
	}

	return &Consumer{
		client:   client,
		enqueuer: enqueuer,
		throttle: rate.NewLimiter(limit, burst),
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

// Start consumes the candidate queue until ctx is canceled, reconnecting
// with exponential backoff when the broker connection drops.
func (c *Consumer) Start(ctx context.Context) error {
	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("candidate consumer disconnected", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		CandidateQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", CandidateQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.throttle.Wait(ctx); err != nil {
				return nil
			}

			if err := c.handleDelivery(d); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) handleDelivery(d amqp.Delivery) error {
	var msg CandidateMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Warn("rejecting candidate: invalid JSON",
			zap.Error(err),
			zap.String("messageId", d.MessageId),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid message: %w", rejectErr)
		}
		return nil
	}

	if err := msg.Validate(); err != nil {
		c.logger.Warn("rejecting candidate: validation failed",
			zap.Error(err),
			zap.String("commentId", msg.CommentID),
			zap.String("correlationId", msg.CorrelationID),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid payload: %w", rejectErr)
		}
		return nil
	}

	comment := domain.Comment{
		ID:       msg.CommentID,
		Text:     msg.Text,
		Priority: msg.Priority,
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}

	result, err := c.enqueuer.Enqueue(comment)
	switch {
	case err == nil:
		c.logger.Debug("candidate enqueued",
			zap.String("commentId", comment.ID),
			zap.String("correlationId", msg.CorrelationID),
			zap.Int("position", result.Position),
			zap.Int("queueSize", result.QueueSize),
		)
	case errors.Is(err, domain.ErrQueueFull):
		// Requeue and let the throttle pace the redelivery; the broker
		// holds the candidate until the scheduler drains.
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("failed to requeue candidate: %w", nackErr)
		}
		return nil
	case errors.Is(err, domain.ErrConflict):
		// Redelivery of a candidate that is already queued; acking keeps
		// at-least-once delivery from looping.
		c.logger.Debug("candidate already queued", zap.String("commentId", comment.ID))
	default:
		c.logger.Warn("rejecting candidate: enqueue failed",
			zap.Error(err),
			zap.String("commentId", comment.ID),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject candidate: %w", rejectErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}

	return nil
}

func (c *Consumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

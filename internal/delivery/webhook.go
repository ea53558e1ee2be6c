package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"github.com/streamware/chat-relay/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	CommentID string    `json:"commentId"`
	Text      string    `json:"text"`
	PostedAt  time.Time `json:"postedAt"`
}

// Webhook posts admitted comments to the chat gateway endpoint. A circuit
// breaker fronts the gateway: after six consecutive failures Deliver fails
// fast until the gateway answers again.
type Webhook struct {
	client   *resty.Client
	breaker  *gobreaker.CircuitBreaker[*resty.Response]
	endpoint string
	now      func() time.Time
}

func NewWebhook(endpoint string) (*Webhook, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookWithClient(endpoint, client)
}

func NewWebhookWithClient(endpoint string, client *resty.Client) (*Webhook, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "chat-gateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Webhook{
		client:   client,
		breaker:  breaker,
		endpoint: trimmedEndpoint,
		now:      time.Now,
	}, nil
}

// Deliver makes a single attempt to post the comment. Retry policy belongs
// to the caller; Deliver never retries.
func (w *Webhook) Deliver(ctx context.Context, comment domain.Comment) error {
	if w == nil || w.client == nil {
		return fmt.Errorf("webhook deliverer is not initialized")
	}
	if err := comment.Validate(); err != nil {
		return fmt.Errorf("invalid comment: %w", err)
	}

	reqBody := webhookRequest{
		CommentID: comment.ID,
		Text:      comment.Text,
		PostedAt:  w.now().UTC(),
	}

	response, err := w.breaker.Execute(func() (*resty.Response, error) {
		resp, reqErr := w.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(reqBody).
			Post(w.endpoint)
		if reqErr != nil {
			return nil, reqErr
		}
		// Only 5xx counts against the breaker; everything else is
		// classified below without tripping it.
		if resp != nil && resp.StatusCode() >= http.StatusInternalServerError {
			return resp, fmt.Errorf("gateway returned %d", resp.StatusCode())
		}
		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &DeliveryError{
				Message:   "chat gateway circuit open",
				Transient: false,
				Cause:     err,
			}
		}
		if response != nil && response.StatusCode() >= http.StatusInternalServerError {
			return &DeliveryError{
				StatusCode: response.StatusCode(),
				Message:    deliveryErrorMessage(response.StatusCode(), strings.TrimSpace(response.String())),
				Transient:  true,
			}
		}
		return &DeliveryError{
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	if response == nil {
		return &DeliveryError{
			Message:   "gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &DeliveryError{
		StatusCode: statusCode,
		Message:    deliveryErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  statusCode == http.StatusTooManyRequests,
	}
}

func deliveryErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

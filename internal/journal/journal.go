package journal

import (
	"context"
	"time"
)

// Outcome is the terminal state recorded for a scheduled comment.
type Outcome string

const (
	OutcomeProcessed Outcome = "PROCESSED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeError     Outcome = "ERROR"
)

// DeliveryRecord is one journal row describing how a comment left the
// scheduler. Reason carries the failure reason for failed outcomes and
// transient/permanent for error outcomes; Detail holds the error text.
type DeliveryRecord struct {
	ID         string
	CommentID  string
	Text       string
	Priority   int
	Attempts   int
	Outcome    Outcome
	Reason     *string
	Detail     *string
	RecordedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, rec *DeliveryRecord) error
	ListRecent(ctx context.Context, limit int) ([]DeliveryRecord, error)
}

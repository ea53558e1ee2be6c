package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/streamware/chat-relay/internal/domain"
)

// CandidateMessage is the broker payload for a synthesized comment waiting
// to be relayed. CommentID is optional; the consumer assigns one when the
// producer did not.
type CandidateMessage struct {
	CommentID     string `json:"commentId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Text          string `json:"text"`
	Priority      int    `json:"priority"`
}

func (m CandidateMessage) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if textLen := len([]rune(m.Text)); textLen > domain.MaxCommentLength {
		return fmt.Errorf("text exceeds %d characters (got %d)", domain.MaxCommentLength, textLen)
	}
	if m.Priority < 0 || m.Priority > domain.MaxPriority {
		return fmt.Errorf("priority %d out of range 0..%d", m.Priority, domain.MaxPriority)
	}
	return nil
}

// OutcomeMessage is broadcast on the outcomes exchange whenever a comment
// leaves the scheduler for good. Reason carries the failure reason for
// failed outcomes and transient/permanent for error outcomes; Detail is
// the raw error text when there is one.
type OutcomeMessage struct {
	CommentID  string    `json:"commentId"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Attempts   int       `json:"attempts"`
	OccurredAt time.Time `json:"occurredAt"`
}

const (
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeError     = "error"
)

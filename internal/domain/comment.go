package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxCommentLength is the maximum comment text length (in characters)
// the chat transport accepts.
const MaxCommentLength = 500

// MaxPriority is the highest scheduling priority a comment can carry.
// Zero is the lowest; the broker queue is declared with the same ceiling.
const MaxPriority = 9

// Comment is the core domain entity: a synthesized chat message waiting
// to be transmitted. Once enqueued it is owned by the scheduler and only
// the Attempts counter changes.
type Comment struct {
	ID         string
	Text       string
	Priority   int
	EnqueuedAt time.Time
	Attempts   int
}

func (c *Comment) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: comment id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: comment text is required", ErrValidation)
	}

	textLen := len([]rune(c.Text))
	if textLen > MaxCommentLength {
		return fmt.Errorf("%w: comment text exceeds %d characters (got %d)", ErrValidation, MaxCommentLength, textLen)
	}

	return nil
}

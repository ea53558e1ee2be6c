package scheduler

import "github.com/streamware/chat-relay/internal/domain"

// ProcessedEvent reports a comment that passed admission and was delivered.
type ProcessedEvent struct {
	Comment  domain.Comment
	Attempts int
}

// FailedEvent reports a comment abandoned for a terminal reason.
type FailedEvent struct {
	Comment  domain.Comment
	Reason   domain.FailureReason
	Attempts int
}

// ErrorEvent reports a comment dropped because of an unexpected admission
// or delivery error.
type ErrorEvent struct {
	Comment domain.Comment
	Err     error
}

// EventSink receives terminal scheduling outcomes. Callbacks run
// synchronously on the processing goroutine after the scheduler has
// released its locks; a slow sink delays the next tick.
type EventSink interface {
	CommentProcessed(ProcessedEvent)
	CommentFailed(FailedEvent)
	SchedulerError(ErrorEvent)
}

package domain

import "time"

// Reason identifies the admission rule that rejected a comment.
type Reason string

const (
	ReasonDuplicate   Reason = "duplicate"
	ReasonCooldown    Reason = "cooldown"
	ReasonMinInterval Reason = "min_interval"
	ReasonRateLimit   Reason = "rate_limit"
)

func (r Reason) String() string { return string(r) }

// Retryable reports whether waiting can turn the rejection into an allow.
// Duplicate content stays duplicate no matter how long the caller waits.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonCooldown, ReasonMinInterval, ReasonRateLimit:
		return true
	}
	return false
}

// Decision is the outcome of a single admission check. It is computed on
// demand and never stored. RetryAfter is zero when the comment is allowed
// or when waiting cannot change the outcome.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
}

// FailureReason identifies why a comment ended in the failed state.
type FailureReason string

const (
	FailureDuplicate  FailureReason = "duplicate"
	FailureMaxRetries FailureReason = "max_retries"
)

func (r FailureReason) String() string { return string(r) }

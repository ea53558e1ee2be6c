package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamware/chat-relay/internal/domain"
	"github.com/streamware/chat-relay/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultProcessingInterval = 100 * time.Millisecond
	defaultMaxQueueSize       = 100
	defaultRetryAttempts      = 3
	defaultRetryDelay         = time.Second
)

// AdmissionChecker is the oracle consulted before every delivery attempt.
type AdmissionChecker interface {
	CheckLimit(ctx context.Context, text string) (domain.Decision, error)
}

// Deliverer posts an admitted comment to the chat transport. A single call
// makes a single attempt; retry policy lives in the scheduler.
type Deliverer interface {
	Deliver(ctx context.Context, comment domain.Comment) error
}

// Config holds the scheduling knobs. Zero values select the defaults.
type Config struct {
	ProcessingInterval time.Duration
	MaxQueueSize       int
	RetryAttempts      int
	RetryDelay         time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProcessingInterval <= 0 {
		c.ProcessingInterval = defaultProcessingInterval
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaultMaxQueueSize
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// EnqueueResult reports where a freshly accepted comment landed.
type EnqueueResult struct {
	Position  int
	QueueSize int
}

// QueuedComment is a point-in-time view of one queue entry.
type QueuedComment struct {
	Comment    domain.Comment
	Position   int
	EligibleAt time.Time
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running        bool
	Paused         bool
	Processing     bool
	QueueSize      int
	TotalProcessed uint64
	TotalFailed    uint64
}

// Scheduler owns the delayed priority queue and the periodic loop that
// drains it: each tick takes at most one comment, consults the admission
// checker and either delivers, defers, or abandons it. Comments never
// overlap; the next evaluation starts only after the previous outcome is
// recorded.
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	limiter AdmissionChecker
	deliver Deliverer
	logger  *zap.Logger
	metrics *observability.Metrics

	queue      *delayQueue
	inFlightID string
	sinks      []EventSink

	running bool
	paused  bool
	stopCh  chan struct{}

	totalProcessed uint64
	totalFailed    uint64

	now func() time.Time
}

func NewScheduler(cfg Config, limiter AdmissionChecker, deliverer Deliverer, logger *zap.Logger) (*Scheduler, error) {
	if limiter == nil {
		return nil, fmt.Errorf("admission checker is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cfg:     cfg.withDefaults(),
		limiter: limiter,
		deliver: deliverer,
		logger:  logger,
		queue:   newDelayQueue(),
		now:     time.Now,
	}, nil
}

// Subscribe registers a sink for terminal events. Register sinks before
// Start; sinks run synchronously on the processing goroutine.
func (s *Scheduler) Subscribe(sink EventSink) {
	if sink == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs the processing loop until ctx is cancelled or Stop is called.
// Calling Start while the loop is already running is a no-op; after a Stop
// the scheduler can be started again with the queue intact.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.paused = false
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	interval := s.cfg.ProcessingInterval
	s.mu.Unlock()

	s.logger.Info("comment scheduler started", zap.Duration("interval", interval))

	// Drain anything already due before the first ticker edge.
	s.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.running {
				s.running = false
				s.stopCh = nil
			}
			s.mu.Unlock()
			s.logger.Info("comment scheduler stopped")
			return nil
		case <-stopCh:
			s.logger.Info("comment scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop ends the loop at the next tick boundary, leaving queued comments in
// place. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.stopCh = nil
}

// Pause keeps the loop ticking but skips processing until Resume. Queued
// comments and an in-flight attempt are unaffected.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}
	s.paused = true
	s.logger.Info("comment scheduler paused")
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}
	s.paused = false
	s.logger.Info("comment scheduler resumed")
}

// Enqueue validates and inserts a comment, returning its 1-based position
// in delivery order and the resulting queue size. A comment already queued
// or in flight under the same id is a conflict; a full queue rejects the
// comment rather than evicting another.
func (s *Scheduler) Enqueue(comment domain.Comment) (EnqueueResult, error) {
	if err := comment.Validate(); err != nil {
		return EnqueueResult{}, err
	}

	s.mu.Lock()
	if s.queue.contains(comment.ID) || comment.ID == s.inFlightID {
		s.mu.Unlock()
		return EnqueueResult{}, fmt.Errorf("%w: comment %q is already queued", domain.ErrConflict, comment.ID)
	}

	size := s.queue.len()
	if s.inFlightID != "" {
		size++
	}
	if size >= s.cfg.MaxQueueSize {
		s.mu.Unlock()
		return EnqueueResult{}, fmt.Errorf("%w: %d comments pending", domain.ErrQueueFull, size)
	}

	now := s.now()
	if comment.EnqueuedAt.IsZero() {
		comment.EnqueuedAt = now
	}
	comment.Attempts = 0
	s.queue.push(comment, now)
	result := EnqueueResult{
		Position:  s.queue.position(comment.ID),
		QueueSize: s.queue.len(),
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetQueueDepth(result.QueueSize)
	}
	s.logger.Debug("comment enqueued",
		zap.String("commentId", comment.ID),
		zap.Int("priority", comment.Priority),
		zap.Int("position", result.Position),
	)
	return result, nil
}

// RemoveFromQueue deletes a pending comment. An in-flight comment is no
// longer queued and reports not found.
func (s *Scheduler) RemoveFromQueue(id string) error {
	s.mu.Lock()
	if !s.queue.remove(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: comment %q is not queued", domain.ErrNotFound, id)
	}
	depth := s.queue.len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetQueueDepth(depth)
	}
	s.logger.Debug("comment removed from queue", zap.String("commentId", id))
	return nil
}

// ClearQueue drops every pending comment and returns how many were removed.
func (s *Scheduler) ClearQueue() int {
	s.mu.Lock()
	removed := s.queue.clear()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetQueueDepth(0)
	}
	if removed > 0 {
		s.logger.Info("comment queue cleared", zap.Int("removed", removed))
	}
	return removed
}

// Queue returns a snapshot of pending comments in delivery order.
func (s *Scheduler) Queue() []QueuedComment {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.queue.snapshot()
	queued := make([]QueuedComment, len(entries))
	for i, e := range entries {
		queued[i] = QueuedComment{
			Comment:    e.comment,
			Position:   i + 1,
			EligibleAt: e.eligibleAt,
		}
	}
	return queued
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Running:        s.running,
		Paused:         s.paused,
		Processing:     s.inFlightID != "",
		QueueSize:      s.queue.len(),
		TotalProcessed: s.totalProcessed,
		TotalFailed:    s.totalFailed,
	}
}

// tick processes at most one comment: the queue head, and only once its
// eligibility time has passed. A deferred head gates the entries behind it;
// attempting them early would burn their retry budgets on the same
// time-based rejection.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	e := s.queue.popEligible(s.now())
	if e == nil {
		s.mu.Unlock()
		return
	}
	e.comment.Attempts++
	s.inFlightID = e.comment.ID
	sinks := s.sinks
	s.mu.Unlock()

	s.process(ctx, e, sinks)
}

func (s *Scheduler) process(ctx context.Context, e *entry, sinks []EventSink) {
	comment := e.comment
	ctx = observability.WithCommentID(ctx, comment.ID)

	decision, err := s.limiter.CheckLimit(ctx, comment.Text)
	if err != nil {
		s.finishError(comment, fmt.Errorf("admission check failed: %w", err), sinks)
		return
	}
	if s.metrics != nil {
		s.metrics.IncAdmissionDecision(decisionResult(decision))
	}

	if decision.Allowed {
		start := s.now()
		deliverErr := s.deliver.Deliver(ctx, comment)
		if s.metrics != nil {
			s.metrics.ObserveDeliveryDuration(s.now().Sub(start))
		}
		if deliverErr != nil {
			s.finishError(comment, fmt.Errorf("delivery failed: %w", deliverErr), sinks)
			return
		}
		s.finishProcessed(comment, sinks)
		return
	}

	if decision.Reason == domain.ReasonDuplicate {
		s.finishFailed(comment, domain.FailureDuplicate, sinks)
		return
	}

	if comment.Attempts <= s.cfg.RetryAttempts {
		s.requeue(e, decision)
		return
	}
	s.finishFailed(comment, domain.FailureMaxRetries, sinks)
}

// requeue defers a recoverably rejected comment, honoring the limiter's
// retry hint but never waiting less than the configured retry delay.
func (s *Scheduler) requeue(e *entry, decision domain.Decision) {
	delay := decision.RetryAfter
	if s.cfg.RetryDelay > delay {
		delay = s.cfg.RetryDelay
	}

	s.mu.Lock()
	s.queue.reinsert(e, s.now().Add(delay))
	s.inFlightID = ""
	depth := s.queue.len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncRetryScheduled()
		s.metrics.SetQueueDepth(depth)
	}
	s.logger.Debug("comment deferred",
		zap.String("commentId", e.comment.ID),
		zap.String("reason", decision.Reason.String()),
		zap.Duration("delay", delay),
		zap.Int("attempts", e.comment.Attempts),
	)
}

func (s *Scheduler) finishProcessed(comment domain.Comment, sinks []EventSink) {
	s.mu.Lock()
	s.inFlightID = ""
	s.totalProcessed++
	depth := s.queue.len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncCommentProcessed()
		s.metrics.SetQueueDepth(depth)
	}
	s.logger.Info("comment posted",
		zap.String("commentId", comment.ID),
		zap.Int("attempts", comment.Attempts),
	)

	evt := ProcessedEvent{Comment: comment, Attempts: comment.Attempts}
	for _, sink := range sinks {
		sink.CommentProcessed(evt)
	}
}

func (s *Scheduler) finishFailed(comment domain.Comment, reason domain.FailureReason, sinks []EventSink) {
	s.mu.Lock()
	s.inFlightID = ""
	s.totalFailed++
	depth := s.queue.len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncCommentFailed(reason.String())
		s.metrics.SetQueueDepth(depth)
	}
	s.logger.Warn("comment abandoned",
		zap.String("commentId", comment.ID),
		zap.String("reason", reason.String()),
		zap.Int("attempts", comment.Attempts),
	)

	evt := FailedEvent{Comment: comment, Reason: reason, Attempts: comment.Attempts}
	for _, sink := range sinks {
		sink.CommentFailed(evt)
	}
}

// finishError drops a comment after an unexpected limiter or delivery
// error. The drop keeps a poisoned comment from wedging the queue; it is
// counted neither processed nor failed.
func (s *Scheduler) finishError(comment domain.Comment, err error, sinks []EventSink) {
	s.mu.Lock()
	s.inFlightID = ""
	depth := s.queue.len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetQueueDepth(depth)
	}
	s.logger.Error("comment dropped",
		zap.String("commentId", comment.ID),
		zap.Error(err),
	)

	evt := ErrorEvent{Comment: comment, Err: err}
	for _, sink := range sinks {
		sink.SchedulerError(evt)
	}
}

func decisionResult(d domain.Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return d.Reason.String()
}

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamware/chat-relay/internal/domain"
	"github.com/streamware/chat-relay/internal/observability"
	"go.uber.org/zap"
)

// Config holds the admission thresholds. Zero values switch the matching
// rule off: MinInterval 0 removes the spacing rule, Cooldown 0 disables
// burst cooldowns, DedupeWindow 0 disables duplicate suppression, and the
// sliding-window cap needs both Window and MaxPerWindow above zero.
// BurstSpan is the span within which a filled window counts as a burst;
// zero means a quarter of Window.
type Config struct {
	MinInterval  time.Duration
	Window       time.Duration
	MaxPerWindow int
	Cooldown     time.Duration
	DedupeWindow time.Duration
	BurstSpan    time.Duration

	// Fingerprint overrides the duplicate-detection hash. Nil selects the
	// package default.
	Fingerprint func(string) string
}

func (c Config) validate() error {
	if c.MinInterval < 0 || c.Window < 0 || c.Cooldown < 0 || c.DedupeWindow < 0 || c.BurstSpan < 0 {
		return fmt.Errorf("%w: admission thresholds must not be negative", domain.ErrValidation)
	}
	if c.MaxPerWindow < 0 {
		return fmt.Errorf("%w: max per window must not be negative", domain.ErrValidation)
	}
	return nil
}

func (c Config) fingerprintFn() func(string) string {
	if c.Fingerprint != nil {
		return c.Fingerprint
	}
	return Fingerprint
}

func (c Config) burstSpan() time.Duration {
	if c.BurstSpan > 0 {
		return c.BurstSpan
	}
	return c.Window / 4
}

// retention is how far back history stays relevant for any rule.
func (c Config) retention() time.Duration {
	retention := c.Window
	if c.DedupeWindow > retention {
		retention = c.DedupeWindow
	}
	if c.MinInterval > retention {
		retention = c.MinInterval
	}
	return retention
}

// Stats exposes monotonically increasing admission counters.
type Stats struct {
	TotalAttempts    int64
	TotalAllowed     int64
	TotalRejected    int64
	RejectionReasons map[domain.Reason]int64
}

// Limiter is the stateful admission oracle: it decides whether a comment
// may be posted right now and keeps the accepted-post history that future
// decisions depend on.
type Limiter struct {
	mu            sync.Mutex
	cfg           Config
	store         HistoryStore
	logger        *zap.Logger
	cooldownUntil time.Time
	closed        bool

	totalAttempts    int64
	totalAllowed     int64
	totalRejected    int64
	rejectionReasons map[domain.Reason]int64

	now func() time.Time
}

func NewLimiter(cfg Config, store HistoryStore, logger *zap.Logger) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Limiter{
		cfg:              cfg,
		store:            store,
		logger:           logger,
		rejectionReasons: make(map[domain.Reason]int64),
		now:              time.Now,
	}, nil
}

// CheckLimit evaluates the admission rules for the given text. Rules run
// in a fixed order: duplicate, cooldown, minimum interval, sliding-window
// cap; the first match wins. On allow the accepted post is recorded in
// history exactly once, and a later delivery failure does not remove it.
// Rejections are values carrying the reason and a retry hint; an error
// means the history store failed and the decision is unknown.
func (l *Limiter) CheckLimit(ctx context.Context, text string) (domain.Decision, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domain.Decision{}, domain.ErrLimiterClosed
	}
	l.totalAttempts++

	now := l.now()
	cutoff := now.Add(-l.cfg.retention())
	if err := l.store.Prune(ctx, cutoff); err != nil {
		return domain.Decision{}, fmt.Errorf("failed to prune history: %w", err)
	}
	recent, err := l.store.Recent(ctx, cutoff)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("failed to load history: %w", err)
	}

	fingerprint := l.cfg.fingerprintFn()(text)

	if decision, rejected := l.evaluate(now, recent, fingerprint); rejected {
		l.totalRejected++
		l.rejectionReasons[decision.Reason]++
		observability.WithCommentLogger(l.logger, ctx).Debug("admission rejected",
			zap.String("reason", decision.Reason.String()),
			zap.Duration("retryAfter", decision.RetryAfter),
		)
		return decision, nil
	}

	if err := l.store.Append(ctx, Record{At: now, Fingerprint: fingerprint}); err != nil {
		return domain.Decision{}, fmt.Errorf("failed to record accepted post: %w", err)
	}
	l.totalAllowed++
	return domain.Decision{Allowed: true}, nil
}

func (l *Limiter) evaluate(now time.Time, recent []Record, fingerprint string) (domain.Decision, bool) {
	if l.cfg.DedupeWindow > 0 {
		dedupeSince := now.Add(-l.cfg.DedupeWindow)
		for _, rec := range recent {
			if rec.Fingerprint == fingerprint && !rec.At.Before(dedupeSince) {
				return domain.Decision{Reason: domain.ReasonDuplicate}, true
			}
		}
	}

	if l.cooldownUntil.After(now) {
		return domain.Decision{
			Reason:     domain.ReasonCooldown,
			RetryAfter: l.cooldownUntil.Sub(now),
		}, true
	}

	if l.cfg.MinInterval > 0 && len(recent) > 0 {
		newest := recent[len(recent)-1]
		if elapsed := now.Sub(newest.At); elapsed < l.cfg.MinInterval {
			return domain.Decision{
				Reason:     domain.ReasonMinInterval,
				RetryAfter: l.cfg.MinInterval - elapsed,
			}, true
		}
	}

	if l.cfg.Window > 0 && l.cfg.MaxPerWindow > 0 {
		windowSince := now.Add(-l.cfg.Window)
		inWindow := recent
		for len(inWindow) > 0 && inWindow[0].At.Before(windowSince) {
			inWindow = inWindow[1:]
		}
		if len(inWindow) >= l.cfg.MaxPerWindow {
			// A window that filled within the burst span would re-saturate
			// the moment the oldest entry ages out; the armed cooldown keeps
			// admission refused past the natural window recovery.
			if l.cfg.Cooldown > 0 && l.windowFilledRapidly(inWindow) {
				l.cooldownUntil = now.Add(l.cfg.Cooldown)
			}
			oldest := inWindow[0]
			return domain.Decision{
				Reason:     domain.ReasonRateLimit,
				RetryAfter: oldest.At.Add(l.cfg.Window).Sub(now),
			}, true
		}
	}

	return domain.Decision{}, false
}

func (l *Limiter) windowFilledRapidly(inWindow []Record) bool {
	span := l.cfg.burstSpan()
	if span <= 0 {
		return false
	}
	newest := inWindow[len(inWindow)-1]
	kth := inWindow[len(inWindow)-l.cfg.MaxPerWindow]
	return newest.At.Sub(kth.At) <= span
}

// Statistics returns a copy of the admission counters. Counters reset only
// when the limiter is recreated.
func (l *Limiter) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	reasons := make(map[domain.Reason]int64, len(l.rejectionReasons))
	for reason, count := range l.rejectionReasons {
		reasons[reason] = count
	}

	return Stats{
		TotalAttempts:    l.totalAttempts,
		TotalAllowed:     l.totalAllowed,
		TotalRejected:    l.totalRejected,
		RejectionReasons: reasons,
	}
}

// UpdateConfig swaps the thresholds atomically. Existing history is kept
// as recorded; entries outside a shrunken window age out on the next check.
func (l *Limiter) UpdateConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domain.ErrLimiterClosed
	}
	l.cfg = cfg
	return nil
}

// Close marks the limiter destroyed: further CheckLimit or UpdateConfig
// calls return ErrLimiterClosed. Close is idempotent and safe during
// shutdown.
func (l *Limiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	return nil
}

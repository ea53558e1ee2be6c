package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Record is one accepted transmission in the admission history.
type Record struct {
	At          time.Time
	Fingerprint string
}

// HistoryStore persists accepted-post records for admission checks.
// Implementations must return Recent results in ascending timestamp order.
type HistoryStore interface {
	Append(ctx context.Context, rec Record) error
	// Recent returns records timestamped at or after since, oldest first.
	Recent(ctx context.Context, since time.Time) ([]Record, error)
	// Prune removes records timestamped strictly before the cutoff.
	Prune(ctx context.Context, before time.Time) error
}

// MemoryHistory keeps accepted-post records in process memory. It is the
// default store when no Redis backend is configured.
type MemoryHistory struct {
	mu      sync.Mutex
	records []Record
}

var _ HistoryStore = (*MemoryHistory)(nil)

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Append(ctx context.Context, rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	return nil
}

func (h *MemoryHistory) Recent(ctx context.Context, since time.Time) ([]Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recent := make([]Record, 0, len(h.records))
	for _, rec := range h.records {
		if rec.At.Before(since) {
			continue
		}
		recent = append(recent, rec)
	}
	return recent, nil
}

func (h *MemoryHistory) Prune(ctx context.Context, before time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Records append in chronological order, so the survivors are a suffix.
	keepFrom := len(h.records)
	for i, rec := range h.records {
		if !rec.At.Before(before) {
			keepFrom = i
			break
		}
	}
	if keepFrom == 0 {
		return nil
	}

	h.records = append([]Record(nil), h.records[keepFrom:]...)
	return nil
}

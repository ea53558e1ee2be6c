package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/streamware/chat-relay/internal/domain"
	"github.com/streamware/chat-relay/internal/ratelimit"
)

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func newTestHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()

	store, err := NewHistoryStore(newTestRedisClient(t), "test")
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	return store
}

func TestNewHistoryStoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewHistoryStore(nil, "test"); err == nil {
		t.Fatal("NewHistoryStore() with nil client expected error, got nil")
	}

	store, err := NewHistoryStore(goredis.NewClient(&goredis.Options{}), "  ")
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	if store.key != "history:default" {
		t.Fatalf("key = %q, want %q", store.key, "history:default")
	}
}

func TestHistoryStoreAppendAndRecent(t *testing.T) {
	t.Parallel()

	store := newTestHistoryStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, fp := range []string{"aaa", "bbb", "ccc"} {
		rec := ratelimit.Record{At: base.Add(time.Duration(i) * time.Second), Fingerprint: fp}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := store.Recent(ctx, base.Add(time.Second))
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(records))
	}
	if records[0].Fingerprint != "bbb" || records[1].Fingerprint != "ccc" {
		t.Fatalf("Recent() fingerprints = %q, %q, want bbb, ccc", records[0].Fingerprint, records[1].Fingerprint)
	}
	if got := records[0].At.UnixMilli(); got != base.Add(time.Second).UnixMilli() {
		t.Fatalf("Recent() first timestamp = %d, want %d", got, base.Add(time.Second).UnixMilli())
	}
	if !records[0].At.Before(records[1].At) {
		t.Fatal("Recent() records are not in ascending order")
	}
}

func TestHistoryStoreRecentIncludesCutoff(t *testing.T) {
	t.Parallel()

	store := newTestHistoryStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Append(ctx, ratelimit.Record{At: at, Fingerprint: "aaa"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := store.Recent(ctx, at)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Recent() at exact cutoff returned %d records, want 1", len(records))
	}

	records, err = store.Recent(ctx, at.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Recent() past cutoff returned %d records, want 0", len(records))
	}
}

func TestHistoryStorePrune(t *testing.T) {
	t.Parallel()

	store := newTestHistoryStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, fp := range []string{"aaa", "bbb", "ccc"} {
		rec := ratelimit.Record{At: base.Add(time.Duration(i) * time.Second), Fingerprint: fp}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if err := store.Prune(ctx, base.Add(time.Second)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	records, err := store.Recent(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("after prune %d records remain, want 2", len(records))
	}
	if records[0].Fingerprint != "bbb" {
		t.Fatalf("oldest surviving fingerprint = %q, want bbb (prune removes strictly older entries)", records[0].Fingerprint)
	}

	if err := store.Prune(ctx, base.Add(time.Hour)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	records, err = store.Recent(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("after full prune %d records remain, want 0", len(records))
	}
}

func TestHistoryStoreKeepsDuplicateFingerprints(t *testing.T) {
	t.Parallel()

	store := newTestHistoryStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Same fingerprint in the same millisecond must produce two entries,
	// otherwise the sliding window undercounts repeated posts.
	for i := 0; i < 2; i++ {
		if err := store.Append(ctx, ratelimit.Record{At: at, Fingerprint: "aaa"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := store.Recent(ctx, at)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(records))
	}
}

func TestHistoryStoreBacksLimiter(t *testing.T) {
	t.Parallel()

	store := newTestHistoryStore(t)
	limiter, err := ratelimit.NewLimiter(ratelimit.Config{DedupeWindow: 30 * time.Second}, store, nil)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	ctx := context.Background()

	decision, err := limiter.CheckLimit(ctx, "Nice play!")
	if err != nil {
		t.Fatalf("CheckLimit() error = %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("first post rejected with reason %q", decision.Reason)
	}

	decision, err = limiter.CheckLimit(ctx, "  nice   PLAY! ")
	if err != nil {
		t.Fatalf("CheckLimit() error = %v", err)
	}
	if decision.Allowed || decision.Reason != domain.ReasonDuplicate {
		t.Fatalf("repeat post decision = %+v, want duplicate rejection", decision)
	}

	decision, err = limiter.CheckLimit(ctx, "Different text entirely")
	if err != nil {
		t.Fatalf("CheckLimit() error = %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("unrelated post rejected with reason %q", decision.Reason)
	}
}

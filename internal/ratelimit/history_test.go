package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryHistory_RecentFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store := NewMemoryHistory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, fp := range []string{"a", "b", "c"} {
		rec := Record{At: base.Add(time.Duration(i) * time.Second), Fingerprint: fp}
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	recent, err := store.Recent(context.Background(), base.Add(time.Second))
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(recent))
	}
	// The cutoff itself is included and order stays oldest first.
	if recent[0].Fingerprint != "b" || recent[1].Fingerprint != "c" {
		t.Errorf("Recent() = [%s %s], want [b c]", recent[0].Fingerprint, recent[1].Fingerprint)
	}
}

func TestMemoryHistory_PruneDropsStrictlyOlder(t *testing.T) {
	t.Parallel()

	store := NewMemoryHistory()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, fp := range []string{"a", "b", "c"} {
		rec := Record{At: base.Add(time.Duration(i) * time.Second), Fingerprint: fp}
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if err := store.Prune(context.Background(), base.Add(time.Second)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	recent, err := store.Recent(context.Background(), base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent() after prune returned %d records, want 2", len(recent))
	}
	if recent[0].Fingerprint != "b" {
		t.Errorf("oldest surviving record = %s, want b", recent[0].Fingerprint)
	}

	// Pruning everything leaves an empty store, not an error.
	if err := store.Prune(context.Background(), base.Add(time.Hour)); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	recent, err = store.Recent(context.Background(), base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("Recent() after full prune returned %d records, want 0", len(recent))
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{name: "identical", a: "hello world", b: "hello world", same: true},
		{name: "case insensitive", a: "Hello World", b: "hello world", same: true},
		{name: "whitespace collapsed", a: "  hello \t world ", b: "hello world", same: true},
		{name: "different text", a: "hello world", b: "hello there", same: false},
		{name: "word order matters", a: "world hello", b: "hello world", same: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Fingerprint(tc.a) == Fingerprint(tc.b)
			if got != tc.same {
				t.Errorf("Fingerprint(%q) == Fingerprint(%q) = %v, want %v", tc.a, tc.b, got, tc.same)
			}
		})
	}
}

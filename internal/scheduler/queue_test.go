package scheduler

import (
	"testing"
	"time"

	"github.com/streamware/chat-relay/internal/domain"
)

func queueComment(id string, priority int) domain.Comment {
	return domain.Comment{ID: id, Text: "text " + id, Priority: priority}
}

func TestDelayQueue_PopsByPriorityThenArrival(t *testing.T) {
	t.Parallel()

	q := newDelayQueue()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	q.push(queueComment("low", 1), now)
	q.push(queueComment("high", 5), now)
	q.push(queueComment("mid", 3), now)
	q.push(queueComment("high-later", 5), now)

	var order []string
	for {
		e := q.popEligible(now)
		if e == nil {
			break
		}
		order = append(order, e.comment.ID)
	}

	want := []string{"high", "high-later", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("popped %d entries, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("pop order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
	if q.len() != 0 || q.contains("high") {
		t.Error("queue should be empty after draining")
	}
}

func TestDelayQueue_DeferredHeadGatesQueue(t *testing.T) {
	t.Parallel()

	q := newDelayQueue()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	q.push(queueComment("head", 9), now.Add(time.Second))
	q.push(queueComment("behind", 1), now)

	// "behind" is eligible, but the waiting head holds it back.
	if e := q.popEligible(now); e != nil {
		t.Fatalf("popEligible() = %s, want nil while head is deferred", e.comment.ID)
	}

	e := q.popEligible(now.Add(time.Second))
	if e == nil || e.comment.ID != "head" {
		t.Fatalf("popEligible() after deferral = %v, want head", e)
	}
	e = q.popEligible(now.Add(time.Second))
	if e == nil || e.comment.ID != "behind" {
		t.Fatalf("popEligible() = %v, want behind", e)
	}
}

func TestDelayQueue_ReinsertKeepsArrivalOrder(t *testing.T) {
	t.Parallel()

	q := newDelayQueue()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	q.push(queueComment("first", 1), now)
	q.push(queueComment("second", 1), now)

	e := q.popEligible(now)
	if e == nil || e.comment.ID != "first" {
		t.Fatalf("popEligible() = %v, want first", e)
	}

	// A re-inserted entry keeps its original sequence and beats the same
	// priority arrival that came after it.
	q.reinsert(e, now)
	e = q.popEligible(now)
	if e == nil || e.comment.ID != "first" {
		t.Fatalf("popEligible() after reinsert = %v, want first", e)
	}
}

func TestDelayQueue_RemoveAndPosition(t *testing.T) {
	t.Parallel()

	q := newDelayQueue()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	q.push(queueComment("a", 1), now)
	q.push(queueComment("b", 5), now)
	q.push(queueComment("c", 3), now)

	if got := q.position("b"); got != 1 {
		t.Errorf("position(b) = %d, want 1", got)
	}
	if got := q.position("c"); got != 2 {
		t.Errorf("position(c) = %d, want 2", got)
	}
	if got := q.position("a"); got != 3 {
		t.Errorf("position(a) = %d, want 3", got)
	}
	if got := q.position("missing"); got != 0 {
		t.Errorf("position(missing) = %d, want 0", got)
	}

	if !q.remove("c") {
		t.Fatal("remove(c) = false, want true")
	}
	if q.remove("c") {
		t.Fatal("second remove(c) = true, want false")
	}
	if got := q.position("a"); got != 2 {
		t.Errorf("position(a) after remove = %d, want 2", got)
	}
}

func TestDelayQueue_SnapshotAndClear(t *testing.T) {
	t.Parallel()

	q := newDelayQueue()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	q.push(queueComment("a", 1), now)
	q.push(queueComment("b", 5), now.Add(time.Second))
	q.push(queueComment("c", 5), now)

	snap := q.snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot() returned %d entries, want 3", len(snap))
	}
	wantOrder := []string{"b", "c", "a"}
	for i, e := range snap {
		if e.comment.ID != wantOrder[i] {
			t.Errorf("snapshot[%d] = %s, want %s", i, e.comment.ID, wantOrder[i])
		}
	}

	if removed := q.clear(); removed != 3 {
		t.Errorf("clear() = %d, want 3", removed)
	}
	if q.len() != 0 || q.contains("b") {
		t.Error("queue should be empty after clear")
	}
	if removed := q.clear(); removed != 0 {
		t.Errorf("clear() on empty queue = %d, want 0", removed)
	}
}

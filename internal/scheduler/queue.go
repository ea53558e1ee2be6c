package scheduler

import (
	"container/heap"
	"sort"
	"time"

	"github.com/streamware/chat-relay/internal/domain"
)

// entry is a queued comment together with its scheduling state. seq is
// assigned once at enqueue and survives re-insertion, so a retried comment
// keeps its place relative to later arrivals of the same priority.
type entry struct {
	comment    domain.Comment
	eligibleAt time.Time
	seq        uint64
	heapIdx    int
}

func entryBefore(a, b *entry) bool {
	if a.comment.Priority != b.comment.Priority {
		return a.comment.Priority > b.comment.Priority
	}
	return a.seq < b.seq
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return entryBefore(h[i], h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.heapIdx = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}

// delayQueue orders comments by priority, highest first, with arrival
// order breaking ties. Every entry carries an eligibility time and the
// queue surrenders its head only once that time has passed, so a deferred
// head holds everything behind it. Not safe for concurrent use; the
// scheduler serializes access.
type delayQueue struct {
	heap    entryHeap
	byID    map[string]*entry
	nextSeq uint64
}

func newDelayQueue() *delayQueue {
	return &delayQueue{byID: make(map[string]*entry)}
}

func (q *delayQueue) len() int { return len(q.heap) }

func (q *delayQueue) contains(id string) bool {
	_, ok := q.byID[id]
	return ok
}

// push adds a fresh comment, assigning its arrival sequence.
func (q *delayQueue) push(c domain.Comment, eligibleAt time.Time) {
	e := &entry{comment: c, eligibleAt: eligibleAt, seq: q.nextSeq}
	q.nextSeq++
	q.byID[c.ID] = e
	heap.Push(&q.heap, e)
}

// reinsert returns a previously popped entry with a new eligibility time,
// keeping its original sequence and priority.
func (q *delayQueue) reinsert(e *entry, eligibleAt time.Time) {
	e.eligibleAt = eligibleAt
	q.byID[e.comment.ID] = e
	heap.Push(&q.heap, e)
}

// popEligible removes and returns the head entry once its eligibility time
// has passed. It returns nil when the queue is empty or the head is still
// waiting.
func (q *delayQueue) popEligible(now time.Time) *entry {
	if len(q.heap) == 0 {
		return nil
	}
	head := q.heap[0]
	if head.eligibleAt.After(now) {
		return nil
	}
	heap.Pop(&q.heap)
	delete(q.byID, head.comment.ID)
	return head
}

// remove deletes the entry with the given id, reporting whether it was
// present.
func (q *delayQueue) remove(id string) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, e.heapIdx)
	delete(q.byID, id)
	return true
}

func (q *delayQueue) clear() int {
	removed := len(q.heap)
	q.heap = nil
	q.byID = make(map[string]*entry)
	return removed
}

// position returns the 1-based place of the given entry in delivery order,
// or 0 when it is not queued.
func (q *delayQueue) position(id string) int {
	e, ok := q.byID[id]
	if !ok {
		return 0
	}
	pos := 1
	for _, other := range q.heap {
		if other != e && entryBefore(other, e) {
			pos++
		}
	}
	return pos
}

// snapshot returns the queued entries in delivery order.
func (q *delayQueue) snapshot() []*entry {
	entries := make([]*entry, len(q.heap))
	copy(entries, q.heap)
	sort.Slice(entries, func(i, j int) bool { return entryBefore(entries[i], entries[j]) })
	return entries
}

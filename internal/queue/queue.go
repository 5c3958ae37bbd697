// Package queue implements the ready queue and event queue of spec.md
// §4.3/§4.4: the ready queue is rebuilt every cycle with mem/long-latency/
// control operations prioritized ahead of age-ordered others; the event
// queue is a time-sorted min-heap of in-flight completions, ties broken by
// insertion order (§5).
//
// The two-tier priority idea is adapted from the teacher's
// proto/ooo/ooo.go PriorityClass/SelectIssueBundle (critical-path-first
// scheduling), generalized from a fixed 32-bit bitmap window to an
// arbitrary RUU-sized slice sorted by the policy spec.md §4.3 actually
// specifies (mem/long-latency/control first, else sequence order) rather
// than the teacher's dependents-based classification.
package queue

import "container/heap"

// Item is one ready-queue entry: an RUU/LSQ slot index plus the
// information needed to apply spec.md's priority ordering.
type Item struct {
	Index       uint32
	Seq         uint64
	Mem         bool
	LongLatency bool
	Ctrl        bool
}

func (it Item) highPriority() bool { return it.Mem || it.LongLatency || it.Ctrl }

// Ready is the ready queue: rebuilt from scratch each cycle (§4.3).
type Ready struct {
	items []Item
}

// Reset clears the queue so the caller can rebuild it from the current
// RUU/LSQ scan, per "Ready queue is rebuilt each cycle before issue."
func (r *Ready) Reset() { r.items = r.items[:0] }

// Push appends a candidate. Ordering is finalized by Drain, not here, so
// Push may be called in any scan order.
func (r *Ready) Push(it Item) { r.items = append(r.items, it) }

// Len reports how many candidates are queued.
func (r *Ready) Len() int { return len(r.items) }

// Drain returns up to width items in priority order (mem/long-latency/
// control first, then sequence order within each tier) and removes them
// from the queue. Items left over (beyond width) remain queued for re-scan
// next cycle -- though in practice the engine rebuilds the whole queue
// every cycle, so leftover items are simply not re-pushed and get
// re-discovered on the next scan.
func (r *Ready) Drain(width int) []Item {
	sorted := r.sortedView()
	if width > len(sorted) {
		width = len(sorted)
	}
	out := make([]Item, width)
	copy(out, sorted[:width])
	r.items = sorted[width:]
	return out
}

// Peek returns the full current priority-ordered view without draining.
func (r *Ready) Peek() []Item { return r.sortedView() }

func (r *Ready) sortedView() []Item {
	out := make([]Item, len(r.items))
	copy(out, r.items)
	// stable insertion sort: high priority first, then by ascending Seq.
	// Window sizes are small (tens of entries), so O(n^2) is fine and keeps
	// the ordering rule legible, matching the spec's own emphasis on
	// ordering discipline over raw throughput.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && less(out[j], out[j-1]) {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func less(a, b Item) bool {
	ap, bp := a.highPriority(), b.highPriority()
	if ap != bp {
		return ap // high priority sorts first
	}
	return a.Seq < b.Seq
}

// Requeue re-enqueues an item that issued but could not secure a
// functional unit, for consideration next cycle (§4.3 "An instruction that
// cannot secure a functional unit is re-enqueued onto the ready queue for
// the next cycle").
func (r *Ready) Requeue(it Item) { r.Push(it) }

// Event is one in-flight operation's scheduled completion (§3 RS-link
// "completion-cycle" payload, §4.4).
type Event struct {
	Cycle    uint64
	Seq      uint64 // insertion-order tiebreak, monotonically assigned
	Index    uint32
	inserted uint64 // internal heap bookkeeping: global insertion counter
}

// eventHeap is the container/heap-backed min-heap, ordered by (Cycle, then
// insertion order) per §5 "Event queue is time-sorted; ties broken by
// insertion order."
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Cycle != h[j].Cycle {
		return h[i].Cycle < h[j].Cycle
	}
	return h[i].inserted < h[j].inserted
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EventQueue is the time-ordered list of scheduled completions.
type EventQueue struct {
	h       eventHeap
	counter uint64
}

// Schedule inserts a completion event at the given cycle.
func (q *EventQueue) Schedule(cycle uint64, index uint32) {
	q.counter++
	heap.Push(&q.h, Event{Cycle: cycle, Seq: q.counter, Index: index, inserted: q.counter})
}

// Len reports how many events are pending.
func (q *EventQueue) Len() int { return q.h.Len() }

// PopDue pops and returns every event due at or before now (§4.4 "Pops all
// events due at the current cycle"). Events scheduled for a later cycle are
// left untouched.
func (q *EventQueue) PopDue(now uint64) []Event {
	var due []Event
	for q.h.Len() > 0 && q.h[0].Cycle <= now {
		due = append(due, heap.Pop(&q.h).(Event))
	}
	return due
}

// NextCompleted returns the earliest pending event without popping it, or
// ok=false if the queue is empty. It does not compare against the current
// cycle: an event scheduled for a future cycle is returned with ok=true, so
// callers use PopDue(now) to take only the events that are due.
func (q *EventQueue) NextCompleted() (Event, bool) {
	if q.h.Len() == 0 {
		return Event{}, false
	}
	return q.h[0], true
}

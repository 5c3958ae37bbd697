// Package thread implements the thread table and fork controller of
// spec.md §2/§3/§4.6: fixed-size thread-slot pool, fork-counter lineage
// tracking, round-robin fetch arbitration with a quota, and the cascading
// invalidation predicate that is the sole mechanism distinguishing
// surviving siblings from dying descendants.
//
// Grounded directly on sim-outorder.c's struct thread_state and
// parent_fork_counters machinery -- the teacher (Maemo32-SupraX_Legacy) has
// no multithreading concept at all, so spec.md/the original C source are
// the primary authority for this package.
package thread

import "github.com/pkg/errors"

// ErrNoFreeThread is returned by Fork when every thread slot is occupied;
// per spec.md §4.2 step 3 this is not fatal -- "If no thread slot is free,
// the fork is skipped and only the in-place mis-speculation proceeds."
var ErrNoFreeThread = errors.New("thread: no free thread slot")

// Slot is one thread's state, per spec.md §3 "Thread slot".
type Slot struct {
	InUse         bool
	KeepFetching  bool
	FetchPC       uint64
	FetchPredPC   uint64
	SpecMode      bool
	SpecLevel     int // -1 == non-speculative
	ForkCounter   int
	ParentForkCtr []int // parent_fork_counters[t], -1 if t is not an ancestor
}

// Table owns the fixed MAX_THREADS pool plus round-robin fetch arbitration
// state (spec.md §2 "Thread table + fork controller", §4.1).
type Table struct {
	slots              []Slot
	maxThreads         int
	current            int // current_fetching_thread
	fetchesLeft        int
	maxFetchesBeforeSw int
}

// NewTable allocates a thread table sized maxThreads, with thread 0
// pre-allocated non-speculative and fetching, matching sim-outorder.c's
// thread_states_init.
func NewTable(maxThreads, maxFetchesBeforeSwitch int) *Table {
	t := &Table{
		slots:              make([]Slot, maxThreads),
		maxThreads:         maxThreads,
		maxFetchesBeforeSw: maxFetchesBeforeSwitch,
		fetchesLeft:        maxFetchesBeforeSwitch,
	}
	for i := range t.slots {
		t.slots[i] = Slot{
			SpecLevel:     -1,
			KeepFetching:  true,
			ParentForkCtr: newParentCtrs(maxThreads),
		}
	}
	t.slots[0].InUse = true
	return t
}

func newParentCtrs(n int) []int {
	c := make([]int, n)
	for i := range c {
		c[i] = -1
	}
	return c
}

// Slot returns a pointer to thread id's state.
func (t *Table) Slot(id int) *Slot { return &t.slots[id] }

// MaxThreads returns the table's fixed capacity.
func (t *Table) MaxThreads() int { return t.maxThreads }

// IsDescendant reports whether c is a descendant of t at fork-epoch e, per
// spec.md §3's fork lineage invariant: c.parent_fork_counters[t] == e. Used
// both for the "== e" exact test and, by callers, the ">= e" recovery
// predicate.
func (tbl *Table) IsDescendant(child, ancestor, epoch int) bool {
	if child == ancestor {
		return false
	}
	return tbl.slots[child].ParentForkCtr[ancestor] == epoch
}

// MatchesRecoveryPredicate reports whether candidate must be invalidated
// when origin mispredicts at originForkCounter, per spec.md §3/§4.6: every
// c (c != origin) with parent_fork_counters[origin] >= epoch.
func (tbl *Table) MatchesRecoveryPredicate(candidate, origin, epoch int) bool {
	if candidate == origin {
		return false
	}
	return tbl.slots[candidate].ParentForkCtr[origin] >= epoch
}

// Fork allocates a free thread slot as a child of parent, per spec.md
// §4.2 step 3: the new thread inherits spec_mode/spec_level from the
// parent at its current level, its parent_fork_counters are copied from the
// parent and then [parent] is set to the parent's current fork-counter, and
// the parent's fork-counter is incremented. Returns the new thread id.
func (tbl *Table) Fork(parent int) (int, error) {
	child := -1
	for i := range tbl.slots {
		if !tbl.slots[i].InUse {
			child = i
			break
		}
	}
	if child == -1 {
		return -1, ErrNoFreeThread
	}

	p := &tbl.slots[parent]
	c := &tbl.slots[child]

	c.InUse = true
	c.KeepFetching = true
	c.SpecMode = p.SpecMode
	c.SpecLevel = p.SpecLevel
	c.ForkCounter = 0
	copy(c.ParentForkCtr, p.ParentForkCtr)
	c.ParentForkCtr[parent] = p.ForkCounter
	p.ForkCounter++

	return child, nil
}

// Free releases thread id back to the pool and resets its ancestry, per
// spec.md §4.6 ("in_use <- false and all its parent_fork_counters reset to
// -1").
func (tbl *Table) Free(id int) {
	s := &tbl.slots[id]
	s.InUse = false
	s.KeepFetching = false
	s.SpecMode = false
	s.SpecLevel = -1
	s.ForkCounter = 0
	for i := range s.ParentForkCtr {
		s.ParentForkCtr[i] = -1
	}
}

// Recover invalidates every thread matching the cascading-invalidation
// predicate against origin/epoch (spec.md §4.6, invariant 4), returning the
// ids that were freed.
func (tbl *Table) Recover(origin, epoch int) []int {
	var freed []int
	for i := range tbl.slots {
		if tbl.MatchesRecoveryPredicate(i, origin, epoch) {
			tbl.Free(i)
			freed = append(freed, i)
		}
	}
	return freed
}

// NextFetchThread runs the round-robin fetch arbiter (spec.md §4.1): it
// returns the thread id that should be fetched from this cycle, advancing
// past threads that are not in_use/keep_fetching and respecting the
// max_fetches_before_switch quota. Returns ok=false if no thread is
// eligible to fetch.
func (tbl *Table) NextFetchThread() (id int, ok bool) {
	if tbl.eligible(tbl.current) && tbl.fetchesLeft > 0 {
		return tbl.current, true
	}
	for i := 1; i <= tbl.maxThreads; i++ {
		cand := (tbl.current + i) % tbl.maxThreads
		if tbl.eligible(cand) {
			tbl.current = cand
			tbl.fetchesLeft = tbl.maxFetchesBeforeSw
			return cand, true
		}
	}
	return 0, false
}

func (tbl *Table) eligible(id int) bool {
	s := &tbl.slots[id]
	return s.InUse && s.KeepFetching
}

// ConsumeFetch charges one fetch against the current thread's quota, per
// the max_fetches_before_switch quantum (§4.1).
func (tbl *Table) ConsumeFetch() {
	if tbl.fetchesLeft > 0 {
		tbl.fetchesLeft--
	}
}

// ForceSwitch immediately exhausts the current thread's quota, used when
// fetch reaches a control instruction or misses in the I-cache/ITLB and so
// terminates the fetch group early
// (spec.md §4.1: "one taken-branch per cycle per thread").
func (tbl *Table) ForceSwitch() {
	tbl.fetchesLeft = 0
}

// Package createvec implements the create vector of spec.md §3: the
// logical-register -> producer map that implements renaming, with separate
// architectural and per-thread-per-level speculative views.
//
// Adapted from the teacher's OutOfOrderScheduler.rat/ratValid rename table
// (SupraX.go) -- a single flat array mapping architectural register to
// in-flight producer tag -- generalized here into the two-tier view spec.md
// §3 actually requires (one architectural view, plus a speculative view per
// (thread, level)).
package createvec

import "github.com/eagerx-sim/eagerx/internal/rslink"

// Producer names the in-flight entry that will write a logical register,
// and which of its (up to MAX_ODEPS) output operands carries the value.
type Producer struct {
	Entry       rslink.Ref
	OutputIndex int
}

// empty reports whether p denotes "no in-flight producer" (value lives in
// the register file).
func (p Producer) empty() bool { return p.Entry.IsZero() }

// View is a single logical-register -> Producer map (either the
// architectural view, or one (thread, level) speculative view).
type View struct {
	entries map[uint64]Producer
}

func newView() *View { return &View{entries: make(map[uint64]Producer)} }

// Lookup returns the current producer of reg, or ok=false if the register's
// value currently lives in the register file.
func (v *View) Lookup(reg uint64) (Producer, bool) {
	p, ok := v.entries[reg]
	if !ok || p.empty() {
		return Producer{}, false
	}
	return p, true
}

// Publish installs entry as the new producer of reg (dispatch's "Install
// outputs by overwriting the create vector's entry", §4.2 step 5).
func (v *View) Publish(reg uint64, entry rslink.Ref, outputIndex int) {
	v.entries[reg] = Producer{Entry: entry, OutputIndex: outputIndex}
}

// Demote clears reg's producer entry if (and only if) it is still the
// entry named by ref -- writeback's "demote published producers to the
// register file" (§5), which must not clobber a newer producer that has
// since overwritten the same register.
func (v *View) Demote(reg uint64, ref rslink.Ref) {
	if p, ok := v.entries[reg]; ok && p.Entry == ref {
		delete(v.entries, reg)
	}
}

// ClearProducer removes every register entry that currently names ref,
// regardless of which register it is -- used when an RUU entry is squashed
// or completes and writeback must "Clear all references to this entry from
// every thread's speculative create-vector levels so that stale renames do
// not point at a dead producer" (§4.4).
func (v *View) ClearProducer(ref rslink.Ref) {
	for reg, p := range v.entries {
		if p.Entry == ref {
			delete(v.entries, reg)
		}
	}
}

// levelKey identifies one (thread, level) speculative view.
type levelKey struct {
	thread int
	level  int
}

// CreateVector is the full two-tier structure: one architectural View plus
// lazily-created speculative views per (thread, level), matching §9's
// "lazily allocate only the levels actually entered" guidance.
type CreateVector struct {
	arch  *View
	specs map[levelKey]*View
}

// NewCreateVector builds an empty create vector.
func NewCreateVector() *CreateVector {
	return &CreateVector{arch: newView(), specs: make(map[levelKey]*View)}
}

// Architectural returns the non-speculative view.
func (c *CreateVector) Architectural() *View { return c.arch }

// Speculative returns the (thread, level) view, creating it on first use.
func (c *CreateVector) Speculative(thread, level int) *View {
	k := levelKey{thread, level}
	v, ok := c.specs[k]
	if !ok {
		v = newView()
		c.specs[k] = v
	}
	return v
}

// ViewFor returns the architectural view if specMode is false, else the
// (thread, level) speculative view -- the single call dispatch/rename use
// to pick "the appropriate view" per spec.md §3.
func (c *CreateVector) ViewFor(specMode bool, thread, level int) *View {
	if !specMode {
		return c.arch
	}
	return c.Speculative(thread, level)
}

// ClearProducerEverywhere removes ref from the architectural view and every
// existing speculative view -- writeback's full sweep (§4.4), since a
// squashed/completed entry's stale rename could be sitting in any thread's
// speculative level.
func (c *CreateVector) ClearProducerEverywhere(ref rslink.Ref) {
	c.arch.ClearProducer(ref)
	for _, v := range c.specs {
		v.ClearProducer(ref)
	}
}

// DropThreadLevelsAbove discards every speculative view belonging to
// thread at a level deeper than keep, used when a thread's speculation
// rolls back (§4.6) so stale per-level views don't linger and leak memory.
func (c *CreateVector) DropThreadLevelsAbove(thread, keep int) {
	for k := range c.specs {
		if k.thread == thread && k.level > keep {
			delete(c.specs, k)
		}
	}
}

// DropThread discards every speculative view belonging to thread, used
// when the thread itself is freed (§4.6).
func (c *CreateVector) DropThread(thread int) {
	for k := range c.specs {
		if k.thread == thread {
			delete(c.specs, k)
		}
	}
}

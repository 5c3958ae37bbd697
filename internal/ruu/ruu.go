// Package ruu implements the reorder buffer and load/store queue of
// spec.md §3/§4.2-§4.6: a fixed-size circular window of in-flight
// operations, identified externally by (ring position, generation tag) so
// that squash is an O(1) tag bump rather than a pointer chase.
//
// Grounded on the teacher's proto/ooo/ooo.go InstructionWindow -- a
// fixed-size ring of Operation records -- generalized from a 32-slot
// bitmap window to a configurable power-of-two capacity, and with the
// teacher's O(n^2) dependency matrix replaced by the create-vector +
// RS-link producer/consumer linking spec.md §3/§4.2 mandates. The
// recovery walk (Recover) has no teacher analogue at all: it follows
// sim-outorder.c's ruu_recover directly, since the teacher never
// implements multithreaded speculation or squash.
package ruu

import (
	"github.com/eagerx-sim/eagerx/internal/isa"
	"github.com/eagerx-sim/eagerx/internal/predictor"
	"github.com/eagerx-sim/eagerx/internal/rslink"
	"github.com/pkg/errors"
)

// ErrRingFull is returned by Alloc when the ring has no free slot (§4.2:
// "stopping if the RUU or LSQ is full" -- dispatch treats this as a stall,
// not a fatal error).
var ErrRingFull = errors.New("ruu: ring full")

// Entry is one RUU or LSQ slot (spec.md §3): the two rings share this
// record type, distinguished by which ring an instance lives in and by the
// EAComp/InLSQ flags marking the two halves of a split memory op.
type Entry struct {
	Ref rslink.Ref

	Opcode      isa.Opcode
	FU          isa.FUClass
	Ctrl        bool
	Mem         bool
	LongLatency bool

	PC, NextPC, PredPC uint64
	ThreadID           int
	SpecMode           bool
	SpecLevel          int
	ForkCounter        int

	EAComp bool // this (RUU) entry is the address-gen half of a memory op
	InLSQ  bool // this (LSQ) entry is the other half, consuming DTMP

	RecoverInst  bool
	TriggersFork bool
	ForkID       int

	Seq           uint64
	DispatchCycle uint64
	Queued        bool
	Issued    bool
	Completed bool
	Squashed  bool

	NumIn  int // how many of InputReady/InputValue are actually in use
	NumOut int // how many of OutputReg/OutputLinkHead are actually in use

	InputReady [isa.MaxIDeps]bool
	InputValue [isa.MaxIDeps]uint64

	OutputReg      [isa.MaxODeps]uint16
	OutputValid    [isa.MaxODeps]bool
	OutputLinkHead [isa.MaxODeps]uint32

	EffAddr         uint64
	PredictorCookie predictor.Cookie
	RASIndex        int

	StoreValue      uint64
	StoreValueReady bool
}

// slot is the ring's physical storage: a generation tag plus the entry
// payload. The tag is bumped on every squash or retire so that a Ref taken
// out before either event reads as stale without the ring touching it.
type slot struct {
	tag   uint32
	live  bool
	entry Entry
}

// Ring is a fixed-capacity circular queue of Entry slots, used for both the
// RUU and the LSQ (spec.md §3 "RUU/LSQ head-tail-num triples").
type Ring struct {
	slots   []slot
	head    int
	num     int
	nextTag uint32
	seqGen  uint64
	links   *rslink.LinkPool
}

// NewRing allocates a ring of the given power-of-two capacity, backed by
// links for output-dependent chain bookkeeping.
func NewRing(capacity int, links *rslink.LinkPool) *Ring {
	return &Ring{slots: make([]slot, capacity), nextTag: 1, links: links}
}

// Cap returns the ring's fixed capacity.
func (r *Ring) Cap() int { return len(r.slots) }

// Num returns the number of occupied slots (spec.md's "num").
func (r *Ring) Num() int { return r.num }

// Full reports whether the ring has no free slot.
func (r *Ring) Full() bool { return r.num == len(r.slots) }

// Empty reports whether the ring holds no entries.
func (r *Ring) Empty() bool { return r.num == 0 }

// Head returns a pointer to the oldest live entry plus its ref. Callers
// must check ok before using the entry.
func (r *Ring) Head() (*Entry, rslink.Ref, bool) {
	if r.num == 0 {
		return nil, rslink.Ref{}, false
	}
	s := &r.slots[r.head]
	return &s.entry, rslink.Ref{Index: uint32(r.head), Tag: s.tag}, true
}

// NextSeq reserves the next monotonic sequence number for a new entry
// (spec.md §3 "seq (monotonic sequence for ordering)").
func (r *Ring) NextSeq() uint64 {
	r.seqGen++
	return r.seqGen
}

// Alloc installs entry at the ring's tail (dispatch, §4.2 step 4) and
// returns the entry's ref. Fails with ErrRingFull if the ring is at
// capacity -- dispatch must stall, per §4.2, not fault.
func (r *Ring) Alloc(entry Entry) (rslink.Ref, error) {
	if r.Full() {
		return rslink.Ref{}, ErrRingFull
	}
	pos := (r.head + r.num) % len(r.slots)
	tag := r.nextTag
	r.nextTag++
	entry.Ref = rslink.Ref{Index: uint32(pos), Tag: tag}
	r.slots[pos] = slot{tag: tag, live: true, entry: entry}
	r.num++
	return entry.Ref, nil
}

// Valid reports whether ref still names a live, same-generation slot.
func (r *Ring) Valid(ref rslink.Ref) bool {
	if ref.IsZero() || int(ref.Index) >= len(r.slots) {
		return false
	}
	s := &r.slots[ref.Index]
	return s.live && s.tag == ref.Tag
}

// At returns a pointer to ref's entry if still valid.
func (r *Ring) At(ref rslink.Ref) (*Entry, bool) {
	if !r.Valid(ref) {
		return nil, false
	}
	return &r.slots[ref.Index].entry, true
}

// Squash marks ref's entry squashed and bumps its tag, invalidating every
// outstanding RS-link that referred to it (spec.md §4.6: "bump tag ...
// set squashed = true, release all its output-dependent RS-links"). The
// slot remains occupied in the ring until Retire walks over it -- squash
// does not shrink num.
func (r *Ring) Squash(ref rslink.Ref) {
	if !r.Valid(ref) {
		return
	}
	s := &r.slots[ref.Index]
	s.entry.Squashed = true
	for i := range s.entry.OutputLinkHead {
		r.links.ReleaseChain(s.entry.OutputLinkHead[i])
		s.entry.OutputLinkHead[i] = 0
	}
	s.tag = r.nextTag
	r.nextTag++
	s.entry.Ref.Tag = s.tag
}

// Retire pops the head entry (commit, §4.5), bumping its tag so stale refs
// to a just-retired slot are recognized the same way squashed ones are.
// Callers must have already verified the head is eligible to retire.
func (r *Ring) Retire() (Entry, bool) {
	if r.num == 0 {
		return Entry{}, false
	}
	s := &r.slots[r.head]
	retired := s.entry
	s.live = false
	s.tag = r.nextTag
	r.nextTag++
	r.head = (r.head + 1) % len(r.slots)
	r.num--
	return retired, true
}

// Walk calls fn for every live entry from oldest to newest, stopping early
// if fn returns false. Used by lsq_refresh and by diagnostics.
func (r *Ring) Walk(fn func(ref rslink.Ref, e *Entry) bool) {
	for i := 0; i < r.num; i++ {
		pos := (r.head + i) % len(r.slots)
		s := &r.slots[pos]
		if !s.live {
			continue
		}
		ref := rslink.Ref{Index: uint32(pos), Tag: s.tag}
		if !fn(ref, &s.entry) {
			return
		}
	}
}

// RecoveryPredicate reports whether a candidate entry belonging to
// candidateThread must be squashed when originThread mispredicts at
// originForkCounter, per spec.md §4.6: thread_id == origin_thread, or the
// thread's ancestry says it forked from origin at/after the mispredicted
// epoch. The predicate is supplied by the caller (internal/thread owns
// ancestry bookkeeping) so this package stays decoupled from thread.Table.
type RecoveryPredicate func(candidateThread int) bool

// Recover walks the ring from the tail back toward (but not including)
// branchRef, squashing every entry whose thread matches pred (§4.6). It
// returns the refs of every entry squashed, newest first, so callers can
// drive create-vector cleanup and statistics. branchRef itself is left
// untouched: it is the triggering instruction and is handled by the
// caller's writeback/recovery logic separately.
func (r *Ring) Recover(branchRef rslink.Ref, pred RecoveryPredicate) []rslink.Ref {
	var squashed []rslink.Ref
	for i := r.num - 1; i >= 0; i-- {
		pos := (r.head + i) % len(r.slots)
		s := &r.slots[pos]
		if !s.live {
			continue
		}
		ref := rslink.Ref{Index: uint32(pos), Tag: s.tag}
		if ref == branchRef {
			break
		}
		if !pred(s.entry.ThreadID) {
			continue
		}
		r.Squash(ref)
		squashed = append(squashed, ref)
	}
	return squashed
}

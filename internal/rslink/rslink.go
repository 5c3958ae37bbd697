// Package rslink implements the tagged-arena reference scheme that makes
// squash an O(1) operation: every cross-structure pointer in the engine
// (output-dependent chains, ready-queue entries, event-queue entries) is a
// Ref carrying the index it points at plus a snapshot of that slot's tag.
// A slot's tag is bumped every time it is squashed or freed; a stale Ref is
// recognized without ever touching the thing it used to point at.
package rslink

import "github.com/pkg/errors"

// ErrPoolExhausted is returned when an Arena's free list runs dry. The spec
// treats this as a resource-exhaustion configuration error (§7): the pool is
// under-sized, not a condition the engine can recover from at runtime.
var ErrPoolExhausted = errors.New("rslink: arena exhausted")

// Ref is a tagged reference into an Arena. The zero Ref is never valid
// (Tag 0 is never issued to a live slot — see NewArena).
type Ref struct {
	Index uint32
	Tag    uint32
}

// IsZero reports whether r is the zero Ref (Tag 0), which never refers to a
// live slot; to test a Ref against an arena, use Arena.Valid(ref).
func (r Ref) IsZero() bool { return r.Tag == 0 }

// slot holds a single arena entry: the tag that identifies its current
// generation, and whether it is presently allocated.
type slot struct {
	tag  uint32
	live bool
}

// Arena is a fixed-capacity pool of tagged slots. It is the generic
// substrate beneath RUU entries, LSQ entries, and RS-link dependency nodes:
// anything that needs "allocate, hand out a reference, free in O(1) without
// chasing outstanding references" is built on top of one Arena.
type Arena struct {
	slots []slot
	free  []uint32 // stack of free indices
	next  uint32    // tag counter, monotonically increasing
}

// NewArena creates an arena with the given fixed capacity.
func NewArena(capacity int) *Arena {
	a := &Arena{
		slots: make([]slot, capacity),
		free:  make([]uint32, capacity),
		next:  1, // 0 is reserved so the zero Ref is always invalid
	}
	for i := 0; i < capacity; i++ {
		a.free[i] = uint32(capacity - 1 - i)
	}
	return a
}

// Cap returns the arena's fixed capacity.
func (a *Arena) Cap() int { return len(a.slots) }

// Alloc reserves a free slot and returns a fresh Ref to it. Returns
// ErrPoolExhausted if no slot is free (§7 resource exhaustion).
func (a *Arena) Alloc() (Ref, error) {
	if len(a.free) == 0 {
		return Ref{}, ErrPoolExhausted
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	tag := a.next
	a.next++
	a.slots[idx] = slot{tag: tag, live: true}
	return Ref{Index: idx, Tag: tag}, nil
}

// Free releases a slot back to the pool and bumps its tag, invalidating
// every outstanding Ref to it in O(1) without touching those refs.
func (a *Arena) Free(idx uint32) {
	s := &a.slots[idx]
	if !s.live {
		return
	}
	s.live = false
	s.tag = a.next
	a.next++
	a.free = append(a.free, idx)
}

// Squash invalidates the slot at idx without returning it to the free list
// yet (used when the owning structure wants to keep the slot occupied —
// e.g. an RUU entry squashed in place still occupies its ring position
// until it retires). It still bumps the generation so every Ref taken out
// before the squash reads as stale from here on.
func (a *Arena) Squash(idx uint32) {
	a.slots[idx].tag = a.next
	a.next++
}

// Valid reports whether ref still refers to a live, same-generation slot.
func (a *Arena) Valid(ref Ref) bool {
	if ref.IsZero() || int(ref.Index) >= len(a.slots) {
		return false
	}
	s := a.slots[ref.Index]
	return s.live && s.tag == ref.Tag
}

// CurrentTag returns the tag presently stamped on idx, for constructing new
// Refs to an existing live slot (e.g. dependency links created after the
// slot was allocated).
func (a *Arena) CurrentTag(idx uint32) uint32 { return a.slots[idx].tag }

// MakeRef builds a Ref to idx using the slot's current tag. Panics if idx is
// not live — callers must only link to slots they know are allocated.
func (a *Arena) MakeRef(idx uint32) Ref {
	s := a.slots[idx]
	if !s.live {
		panic("rslink: MakeRef on dead slot")
	}
	return Ref{Index: idx, Tag: s.tag}
}

// Payload discriminates what an RS-link node is carrying, per spec.md §3.
type Payload int

const (
	PayloadCompletionCycle Payload = iota
	PayloadSequence
	PayloadOperandIndex
)

// Link is a single RS-link node: a reference to a target slot, whose Tag is
// the snapshot of the target's tag, plus a discriminated payload. Links are
// themselves pooled through a dedicated LinkPool (MAX_RS_LINKS in the
// spec's vocabulary) so that the engine never allocates one on the Go heap
// per dependency edge.
type Link struct {
	Next    uint32 // index of next Link in the owning chain, 0 = none (Links are 1-indexed in the pool)
	Target  Ref
	Payload Payload
	Operand int // interpretation depends on Payload
}

// LinkPool is the fixed-capacity free list of Link nodes backing every
// output-dependent chain in the engine (the ready and event queues keep
// their Refs in engine-side maps, not in links). Exhaustion is fatal (§5 "Resource acquisition discipline", §7).
type LinkPool struct {
	links []Link
	free  []uint32
}

// NewLinkPool creates a pool with capacity links (MAX_RS_LINKS), 1-indexed
// so that 0 can serve as the "no next" sentinel.
func NewLinkPool(capacity int) *LinkPool {
	p := &LinkPool{
		links: make([]Link, capacity+1),
		free:  make([]uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.free[i] = uint32(capacity - i)
	}
	return p
}

// Get returns a node the Free list can be empty on exhaustion.
func (p *LinkPool) Get(target Ref, payload Payload, operand int) (uint32, error) {
	if len(p.free) == 0 {
		return 0, ErrPoolExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.links[idx] = Link{Target: target, Payload: payload, Operand: operand}
	return idx, nil
}

// Put returns a node to the free list.
func (p *LinkPool) Put(idx uint32) {
	if idx == 0 {
		return
	}
	p.links[idx] = Link{}
	p.free = append(p.free, idx)
}

// At returns the link stored at idx (idx must be non-zero and allocated).
func (p *LinkPool) At(idx uint32) *Link { return &p.links[idx] }

// ReleaseChain walks a singly-linked chain of Link indices starting at head
// and frees every node. Used when an RUU entry is
// squashed and must release all its output-dependent links (§4.6).
func (p *LinkPool) ReleaseChain(head uint32) {
	for head != 0 {
		next := p.links[head].Next
		p.Put(head)
		head = next
	}
}

// PushChain prepends a new link carrying (target, payload, operand) onto
// the chain whose current head is *head, updating *head in place. Returns
// the new link's index.
func (p *LinkPool) PushChain(head *uint32, target Ref, payload Payload, operand int) (uint32, error) {
	idx, err := p.Get(target, payload, operand)
	if err != nil {
		return 0, err
	}
	p.links[idx].Next = *head
	*head = idx
	return idx, nil
}

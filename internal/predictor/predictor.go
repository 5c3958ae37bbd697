// Package predictor implements the branch-predictor collaborator contract
// of spec.md §6: lookup/update/recover, consumed by fetch (§4.1) and commit
// (§4.5). Strategy selection mirrors the §6 bpred enum (nottaken, taken,
// perfect, bimod, 2lev, comb). The saturating-counter design is adapted from
// the teacher's SupraX.go BranchPredictor; the 2-level/combining schemes are
// informed by the teacher's proto/tage/tage.go geometric-history indexing,
// collapsed to the two-table granularity sim-outorder.c actually specifies.
package predictor

// Class selects the predictor strategy (§6 bpred enum).
type Class string

const (
	ClassNotTaken Class = "nottaken"
	ClassTaken    Class = "taken"
	ClassPerfect  Class = "perfect"
	ClassBimodal  Class = "bimod"
	ClassTwoLevel Class = "2lev"
	ClassCombining Class = "comb"
)

// SpecUpdate selects when speculative predictor state updates fire (§6
// bpred:spec_update enum).
type SpecUpdate string

const (
	SpecUpdateID SpecUpdate = "ID" // at dispatch/decode
	SpecUpdateWB SpecUpdate = "WB" // at writeback
	SpecUpdateCT SpecUpdate = "CT" // at commit (non-speculative only)
)

// Cookie is opaque per-prediction state threaded from lookup through to the
// matching update call, as spec.md §6's interface requires.
type Cookie struct {
	class   Class
	bimIdx  uint32
	histIdx uint32
	tag1Idx uint32
	tag2Idx uint32
	usedT2  bool
}

// Predictor is the interface the engine consumes; all strategies below
// implement it, so fetch/commit code never branches on Class directly.
type Predictor interface {
	// Lookup returns the predicted target PC for a control instruction at
	// pc with (statically known) fall-through/target candidateTarget, and a
	// cookie to hand back on Update. isCall/isReturn drive RAS push/pop.
	Lookup(pc, candidateTarget uint64, isCall, isReturn bool, rasIdx *int) (predictedPC uint64, cookie Cookie)
	// Update records the actual outcome of a previously predicted branch.
	Update(pc, target uint64, taken, predTaken, correct bool, cookie Cookie)
	// Recover restores predictor state (in particular the RAS) to what it
	// was at ras_idx, on a mispredict recovery (§4.6).
	Recover(pc uint64, rasIdx int)
}

const rasDepth = 8 // spec.md §6 collaborator note; matches sim-outorder.c's default ras_size

// ras is a small fixed-depth return-address stack, snapshotted by index into
// the fetch-queue entry and restored on recovery (SPEC_FULL.md §C.4).
type ras struct {
	stack [rasDepth]uint64
	top   int // next free slot
}

func (r *ras) push(addr uint64) {
	if r.top >= rasDepth {
		// oldest entry silently overwritten -- matches the original's
		// fixed-size circular RAS behavior.
		copy(r.stack[:], r.stack[1:])
		r.stack[rasDepth-1] = addr
		return
	}
	r.stack[r.top] = addr
	r.top++
}

func (r *ras) pop() (uint64, int) {
	idx := r.top
	if r.top == 0 {
		return 0, 0
	}
	r.top--
	return r.stack[r.top], idx
}

func (r *ras) restore(idx int) {
	if idx >= 0 && idx <= rasDepth {
		r.top = idx
	}
}

// satCounter is a 2-bit saturating counter (0-3), predict-taken iff >= 2.
type satCounter uint8

func (c satCounter) taken() bool { return c >= 2 }

func (c *satCounter) update(taken bool) {
	if taken {
		if *c < 3 {
			*c++
		}
	} else {
		if *c > 0 {
			*c--
		}
	}
}

// Static implements always-taken / always-not-taken / perfect strategies.
type Static struct {
	class   Class
	r       ras
	perfect func(pc uint64) uint64 // oracle used only by ClassPerfect
}

// NewStatic builds a Static predictor for not-taken, taken, or perfect. For
// ClassPerfect, oracle must return the architecturally-correct next_PC for
// pc (engines wire this to the already-computed functional-ahead-of-time
// result at dispatch, per §4.2).
func NewStatic(class Class, oracle func(pc uint64) uint64) *Static {
	return &Static{class: class, perfect: oracle}
}

func (s *Static) Lookup(pc, candidateTarget uint64, isCall, isReturn bool, rasIdx *int) (uint64, Cookie) {
	if isCall {
		s.r.push(pc + 4)
	}
	if rasIdx != nil {
		*rasIdx = s.r.top
	}
	switch s.class {
	case ClassTaken:
		if isReturn {
			addr, idx := s.r.pop()
			if rasIdx != nil {
				*rasIdx = idx
			}
			return addr, Cookie{class: s.class}
		}
		return candidateTarget, Cookie{class: s.class}
	case ClassPerfect:
		return s.perfect(pc), Cookie{class: s.class}
	default: // ClassNotTaken
		return pc + 4, Cookie{class: s.class}
	}
}

func (s *Static) Update(pc, target uint64, taken, predTaken, correct bool, cookie Cookie) {}
func (s *Static) Recover(pc uint64, rasIdx int)                                           { s.r.restore(rasIdx) }

// Bimodal is a direct-mapped table of 2-bit saturating counters (§6 bimod),
// adapted from the teacher's BranchPredictor (packed 4-bit counters) to the
// simpler unpacked layout the rest of this module uses; functionally the
// same saturating-counter algorithm.
type Bimodal struct {
	table []satCounter
	mask  uint32
	btb   map[uint64]uint64
	r     ras
}

// NewBimodal creates a bimodal predictor with the given power-of-two table
// size and BTB.
func NewBimodal(size int) *Bimodal {
	return &Bimodal{table: make([]satCounter, size), mask: uint32(size - 1), btb: make(map[uint64]uint64)}
}

func (b *Bimodal) idx(pc uint64) uint32 { return uint32(pc>>2) & b.mask }

func (b *Bimodal) Lookup(pc, candidateTarget uint64, isCall, isReturn bool, rasIdx *int) (uint64, Cookie) {
	if isCall {
		b.r.push(pc + 4)
	}
	if rasIdx != nil {
		*rasIdx = b.r.top
	}
	if isReturn {
		addr, idx := b.r.pop()
		if rasIdx != nil {
			*rasIdx = idx
		}
		return addr, Cookie{class: ClassBimodal}
	}
	i := b.idx(pc)
	c := b.table[i]
	if !c.taken() {
		return pc + 4, Cookie{class: ClassBimodal, bimIdx: i}
	}
	target, ok := b.btb[pc]
	if !ok {
		target = candidateTarget
	}
	return target, Cookie{class: ClassBimodal, bimIdx: i}
}

func (b *Bimodal) Update(pc, target uint64, taken, predTaken, correct bool, cookie Cookie) {
	b.table[cookie.bimIdx].update(taken)
	if taken {
		b.btb[pc] = target
	}
}

func (b *Bimodal) Recover(pc uint64, rasIdx int) { b.r.restore(rasIdx) }

// TwoLevel implements a global-history two-level adaptive predictor (§6
// 2lev): a shift-register of the last historyBits outcomes indexes a table
// of saturating counters, per branch PC XORed with history. Informed by the
// teacher's tage.go multi-table geometric history, collapsed to one history
// register and one table as sim-outorder.c's BPred2Level actually does.
type TwoLevel struct {
	history     uint32
	historyBits uint
	table       []satCounter
	mask        uint32
	btb         map[uint64]uint64
	r           ras
}

// NewTwoLevel creates a 2-level predictor with the given history length
// (bits) and table size (must be a power of two).
func NewTwoLevel(historyBits uint, tableSize int) *TwoLevel {
	return &TwoLevel{
		historyBits: historyBits,
		table:       make([]satCounter, tableSize),
		mask:        uint32(tableSize - 1),
		btb:         make(map[uint64]uint64),
	}
}

func (t *TwoLevel) idx(pc uint64) uint32 {
	return (uint32(pc>>2) ^ t.history) & t.mask
}

func (t *TwoLevel) Lookup(pc, candidateTarget uint64, isCall, isReturn bool, rasIdx *int) (uint64, Cookie) {
	if isCall {
		t.r.push(pc + 4)
	}
	if rasIdx != nil {
		*rasIdx = t.r.top
	}
	if isReturn {
		addr, idx := t.r.pop()
		if rasIdx != nil {
			*rasIdx = idx
		}
		return addr, Cookie{class: ClassTwoLevel}
	}
	i := t.idx(pc)
	c := t.table[i]
	if !c.taken() {
		return pc + 4, Cookie{class: ClassTwoLevel, histIdx: i}
	}
	target, ok := t.btb[pc]
	if !ok {
		target = candidateTarget
	}
	return target, Cookie{class: ClassTwoLevel, histIdx: i}
}

func (t *TwoLevel) Update(pc, target uint64, taken, predTaken, correct bool, cookie Cookie) {
	t.table[cookie.histIdx].update(taken)
	if taken {
		t.btb[pc] = target
	}
	t.history = (t.history << 1) | boolToU32(taken)
	t.history &= (1 << t.historyBits) - 1
}

func (t *TwoLevel) Recover(pc uint64, rasIdx int) { t.r.restore(rasIdx) }

// Combining chooses per-branch between a Bimodal and a TwoLevel component
// using a meta-predictor of saturating counters indexed by PC, mirroring
// sim-outorder.c's BPredComb strategy.
type Combining struct {
	bim    *Bimodal
	two    *TwoLevel
	meta   []satCounter
	mask   uint32
}

// NewCombining builds a combining predictor over fresh Bimodal/TwoLevel
// components and a meta-table of the given size.
func NewCombining(bimSize int, historyBits uint, twoSize int, metaSize int) *Combining {
	return &Combining{
		bim:  NewBimodal(bimSize),
		two:  NewTwoLevel(historyBits, twoSize),
		meta: make([]satCounter, metaSize),
		mask: uint32(metaSize - 1),
	}
}

func (c *Combining) metaIdx(pc uint64) uint32 { return uint32(pc>>2) & c.mask }

func (c *Combining) Lookup(pc, candidateTarget uint64, isCall, isReturn bool, rasIdx *int) (uint64, Cookie) {
	mi := c.metaIdx(pc)
	useTwo := c.meta[mi].taken()
	var target uint64
	var inner Cookie
	if useTwo {
		target, inner = c.two.Lookup(pc, candidateTarget, isCall, isReturn, rasIdx)
	} else {
		target, inner = c.bim.Lookup(pc, candidateTarget, isCall, isReturn, rasIdx)
	}
	inner.class = ClassCombining
	inner.tag1Idx = mi
	inner.usedT2 = useTwo
	return target, inner
}

func (c *Combining) Update(pc, target uint64, taken, predTaken, correct bool, cookie Cookie) {
	if cookie.usedT2 {
		c.two.Update(pc, target, taken, predTaken, correct, cookie)
	} else {
		c.bim.Update(pc, target, taken, predTaken, correct, cookie)
	}
	// meta-counter: strengthen toward the component currently selected
	// whenever it was the one that got the prediction right.
	if correct {
		c.meta[cookie.tag1Idx].update(cookie.usedT2)
	} else {
		c.meta[cookie.tag1Idx].update(!cookie.usedT2)
	}
}

func (c *Combining) Recover(pc uint64, rasIdx int) {
	c.bim.Recover(pc, rasIdx)
	c.two.Recover(pc, rasIdx)
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

package ruu

import (
	"testing"

	"github.com/eagerx-sim/eagerx/internal/isa"
	"github.com/eagerx-sim/eagerx/internal/rslink"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T, cap int) *Ring {
	t.Helper()
	return NewRing(cap, rslink.NewLinkPool(64))
}

func TestAllocFillsRingThenFails(t *testing.T) {
	r := newRing(t, 2)
	_, err := r.Alloc(Entry{ThreadID: 0})
	require.NoError(t, err)
	_, err = r.Alloc(Entry{ThreadID: 0})
	require.NoError(t, err)
	require.True(t, r.Full())
	_, err = r.Alloc(Entry{ThreadID: 0})
	require.ErrorIs(t, err, ErrRingFull)
}

func TestRetireAdvancesHeadInFIFOOrder(t *testing.T) {
	r := newRing(t, 4)
	first, err := r.Alloc(Entry{Seq: 1})
	require.NoError(t, err)
	_, err = r.Alloc(Entry{Seq: 2})
	require.NoError(t, err)

	_, _, ok := r.Head()
	require.True(t, ok)

	got, ok := r.Retire()
	require.True(t, ok)
	require.Equal(t, uint64(1), got.Seq)
	require.False(t, r.Valid(first), "retired slot's old ref must go stale")
	require.Equal(t, 1, r.Num())
}

func TestSquashMarksEntryAndInvalidatesRef(t *testing.T) {
	r := newRing(t, 4)
	ref, err := r.Alloc(Entry{Seq: 1})
	require.NoError(t, err)

	r.Squash(ref)
	require.False(t, r.Valid(ref), "the ref taken before squash must go stale")

	e, _, ok := r.Head()
	require.True(t, ok)
	require.True(t, e.Squashed, "entry remains in the ring, marked squashed, until retire")
}

func TestSquashReleasesOutputLinkChain(t *testing.T) {
	links := rslink.NewLinkPool(8)
	r := NewRing(4, links)
	target, err := r.Alloc(Entry{Seq: 1})
	require.NoError(t, err)

	var head uint32
	_, err = links.PushChain(&head, target, rslink.PayloadOperandIndex, 0)
	require.NoError(t, err)

	e, _ := r.At(target)
	e.OutputLinkHead[0] = head

	r.Squash(target)
	e2, _, _ := r.Head()
	require.Equal(t, uint32(0), e2.OutputLinkHead[0], "squash must clear the released chain head")
}

func TestWrapsAroundRingCapacity(t *testing.T) {
	r := newRing(t, 2)
	_, err := r.Alloc(Entry{Seq: 1})
	require.NoError(t, err)
	_, err = r.Alloc(Entry{Seq: 2})
	require.NoError(t, err)
	_, ok := r.Retire()
	require.True(t, ok)

	ref, err := r.Alloc(Entry{Seq: 3}) // reuses the physical slot just retired
	require.NoError(t, err)
	e, ok := r.At(ref)
	require.True(t, ok)
	require.Equal(t, uint64(3), e.Seq)
}

func TestRecoverSquashesFromTailBackToBranchExclusive(t *testing.T) {
	r := newRing(t, 8)
	branch, err := r.Alloc(Entry{Seq: 1, ThreadID: 0})
	require.NoError(t, err)
	victimRef, err := r.Alloc(Entry{Seq: 2, ThreadID: 1}) // descendant thread
	require.NoError(t, err)
	survivorRef, err := r.Alloc(Entry{Seq: 3, ThreadID: 2}) // sibling thread
	require.NoError(t, err)

	pred := func(threadID int) bool { return threadID == 1 }

	squashed := r.Recover(branch, pred)
	require.Len(t, squashed, 1)
	require.False(t, r.Valid(victimRef), "matching thread's entry must be squashed")
	require.True(t, r.Valid(survivorRef), "non-matching sibling thread survives untouched")

	be, _ := r.At(branch)
	require.False(t, be.Squashed, "the branch entry itself is never squashed by Recover")
}

func TestRecoverStopsAtBranchAndDoesNotWalkOlderEntries(t *testing.T) {
	r := newRing(t, 8)
	older, err := r.Alloc(Entry{Seq: 1, ThreadID: 1})
	require.NoError(t, err)
	branch, err := r.Alloc(Entry{Seq: 2, ThreadID: 0})
	require.NoError(t, err)
	_, err = r.Alloc(Entry{Seq: 3, ThreadID: 1})
	require.NoError(t, err)

	matchAll := func(int) bool { return true }
	r.Recover(branch, matchAll)

	require.True(t, r.Valid(older), "entries dispatched before the branch are untouched")
}

func TestWalkVisitsLiveEntriesOldestFirst(t *testing.T) {
	r := newRing(t, 4)
	_, _ = r.Alloc(Entry{Seq: 1})
	_, _ = r.Alloc(Entry{Seq: 2})
	_, _ = r.Alloc(Entry{Seq: 3})

	var seqs []uint64
	r.Walk(func(ref rslink.Ref, e *Entry) bool {
		seqs = append(seqs, e.Seq)
		return true
	})
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestAllocCarriesIsaFlagsThrough(t *testing.T) {
	r := newRing(t, 2)
	ref, err := r.Alloc(Entry{Opcode: isa.OpLD, Mem: true, FU: isa.FUMemPort})
	require.NoError(t, err)
	e, ok := r.At(ref)
	require.True(t, ok)
	require.True(t, e.Mem)
	require.Equal(t, isa.FUMemPort, e.FU)
}

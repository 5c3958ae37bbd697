package thread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTableThread0Active(t *testing.T) {
	tbl := NewTable(4, 8)
	require.True(t, tbl.Slot(0).InUse)
	require.Equal(t, -1, tbl.Slot(0).SpecLevel)
	for i := 1; i < 4; i++ {
		require.False(t, tbl.Slot(i).InUse)
	}
}

func TestForkAssignsLineage(t *testing.T) {
	tbl := NewTable(4, 8)
	tbl.Slot(0).ForkCounter = 5

	child, err := tbl.Fork(0)
	require.NoError(t, err)
	require.True(t, tbl.Slot(child).InUse)
	require.Equal(t, 5, tbl.Slot(child).ParentForkCtr[0])
	require.Equal(t, 6, tbl.Slot(0).ForkCounter, "parent's fork counter must increment on fork")
}

func TestForkExhaustionReturnsErrNoFreeThread(t *testing.T) {
	tbl := NewTable(2, 8)
	_, err := tbl.Fork(0) // uses up the only other slot
	require.NoError(t, err)
	_, err = tbl.Fork(0)
	require.ErrorIs(t, err, ErrNoFreeThread)
}

func TestRecoverPredicateCascadesToDescendantsOnly(t *testing.T) {
	tbl := NewTable(4, 8)
	// thread 0 forks thread 1 at epoch 0
	child1, err := tbl.Fork(0)
	require.NoError(t, err)
	require.Equal(t, 1, child1)

	// thread 0 forks again (epoch 1) producing thread 2 -- a sibling of 1's lineage
	child2, err := tbl.Fork(0)
	require.NoError(t, err)
	require.Equal(t, 2, child2)

	// thread 1 forks a grandchild, thread 3, descending from thread 0 epoch 0 via thread 1
	child3, err := tbl.Fork(child1)
	require.NoError(t, err)
	require.Equal(t, 3, child3)

	// recovering thread 0 at epoch 0 must invalidate 1 and 3 (descendants at/after epoch 0)
	// but thread 2 forked at epoch 1, so it's NOT a descendant of the epoch-0 mispredict lineage...
	// however per the spec predicate (parent_fork_counters[origin] >= epoch), epoch 1 >= 0 is true,
	// so thread 2 must ALSO be invalidated: recovering an earlier epoch invalidates every fork since.
	freed := tbl.Recover(0, 0)
	require.ElementsMatch(t, []int{1, 2, 3}, freed)
	require.False(t, tbl.Slot(1).InUse)
	require.False(t, tbl.Slot(2).InUse)
	require.False(t, tbl.Slot(3).InUse)
}

func TestRecoverAtLaterEpochSparesEarlierSiblings(t *testing.T) {
	tbl := NewTable(4, 8)
	child1, err := tbl.Fork(0) // epoch 0
	require.NoError(t, err)
	child2, err := tbl.Fork(0) // epoch 1
	require.NoError(t, err)

	// recovering at epoch 1 must only invalidate forks from epoch 1 onward.
	freed := tbl.Recover(0, 1)
	require.ElementsMatch(t, []int{child2}, freed)
	require.True(t, tbl.Slot(child1).InUse, "sibling forked at an earlier epoch must survive")
}

func TestFreeResetsAncestry(t *testing.T) {
	tbl := NewTable(3, 8)
	child, _ := tbl.Fork(0)
	tbl.Free(child)
	require.False(t, tbl.Slot(child).InUse)
	for _, v := range tbl.Slot(child).ParentForkCtr {
		require.Equal(t, -1, v)
	}
}

func TestRoundRobinFetchArbitrationRespectsQuota(t *testing.T) {
	tbl := NewTable(3, 2) // quota of 2 fetches before switching
	child, err := tbl.Fork(0)
	require.NoError(t, err)

	id, ok := tbl.NextFetchThread()
	require.True(t, ok)
	require.Equal(t, 0, id)
	tbl.ConsumeFetch()

	id, ok = tbl.NextFetchThread()
	require.True(t, ok)
	require.Equal(t, 0, id, "quota not yet exhausted, stay on thread 0")
	tbl.ConsumeFetch()

	id, ok = tbl.NextFetchThread()
	require.True(t, ok)
	require.Equal(t, child, id, "quota exhausted, round-robin to the next eligible thread")
}

func TestForceSwitchEndsFetchGroupEarly(t *testing.T) {
	tbl := NewTable(2, 8)
	_, err := tbl.Fork(0)
	require.NoError(t, err)

	id, _ := tbl.NextFetchThread()
	require.Equal(t, 0, id)
	tbl.ForceSwitch()

	id, ok := tbl.NextFetchThread()
	require.True(t, ok)
	require.Equal(t, 1, id, "force-switch must end the current thread's fetch group immediately")
}

func TestNextFetchThreadSkipsIneligibleSlots(t *testing.T) {
	tbl := NewTable(3, 8)
	tbl.ForceSwitch()
	// no other thread in_use yet -- only thread 0 is eligible, it must be picked again
	id, ok := tbl.NextFetchThread()
	require.True(t, ok)
	require.Equal(t, 0, id)
}

func TestNoEligibleThreadReturnsFalse(t *testing.T) {
	tbl := NewTable(2, 8)
	tbl.Slot(0).KeepFetching = false
	_, ok := tbl.NextFetchThread()
	require.False(t, ok)
}

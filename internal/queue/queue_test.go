package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadyQueuePrioritizesMemAndControlOverAge(t *testing.T) {
	var r Ready
	r.Push(Item{Index: 1, Seq: 10})
	r.Push(Item{Index: 2, Seq: 1, Mem: true})
	r.Push(Item{Index: 3, Seq: 5})

	out := r.Drain(3)
	require.Len(t, out, 3)
	require.Equal(t, uint32(2), out[0].Index, "the memory op must come first regardless of age")
	require.Equal(t, uint32(3), out[1].Index, "remaining items ordered by ascending sequence")
	require.Equal(t, uint32(1), out[2].Index)
}

func TestReadyQueueWidthLimitsDrain(t *testing.T) {
	var r Ready
	r.Push(Item{Index: 1, Seq: 1})
	r.Push(Item{Index: 2, Seq: 2})
	out := r.Drain(1)
	require.Len(t, out, 1)
	require.Equal(t, uint32(1), out[0].Index)
	require.Equal(t, 1, r.Len(), "undrained items remain queued")
}

func TestReadyQueueResetClears(t *testing.T) {
	var r Ready
	r.Push(Item{Index: 1})
	r.Reset()
	require.Equal(t, 0, r.Len())
}

func TestEventQueueOrdersByCycleThenInsertion(t *testing.T) {
	var q EventQueue
	q.Schedule(5, 100)
	q.Schedule(3, 200)
	q.Schedule(3, 201) // same cycle as above, inserted later

	next, ok := q.NextCompleted()
	require.True(t, ok)
	require.Equal(t, uint64(3), next.Cycle)
	require.Equal(t, uint32(200), next.Index, "earlier insertion wins a cycle tie")
}

func TestEventQueuePopDueOnlyReturnsCurrentAndPastEvents(t *testing.T) {
	var q EventQueue
	q.Schedule(5, 1)
	q.Schedule(10, 2)

	due := q.PopDue(5)
	require.Len(t, due, 1)
	require.Equal(t, uint32(1), due[0].Index)

	_, ok := q.NextCompleted()
	require.True(t, ok)
	due = q.PopDue(4)
	require.Empty(t, due, "events scheduled for a future cycle must not pop early")
}

func TestEventQueueEmptyNextCompletedIsFalse(t *testing.T) {
	var q EventQueue
	_, ok := q.NextCompleted()
	require.False(t, ok)
}

package createvec

import (
	"testing"

	"github.com/eagerx-sim/eagerx/internal/rslink"
	"github.com/stretchr/testify/require"
)

func TestArchitecturalLookupMissInitially(t *testing.T) {
	cv := NewCreateVector()
	_, ok := cv.Architectural().Lookup(3)
	require.False(t, ok)
}

func TestPublishThenLookupFindsProducer(t *testing.T) {
	a := rslink.NewArena(4)
	ref, err := a.Alloc()
	require.NoError(t, err)

	cv := NewCreateVector()
	cv.Architectural().Publish(3, ref, 1)

	p, ok := cv.Architectural().Lookup(3)
	require.True(t, ok)
	require.Equal(t, ref, p.Entry)
	require.Equal(t, 1, p.OutputIndex)
}

func TestDemoteOnlyClearsMatchingProducer(t *testing.T) {
	a := rslink.NewArena(4)
	first, err := a.Alloc()
	require.NoError(t, err)
	second, err := a.Alloc()
	require.NoError(t, err)

	cv := NewCreateVector()
	v := cv.Architectural()
	v.Publish(3, first, 0)
	v.Publish(3, second, 0) // a newer producer overwrites the register

	v.Demote(3, first) // stale demote must not clobber the newer producer
	p, ok := v.Lookup(3)
	require.True(t, ok)
	require.Equal(t, second, p.Entry)

	v.Demote(3, second)
	_, ok = v.Lookup(3)
	require.False(t, ok)
}

func TestSpeculativeViewsAreIsolatedPerThreadAndLevel(t *testing.T) {
	a := rslink.NewArena(4)
	ref, err := a.Alloc()
	require.NoError(t, err)

	cv := NewCreateVector()
	cv.Speculative(0, 0).Publish(1, ref, 0)

	_, ok := cv.Speculative(0, 1).Lookup(1)
	require.False(t, ok, "a different level for the same thread must not see the publish")
	_, ok = cv.Speculative(1, 0).Lookup(1)
	require.False(t, ok, "a different thread must not see the publish")

	p, ok := cv.Speculative(0, 0).Lookup(1)
	require.True(t, ok)
	require.Equal(t, ref, p.Entry)
}

func TestViewForSelectsArchitecturalOrSpeculative(t *testing.T) {
	cv := NewCreateVector()
	require.Same(t, cv.Architectural(), cv.ViewFor(false, 2, 5))
	require.Same(t, cv.Speculative(2, 5), cv.ViewFor(true, 2, 5))
}

func TestClearProducerEverywhereSweepsAllViews(t *testing.T) {
	a := rslink.NewArena(4)
	ref, err := a.Alloc()
	require.NoError(t, err)

	cv := NewCreateVector()
	cv.Architectural().Publish(1, ref, 0)
	cv.Speculative(0, 0).Publish(2, ref, 0)
	cv.Speculative(1, 3).Publish(3, ref, 0)

	cv.ClearProducerEverywhere(ref)

	_, ok := cv.Architectural().Lookup(1)
	require.False(t, ok)
	_, ok = cv.Speculative(0, 0).Lookup(2)
	require.False(t, ok)
	_, ok = cv.Speculative(1, 3).Lookup(3)
	require.False(t, ok)
}

func TestDropThreadLevelsAboveKeepsShallowerLevels(t *testing.T) {
	a := rslink.NewArena(4)
	ref, err := a.Alloc()
	require.NoError(t, err)

	cv := NewCreateVector()
	cv.Speculative(0, 0).Publish(1, ref, 0)
	cv.Speculative(0, 1).Publish(2, ref, 0)
	cv.Speculative(0, 2).Publish(3, ref, 0)

	cv.DropThreadLevelsAbove(0, 0)

	_, ok := cv.Speculative(0, 0).Lookup(1)
	require.True(t, ok, "level at or below keep survives")
	_, ok = cv.Speculative(0, 1).Lookup(2)
	require.False(t, ok, "deeper levels are discarded and rebuilt empty")
	_, ok = cv.Speculative(0, 2).Lookup(3)
	require.False(t, ok)
}

func TestDropThreadRemovesEveryLevelForThatThreadOnly(t *testing.T) {
	a := rslink.NewArena(4)
	ref, err := a.Alloc()
	require.NoError(t, err)

	cv := NewCreateVector()
	cv.Speculative(0, 0).Publish(1, ref, 0)
	cv.Speculative(1, 0).Publish(1, ref, 0)

	cv.DropThread(0)

	_, ok := cv.Speculative(0, 0).Lookup(1)
	require.False(t, ok)
	_, ok = cv.Speculative(1, 0).Lookup(1)
	require.True(t, ok, "other threads' levels are untouched")
}

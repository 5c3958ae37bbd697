package fu

import (
	"testing"

	"github.com/eagerx-sim/eagerx/internal/isa"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseCycle(t *testing.T) {
	cfg := Config{
		Counts:  map[isa.FUClass]int{isa.FUIntALU: 1},
		Latency: map[isa.FUClass]Latency{isa.FUIntALU: {OpLat: 1, IssueLat: 2}},
	}
	p := NewPool(cfg)

	require.True(t, p.Acquire(isa.FUIntALU))
	require.False(t, p.Acquire(isa.FUIntALU), "second acquire must fail while unit busy")

	p.Release() // busy: 2 -> 1
	require.False(t, p.Acquire(isa.FUIntALU))

	p.Release() // busy: 1 -> 0
	require.True(t, p.Acquire(isa.FUIntALU), "unit must become acquirable again once busy hits zero")
}

func TestFreeCount(t *testing.T) {
	cfg := Config{
		Counts:  map[isa.FUClass]int{isa.FUMemPort: 2},
		Latency: map[isa.FUClass]Latency{isa.FUMemPort: {OpLat: 1, IssueLat: 1}},
	}
	p := NewPool(cfg)
	require.Equal(t, 2, p.Free(isa.FUMemPort))
	p.Acquire(isa.FUMemPort)
	require.Equal(t, 1, p.Free(isa.FUMemPort))
}

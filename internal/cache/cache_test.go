package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfigShapes(t *testing.T) {
	cfg, err := ParseConfig("dl1:64:32:4:l")
	require.NoError(t, err)
	require.Equal(t, 64, cfg.Sets)
	require.Equal(t, 32, cfg.BSize)
	require.Equal(t, 4, cfg.Assoc)

	_, err = ParseConfig("none")
	require.NoError(t, err)

	_, err = ParseConfig("bogus:3:3:3:l")
	require.Error(t, err, "non-power-of-two fields must be a configuration error")
}

func TestCacheHitMissLatency(t *testing.T) {
	cfg, err := ParseConfig("il1:4:16:1:l")
	require.NoError(t, err)
	c := NewCache(cfg, 1, 20)

	lat := c.Access(CmdRead, 0x1000, 4, 0)
	require.Equal(t, uint64(20), lat, "first access to a cold line must miss")

	lat = c.Access(CmdRead, 0x1000, 4, 1)
	require.Equal(t, uint64(1), lat, "second access to the same line must hit")
}

func TestCacheLRUEviction(t *testing.T) {
	cfg, err := ParseConfig("dl1:1:16:2:l")
	require.NoError(t, err)
	c := NewCache(cfg, 1, 20)

	// two lines mapping to the same single set, associativity 2: both fit.
	c.Access(CmdRead, 0x0000, 4, 0)
	c.Access(CmdRead, 0x1000, 4, 1)
	require.Equal(t, uint64(1), c.Access(CmdRead, 0x0000, 4, 2), "both lines should still be resident")

	// a third distinct line evicts the least-recently-used way (0x1000, used at cycle 1).
	c.Access(CmdRead, 0x2000, 4, 3)
	require.Equal(t, uint64(20), c.Access(CmdRead, 0x1000, 4, 4), "LRU victim must have been evicted")
}

func TestTLBAccess(t *testing.T) {
	tlb := NewTLB(2, 1, 30)
	require.Equal(t, uint64(30), tlb.Access(CmdRead, 0x4000, 8, 0))
	require.Equal(t, uint64(1), tlb.Access(CmdRead, 0x4000, 8, 1))
}

func TestMaxCombinesParallelLatencies(t *testing.T) {
	require.Equal(t, uint64(5), Max(3, 5))
	require.Equal(t, uint64(5), Max(5, 3))
}

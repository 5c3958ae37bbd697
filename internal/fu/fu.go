// Package fu implements the functional-unit pool (spec.md §4.7): a static
// table of resource classes, each with a quantity and a busy countdown that
// is decremented once per cycle in the release-FU phase.
package fu

import "github.com/eagerx-sim/eagerx/internal/isa"

// Latency describes how long an operation class occupies (issue latency)
// and how long it takes to produce a result (operation latency) once it has
// a unit.
type Latency struct {
	OpLat    int // cycles until the result is ready
	IssueLat int // cycles the unit itself is held busy
}

// Config is the per-class unit count + latency table (§6 res:ialu/imult/
// memport/fpalu/fpmult options).
type Config struct {
	Counts   map[isa.FUClass]int
	Latency  map[isa.FUClass]Latency
}

// DefaultConfig matches the teacher's "4 parallel ALUs" comment for integer
// ALUs, with two memory ports, two FP adders and one unit each for integer
// and FP mul/div. Integer ALU and memory-port ops take one cycle, FP adds
// two, FP mul/div six and integer mul/div eight.
func DefaultConfig() Config {
	return Config{
		Counts: map[isa.FUClass]int{
			isa.FUIntALU:    4,
			isa.FUIntMulDiv: 1,
			isa.FUMemPort:   2,
			isa.FUFPAdder:   2,
			isa.FUFPMulDiv:  1,
		},
		Latency: map[isa.FUClass]Latency{
			isa.FUIntALU:    {OpLat: 1, IssueLat: 1},
			isa.FUIntMulDiv: {OpLat: 8, IssueLat: 4},
			isa.FUMemPort:   {OpLat: 1, IssueLat: 1},
			isa.FUFPAdder:   {OpLat: 2, IssueLat: 1},
			isa.FUFPMulDiv:  {OpLat: 6, IssueLat: 2},
		},
	}
}

// unit is one instance of a resource class with a busy countdown.
type unit struct {
	busy int
}

// Pool is the live functional-unit pool: N units per class, each with an
// independent busy countdown.
type Pool struct {
	cfg   Config
	units map[isa.FUClass][]unit
}

// NewPool builds a Pool from the given configuration.
func NewPool(cfg Config) *Pool {
	p := &Pool{cfg: cfg, units: make(map[isa.FUClass][]unit)}
	for class, n := range cfg.Counts {
		p.units[class] = make([]unit, n)
	}
	return p
}

// Latency returns the configured latency for class.
func (p *Pool) Latency(class isa.FUClass) Latency {
	return p.cfg.Latency[class]
}

// Acquire reserves a free unit of class for its issue latency. Returns
// false if no unit is currently free (caller must re-enqueue onto the
// ready queue for the next cycle, per §4.3).
func (p *Pool) Acquire(class isa.FUClass) bool {
	units := p.units[class]
	lat := p.cfg.Latency[class]
	for i := range units {
		if units[i].busy == 0 {
			units[i].busy = lat.IssueLat
			return true
		}
	}
	return false
}

// Release runs the release-FU phase: decrement every busy countdown by one,
// floored at zero. This phase runs before writeback each cycle (§2).
func (p *Pool) Release() {
	for class := range p.units {
		units := p.units[class]
		for i := range units {
			if units[i].busy > 0 {
				units[i].busy--
			}
		}
	}
}

// Busy reports how many units of class are currently occupied.
func (p *Pool) Busy(class isa.FUClass) int {
	n := 0
	for _, u := range p.units[class] {
		if u.busy > 0 {
			n++
		}
	}
	return n
}

// Free reports how many units of class are currently free.
func (p *Pool) Free(class isa.FUClass) int {
	return len(p.units[class]) - p.Busy(class)
}

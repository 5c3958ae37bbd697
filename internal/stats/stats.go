// Package stats implements the statistics counters of spec.md §6
// "Outputs" and SPEC_FULL.md §A.5: committed/total instructions,
// branch/load/store counts, queue occupancy and full-cycle counts, cycle
// count, IPC/CPI, fork counts, and slip, exported both as a plain-text
// report and as prometheus metrics.
//
// Grounded on intel-PerfSpect's registry + typed Counter/Gauge
// construction pattern (its internal/report package registers one
// collector per reported metric against a shared prometheus.Registry);
// this package follows the same shape with names specific to the
// simulator's counters.
package stats

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters holds every statistic named in spec.md §6 "Outputs". Fields are
// plain integers rather than prometheus types so that hot-path increments
// in the pipeline phases stay allocation-free; NewRegistry exposes some of
// them as prometheus gauges that read the live struct on each scrape,
// following intel-PerfSpect's separation of "fast internal counters" from
// "exported metrics".
type Counters struct {
	Cycle uint64

	TotalInsn     uint64 // sim_total_insn: dispatched
	CommittedInsn uint64 // sim_num_insn: retired

	Branches uint64
	Loads    uint64
	Stores   uint64

	IFQFull  uint64
	RUUFull  uint64
	LSQFull  uint64
	IFQOccup uint64
	RUUOccup uint64
	LSQOccup uint64

	ForksTotal    uint64
	ForksSpec     uint64
	ForksNonSpec  uint64

	SlipTotal uint64 // sum of (commit_cycle - dispatch_cycle) over committed insns
	SlipCount uint64

	Profiles map[string]map[int64]uint64 // per-PC profile distributions, keyed by stat name
}

// NewCounters returns a zeroed counter set with its profile table ready.
func NewCounters() *Counters {
	return &Counters{Profiles: make(map[string]map[int64]uint64)}
}

// RecordFork tallies a successful fork (spec.md §4.2 step 3), per §8
// invariant 7: sim_num_forks = sim_num_spec_forks + sim_num_nonspec_forks.
func (c *Counters) RecordFork(speculative bool) {
	c.ForksTotal++
	if speculative {
		c.ForksSpec++
	} else {
		c.ForksNonSpec++
	}
}

// RecordSlip adds one committed instruction's dispatch-to-commit latency
// (spec.md's "Slip").
func (c *Counters) RecordSlip(cycles uint64) {
	c.SlipTotal += cycles
	c.SlipCount++
}

// Profile bumps the named per-PC distribution's bucket for key, used for
// arbitrary registered stats (spec.md §6 "Optional per-PC profile
// distributions for arbitrary registered stats").
func (c *Counters) Profile(name string, key int64) {
	m, ok := c.Profiles[name]
	if !ok {
		m = make(map[int64]uint64)
		c.Profiles[name] = m
	}
	m[key]++
}

// IPC returns committed instructions per cycle, or 0 if no cycles elapsed.
func (c *Counters) IPC() float64 {
	if c.Cycle == 0 {
		return 0
	}
	return float64(c.CommittedInsn) / float64(c.Cycle)
}

// CPI returns cycles per committed instruction, or 0 if nothing committed.
func (c *Counters) CPI() float64 {
	if c.CommittedInsn == 0 {
		return 0
	}
	return float64(c.Cycle) / float64(c.CommittedInsn)
}

// AvgSlip returns the mean dispatch-to-commit latency, or 0 if nothing
// committed yet.
func (c *Counters) AvgSlip() float64 {
	if c.SlipCount == 0 {
		return 0
	}
	return float64(c.SlipTotal) / float64(c.SlipCount)
}

// Report writes a human-readable summary to w, in the vein of
// intel-PerfSpect's plain-text report mode.
func (c *Counters) Report(w io.Writer) {
	fmt.Fprintf(w, "sim_cycle            %d\n", c.Cycle)
	fmt.Fprintf(w, "sim_num_insn         %d\n", c.CommittedInsn)
	fmt.Fprintf(w, "sim_total_insn       %d\n", c.TotalInsn)
	fmt.Fprintf(w, "sim_IPC              %.4f\n", c.IPC())
	fmt.Fprintf(w, "sim_CPI              %.4f\n", c.CPI())
	fmt.Fprintf(w, "sim_num_branches     %d\n", c.Branches)
	fmt.Fprintf(w, "sim_num_loads        %d\n", c.Loads)
	fmt.Fprintf(w, "sim_num_stores       %d\n", c.Stores)
	fmt.Fprintf(w, "sim_num_forks        %d\n", c.ForksTotal)
	fmt.Fprintf(w, "sim_num_spec_forks   %d\n", c.ForksSpec)
	fmt.Fprintf(w, "sim_num_nonspec_forks %d\n", c.ForksNonSpec)
	fmt.Fprintf(w, "sim_slip_avg         %.4f\n", c.AvgSlip())
	fmt.Fprintf(w, "ifq_full_cycles      %d\n", c.IFQFull)
	fmt.Fprintf(w, "ruu_full_cycles      %d\n", c.RUUFull)
	fmt.Fprintf(w, "lsq_full_cycles      %d\n", c.LSQFull)
}

// Registry wires Counters into a prometheus.Registry, following
// intel-PerfSpect's pattern of one GaugeFunc per reported metric backed by
// a closure reading the live counter struct, so Sync is simply "scrape
// whenever prometheus asks" with no separate copy step.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry builds a Registry exposing the cycle, instruction, IPC/CPI,
// fork, slip and occupancy counters of c as prometheus gauges, sourced live
// from c. Branches, Loads, Stores, the *Full counters and Profiles are not
// exported.
func NewRegistry(c *Counters) *Registry {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, f func() float64) {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "eagerx",
			Name:      name,
			Help:      help,
		}, f))
	}

	gauge("cycle", "current simulated cycle", func() float64 { return float64(c.Cycle) })
	gauge("committed_instructions", "retired instruction count", func() float64 { return float64(c.CommittedInsn) })
	gauge("dispatched_instructions", "dispatched instruction count", func() float64 { return float64(c.TotalInsn) })
	gauge("ipc", "committed instructions per cycle", c.IPC)
	gauge("cpi", "cycles per committed instruction", c.CPI)
	gauge("forks_total", "total successful forks", func() float64 { return float64(c.ForksTotal) })
	gauge("forks_speculative", "forks that proved mis-speculated", func() float64 { return float64(c.ForksSpec) })
	gauge("forks_nonspeculative", "forks that proved correctly predicted", func() float64 { return float64(c.ForksNonSpec) })
	gauge("avg_slip_cycles", "mean dispatch-to-commit latency", c.AvgSlip)
	gauge("ruu_occupancy", "RUU occupancy summed over all simulated cycles", func() float64 { return float64(c.RUUOccup) })
	gauge("lsq_occupancy", "LSQ occupancy summed over all simulated cycles", func() float64 { return float64(c.LSQOccup) })
	gauge("ifq_occupancy", "fetch-queue occupancy summed over all simulated cycles", func() float64 { return float64(c.IFQOccup) })

	return &Registry{reg: reg}
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP handler
// (promhttp.HandlerFor) to serve.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

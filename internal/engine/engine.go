package engine

import (
	"github.com/eagerx-sim/eagerx/internal/cache"
	"github.com/eagerx-sim/eagerx/internal/config"
	"github.com/eagerx-sim/eagerx/internal/createvec"
	"github.com/eagerx-sim/eagerx/internal/fu"
	"github.com/eagerx-sim/eagerx/internal/isa"
	"github.com/eagerx-sim/eagerx/internal/predictor"
	"github.com/eagerx-sim/eagerx/internal/queue"
	"github.com/eagerx-sim/eagerx/internal/rslink"
	"github.com/eagerx-sim/eagerx/internal/ruu"
	"github.com/eagerx-sim/eagerx/internal/specstate"
	"github.com/eagerx-sim/eagerx/internal/stats"
	"github.com/eagerx-sim/eagerx/internal/thread"
	"github.com/eagerx-sim/eagerx/internal/trace"
	"github.com/rs/zerolog"
)

// completionInfo is what an event-queue Event.Index actually names: which
// ring the completing entry lives in and its current ref, so a stale or
// squashed completion can be recognized and silently dropped at writeback.
type completionInfo struct {
	ref     rslink.Ref
	fromLSQ bool
}

// Engine is the simulator core: one of everything spec.md §2/§3 names,
// wired together by the five-phase Cycle driver.
type Engine struct {
	Opts *config.Options
	Log  zerolog.Logger

	Program  Program
	TextBase uint64

	Threads *thread.Table

	RUU   *ruu.Ring
	LSQ   *ruu.Ring
	Links *rslink.LinkPool

	CreateVec *createvec.CreateVector
	ArchRegs  [specstate.NumIntRegs]uint64
	Shadows   []specstate.ThreadShadow
	Mem       *Memory
	SpecMem   *specstate.Memory

	Ready  queue.Ready
	Events queue.EventQueue

	FUPool *fu.Pool
	Pred   predictor.Predictor

	ICache, DCache cache.Accessor
	ITLB, DTLB     cache.Accessor

	IFQ *fetchQueue

	Stats  *stats.Counters
	Tracer trace.Tracer

	cycleNum        uint64
	fetchSeqGen     uint64
	completions     map[uint32]completionInfo
	nextCompletion  uint32
	fetchStallUntil uint64 // cycle at which fetch may resume after a recovery
	stillValid      map[int]bool
	stdUnknowns     map[int][]uint64
	done            bool

	readyLookup map[uint32]readyRef
	readyIDGen  uint32
}

// readyRef is what a queue.Item.Index actually names: which ring (RUU or
// LSQ) a ready candidate lives in and its current ref.
type readyRef struct {
	ring *ruu.Ring
	ref  rslink.Ref
}

// registerReady assigns a fresh lookup id for (ring, ref) and records it so
// issue's Drain loop can resolve a drained queue.Item back to an entry.
func (e *Engine) registerReady(ring *ruu.Ring, ref rslink.Ref) uint32 {
	e.readyIDGen++
	e.readyLookup[e.readyIDGen] = readyRef{ring: ring, ref: ref}
	return e.readyIDGen
}

// New builds an Engine from opts and a program, wiring every collaborator
// package using the sizes/latencies/predictor choice opts names (spec.md §6).
func New(opts *config.Options, program Program, logger zerolog.Logger) *Engine {
	links := rslink.NewLinkPool(4 * (opts.RUUSize + opts.LSQSize))

	fuCfg := fu.DefaultConfig()
	fuCfg.Counts[isa.FUIntALU] = opts.ResIALU
	fuCfg.Counts[isa.FUIntMulDiv] = opts.ResIMult
	fuCfg.Counts[isa.FUMemPort] = opts.ResMemPort
	fuCfg.Counts[isa.FUFPAdder] = opts.ResFPALU
	fuCfg.Counts[isa.FUFPMulDiv] = opts.ResFPMult

	e := &Engine{
		Opts:      opts,
		Log:       logger,
		Program:   program,
		Threads:   thread.NewTable(opts.MaxThreads, opts.MaxFetchesBeforeSwitch),
		RUU:       ruu.NewRing(opts.RUUSize, links),
		LSQ:       ruu.NewRing(opts.LSQSize, links),
		Links:     links,
		CreateVec: createvec.NewCreateVector(),
		Mem:       NewMemory(),
		SpecMem:   &specstate.Memory{},
		FUPool:    fu.NewPool(fuCfg),
		Stats:     stats.NewCounters(),
		Tracer:    trace.NoOp(),

		completions: make(map[uint32]completionInfo),
		stillValid:  make(map[int]bool),
		stdUnknowns: make(map[int][]uint64),
		readyLookup: make(map[uint32]readyRef),
	}
	e.Shadows = make([]specstate.ThreadShadow, opts.MaxThreads)

	e.Pred = buildPredictor(opts, e)
	e.ICache, e.ITLB = buildCacheTLB(opts, opts.CacheIL1, opts.TLBITLB)
	e.DCache, e.DTLB = buildCacheTLB(opts, opts.CacheDL1, opts.TLBDTLB)

	e.IFQ = newFetchQueue(opts.FetchIFQSize)
	return e
}

func buildPredictor(opts *config.Options, e *Engine) predictor.Predictor {
	oracle := func(pc uint64) uint64 {
		idx := int((pc - e.TextBase) / 4)
		if idx < 0 || idx >= len(e.Program) {
			return pc + 4
		}
		return e.Program[idx].Imm
	}
	switch opts.Bpred {
	case config.BpredTaken:
		return predictor.NewStatic(predictor.ClassTaken, oracle)
	case config.BpredPerfect:
		return predictor.NewStatic(predictor.ClassPerfect, oracle)
	case config.BpredTwoLevel:
		return predictor.NewTwoLevel(10, 1024)
	case config.BpredComb:
		return predictor.NewCombining(1024, 10, 1024, 1024)
	case config.BpredBimodal:
		return predictor.NewBimodal(1024)
	default:
		return predictor.NewStatic(predictor.ClassNotTaken, oracle)
	}
}

func buildCacheTLB(opts *config.Options, cacheCfg, tlbCfg string) (cache.Accessor, cache.Accessor) {
	cc, err := cache.ParseConfig(cacheCfg)
	var acc cache.Accessor = cache.None{}
	if err == nil && !cc.None && cc.Unify == "" {
		acc = cache.NewCache(cc, 1, 8)
	}
	var tlbAcc cache.Accessor = cache.None{}
	tc, err2 := cache.ParseConfig(tlbCfg)
	if err2 == nil && !tc.None {
		tlbAcc = cache.NewTLB(tc.Sets, 1, uint64(opts.TLBLat))
	}
	return acc, tlbAcc
}

func (e *Engine) nextFetchSeq() uint64 {
	e.fetchSeqGen++
	return e.fetchSeqGen
}

func (e *Engine) nextCompletionID() uint32 {
	e.nextCompletion++
	return e.nextCompletion
}

// entryAndRing locates ref in whichever ring (RUU or LSQ) currently holds
// it, since a producer of a renamed register may live in either.
func (e *Engine) entryAndRing(ref rslink.Ref) (*ruu.Entry, *ruu.Ring, bool) {
	if en, ok := e.RUU.At(ref); ok {
		return en, e.RUU, true
	}
	if en, ok := e.LSQ.At(ref); ok {
		return en, e.LSQ, true
	}
	return nil, nil, false
}

// Done reports whether the simulator has nothing left to do: every thread
// out of program to fetch, the fetch queue drained, and both rings empty.
func (e *Engine) Done() bool {
	if e.Opts.MaxInst > 0 && e.Stats.CommittedInsn >= uint64(e.Opts.MaxInst) {
		return true
	}
	if e.done && e.IFQ.Empty() && e.RUU.Empty() && e.LSQ.Empty() {
		return true
	}
	return false
}

// Step runs exactly one cycle and reports whether the simulator has since
// finished (SPEC_FULL.md §C.3).
func (e *Engine) Step() (bool, error) {
	e.Cycle()
	return e.Done(), nil
}

// Run drives the simulator to completion, or until maxCycles cycles have
// elapsed (0 == unbounded).
func (e *Engine) Run(maxCycles uint64) error {
	for !e.Done() {
		if maxCycles > 0 && e.cycleNum >= maxCycles {
			break
		}
		e.Cycle()
	}
	return nil
}

// FastForward executes n instructions functionally only, bypassing the
// timing model entirely, starting thread 0 at startPC and advancing
// architectural registers/memory directly (SPEC_FULL.md §C.1 warm-up). After
// FastForward, normal Cycle-based simulation resumes with thread 0's fetch
// PC left wherever functional execution stopped.
func (e *Engine) FastForward(startPC uint64, n int) {
	pc := startPC
	regs := regView{e: e, tn: 0}
	mem := memView{e: e, isSpec: false}
	for i := 0; i < n; i++ {
		idx := int((pc - e.TextBase) / 4)
		if idx < 0 || idx >= len(e.Program) {
			break
		}
		inst := e.Program[idx]
		info, _ := isa.Lookup(inst.Opcode)
		var in [isa.MaxIDeps]uint64
		for j := 0; j < info.NumIn; j++ {
			in[j] = regs.Read(inst.In[j])
		}
		out := info.Eval(isa.EvalInput{PC: pc, Imm: inst.Imm, In: in, Regs: regs, Mem: mem})
		for k := 0; k < info.NumOut; k++ {
			regs.Write(inst.Out[k], out.Out[k])
		}
		pc = out.NextPC
	}
	e.Threads.Slot(0).FetchPC = pc
	e.Threads.Slot(0).FetchPredPC = pc
}

// Cycle runs the five pipeline phases in reverse order, per spec.md §2:
// commit, release-FU, writeback, (lsq-refresh, issue), dispatch, fetch.
func (e *Engine) Cycle() {
	e.cycleNum++
	e.Stats.Cycle = e.cycleNum

	e.commit()
	e.FUPool.Release()
	e.writeback()

	// the ready queue is rebuilt from scratch every cycle (§4.3): drop
	// whatever lsqRefresh/issue left queued last cycle before rescanning,
	// and clear every entry's Queued bit too -- it now means "sits in this
	// cycle's freshly rebuilt queue", not "was ever pushed", so an entry
	// left un-drained past issue_width must be eligible for re-push rather
	// than skipped forever.
	e.Ready.Reset()
	for k := range e.readyLookup {
		delete(e.readyLookup, k)
	}
	e.RUU.Walk(func(_ rslink.Ref, en *ruu.Entry) bool { en.Queued = false; return true })
	e.LSQ.Walk(func(_ rslink.Ref, en *ruu.Entry) bool { en.Queued = false; return true })

	e.lsqRefresh()
	e.issue()
	e.dispatch()
	e.fetch()

	e.Stats.RUUOccup += uint64(e.RUU.Num())
	e.Stats.LSQOccup += uint64(e.LSQ.Num())
	e.Stats.IFQOccup += uint64(e.IFQ.num)
	if e.IFQ.Full() {
		e.Stats.IFQFull++
	}
}

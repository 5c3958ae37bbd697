package engine

import (
	"github.com/eagerx-sim/eagerx/internal/cache"
	"github.com/eagerx-sim/eagerx/internal/config"
	"github.com/eagerx-sim/eagerx/internal/createvec"
	"github.com/eagerx-sim/eagerx/internal/isa"
	"github.com/eagerx-sim/eagerx/internal/predictor"
	"github.com/eagerx-sim/eagerx/internal/queue"
	"github.com/eagerx-sim/eagerx/internal/rslink"
	"github.com/eagerx-sim/eagerx/internal/ruu"
	"github.com/eagerx-sim/eagerx/internal/thread"
	"github.com/eagerx-sim/eagerx/internal/trace"
	"github.com/pkg/errors"
)

// fetch runs the front end (spec.md §4.1): the round-robin arbiter hands
// fetch to one thread at a time, terminating that thread's fetch group
// early on a control instruction or an I-cache/ITLB miss.
func (e *Engine) fetch() {
	if e.cycleNum < e.fetchStallUntil {
		return
	}
	width := e.Opts.FetchSpeed * e.Opts.DecodeWidth
	for n := 0; n < width; n++ {
		if e.IFQ.Full() {
			return
		}
		tid, ok := e.Threads.NextFetchThread()
		if !ok {
			return
		}
		slot := e.Threads.Slot(tid)
		pc := slot.FetchPC
		idx := int((pc - e.TextBase) / 4)
		if idx < 0 || idx >= len(e.Program) {
			slot.KeepFetching = false
			continue
		}

		latency := cache.Max(
			e.ICache.Access(cache.CmdRead, pc, 4, e.cycleNum),
			e.ITLB.Access(cache.CmdRead, pc, 4, e.cycleNum),
		)
		if latency > 1 {
			e.Threads.ForceSwitch()
			continue
		}

		inst := e.Program[idx]
		info, _ := isa.Lookup(inst.Opcode)

		var predPC uint64
		var cookie predictor.Cookie
		rasIdx := 0
		if info.Ctrl {
			predPC, cookie = e.Pred.Lookup(pc, inst.Imm, info.IsCall, info.IsReturn, &rasIdx)
		} else {
			predPC = pc + 4
		}

		e.IFQ.Push(ifqEntry{
			pc: pc, predPC: predPC, threadID: tid, inst: inst,
			cookie: cookie, rasIdx: rasIdx, seq: e.nextFetchSeq(),
		})
		e.Tracer.Trace(trace.Event{Cycle: e.cycleNum, Thread: tid, Stage: trace.StageFetch, PC: pc})

		slot.FetchPC = predPC
		slot.FetchPredPC = predPC
		e.Threads.ConsumeFetch()

		if info.Ctrl {
			// one control op per thread per fetch group (§4.1)
			e.Threads.ForceSwitch()
		}
	}
}

// dispatch decodes, functionally executes (spec.md §4.2 step 2's
// "functional-ahead-of-time execution"), renames, and allocates RUU/LSQ
// entries for up to decode_width fetched instructions per cycle.
func (e *Engine) dispatch() {
	width := e.Opts.DecodeWidth
	for n := 0; n < width; n++ {
		head, ok := e.IFQ.PeekHead()
		if !ok {
			return
		}
		if head.squashed {
			e.IFQ.PopHead()
			continue
		}

		info, known := isa.Lookup(head.inst.Opcode)
		isMem := info.Mem

		if e.RUU.Full() {
			e.Stats.RUUFull++
			return
		}
		if isMem && e.LSQ.Full() {
			e.Stats.LSQFull++
			return
		}

		tid := head.threadID
		slot := e.Threads.Slot(tid)
		oldSpecMode := slot.SpecMode
		oldSpecLevel := slot.SpecLevel
		oldForkCounter := slot.ForkCounter

		if !known && !oldSpecMode {
			panic(errors.Errorf("engine: invalid opcode on non-speculative thread %d at pc=%#x", tid, head.pc))
		}

		regs := regView{e: e, tn: tid}
		mem := memView{e: e, isSpec: oldSpecMode}

		var in [isa.MaxIDeps]uint64
		for j := 0; j < info.NumIn; j++ {
			in[j] = regs.Read(head.inst.In[j])
		}
		out := info.Eval(isa.EvalInput{PC: head.pc, Imm: head.inst.Imm, In: in, Regs: regs, Mem: mem, IsSpec: oldSpecMode})

		if out.Fault && !oldSpecMode {
			panic(errors.Errorf("engine: non-speculative memory fault on thread %d at pc=%#x", tid, head.pc))
		}

		for k := 0; k < info.NumOut; k++ {
			regs.Write(head.inst.Out[k], out.Out[k])
		}

		e.IFQ.PopHead()
		e.Stats.TotalInsn++
		if info.Ctrl {
			e.Stats.Branches++
			if e.Opts.BpredSpecUpdate == config.SpecUpdateID {
				predTaken := head.predPC != head.pc+4
				taken := out.NextPC != head.pc+4
				e.Pred.Update(head.pc, out.NextPC, taken, predTaken, out.NextPC == head.predPC, head.cookie)
			}
		}

		recoverInst := info.Ctrl && out.NextPC != head.predPC
		triggersFork := false
		forkID := -1

		if recoverInst {
			newLevel := 0
			if oldSpecMode {
				newLevel = oldSpecLevel + 1
			}
			slot.SpecMode = true
			slot.SpecLevel = newLevel
			e.Shadows[tid].EnterLevel(func(r uint64) uint64 { return e.ArchRegs[r] })

			if child, err := e.Threads.Fork(tid); err == nil {
				triggersFork = true
				forkID = child
				cslot := e.Threads.Slot(child)
				cslot.FetchPC = out.NextPC
				cslot.FetchPredPC = out.NextPC
			}
		}

		ruuEntry := ruu.Entry{
			Opcode: head.inst.Opcode, FU: info.FU, Ctrl: info.Ctrl, Mem: isMem, LongLatency: info.LongLatency,
			PC: head.pc, NextPC: out.NextPC, PredPC: head.predPC,
			ThreadID: tid, SpecMode: oldSpecMode, SpecLevel: oldSpecLevel, ForkCounter: oldForkCounter,
			RecoverInst: recoverInst, TriggersFork: triggersFork, ForkID: forkID,
			PredictorCookie: head.cookie, RASIndex: head.rasIdx,
			Seq: e.RUU.NextSeq(), DispatchCycle: e.cycleNum,
		}

		view := e.CreateVec.ViewFor(oldSpecMode, tid, oldSpecLevel)

		if isMem {
			e.dispatchMemOp(head, info, in, out, ruuEntry, view)
		} else {
			ruuEntry.NumIn = info.NumIn
			ruuEntry.NumOut = info.NumOut
			for k := 0; k < info.NumOut; k++ {
				ruuEntry.OutputReg[k] = head.inst.Out[k]
				ruuEntry.OutputValid[k] = true
			}
			ruuRef, err := e.RUU.Alloc(ruuEntry)
			if err != nil {
				panic(err) // RUU.Full() already checked above
			}
			ruuEn, _ := e.RUU.At(ruuRef)
			for j := 0; j < info.NumIn; j++ {
				e.renameInput(view, ruuRef, ruuEn, j, head.inst.In[j], in[j])
			}
			for k := 0; k < info.NumOut; k++ {
				view.Publish(uint64(head.inst.Out[k]), ruuRef, k)
			}
		}

		e.Tracer.Trace(trace.Event{Cycle: e.cycleNum, Thread: tid, Stage: trace.StageDispatch, PC: head.pc})
	}
}

// dispatchMemOp allocates the split RUU(address-gen)/LSQ(consumer) pair a
// memory op decodes into (spec.md §3/§4.2): the RUU half computes the
// effective address (already known functionally, in out.EffAddr) and the LSQ
// half waits on DTMP -- a synthetic dependency on the RUU half's completion
// -- plus, for a store, the value register.
func (e *Engine) dispatchMemOp(head *ifqEntry, info isa.Info, in [isa.MaxIDeps]uint64, out isa.EvalOutput, ruuEntry ruu.Entry, view *createvec.View) {
	ruuEntry.EAComp = true
	ruuEntry.EffAddr = out.EffAddr
	ruuEntry.NumIn = info.NumIn
	ruuEntry.NumOut = 0
	ruuRef, err := e.RUU.Alloc(ruuEntry)
	if err != nil {
		panic(err) // RUU.Full() already checked by the caller
	}
	ruuEn, _ := e.RUU.At(ruuRef)
	for j := 0; j < info.NumIn; j++ {
		e.renameInput(view, ruuRef, ruuEn, j, head.inst.In[j], in[j])
	}

	lsqEntry := ruu.Entry{
		Opcode: head.inst.Opcode, FU: info.FU, Mem: true,
		PC: head.pc, NextPC: out.NextPC, PredPC: head.predPC,
		ThreadID: head.threadID, SpecMode: ruuEntry.SpecMode, SpecLevel: ruuEntry.SpecLevel, ForkCounter: ruuEntry.ForkCounter,
		InLSQ: true, EffAddr: out.EffAddr, Seq: e.LSQ.NextSeq(), DispatchCycle: e.cycleNum,
	}
	if head.inst.Opcode == isa.OpST {
		lsqEntry.NumIn = 2
	} else {
		lsqEntry.NumIn = 1
		lsqEntry.NumOut = 1
		lsqEntry.OutputReg[0] = head.inst.Out[0]
		lsqEntry.OutputValid[0] = true
	}
	lsqRef, err := e.LSQ.Alloc(lsqEntry)
	if err != nil {
		panic(err) // LSQ.Full() already checked by the caller
	}
	lsqEn, _ := e.LSQ.At(lsqRef)

	// slot 0 is always DTMP: the address produced by the RUU half.
	lsqEn.InputReady[0] = false
	lsqEn.InputValue[0] = out.EffAddr
	if _, err := e.Links.PushChain(&ruuEn.OutputLinkHead[0], lsqRef, rslink.PayloadOperandIndex, 0); err != nil {
		panic(err) // MAX_RS_LINKS exhaustion is a configuration error (§7)
	}

	if head.inst.Opcode == isa.OpST {
		e.renameInput(view, lsqRef, lsqEn, 1, head.inst.In[1], in[1])
	} else {
		view.Publish(uint64(head.inst.Out[0]), lsqRef, 0)
	}
}

// renameInput wires consumer's slot-th input operand: if reg currently has a
// live producer, the consumer is linked onto that producer's output chain
// and marked not-yet-ready; otherwise it is immediately ready. The value
// itself is already final (functional-ahead-of-time execution computed it at
// dispatch), so only the readiness bit's timing depends on the producer.
func (e *Engine) renameInput(view *createvec.View, consumerRef rslink.Ref, consumer *ruu.Entry, slot int, reg uint16, value uint64) {
	consumer.InputValue[slot] = value
	prod, ok := view.Lookup(uint64(reg))
	if !ok {
		consumer.InputReady[slot] = true
		return
	}
	prodEntry, _, ok2 := e.entryAndRing(prod.Entry)
	if !ok2 {
		consumer.InputReady[slot] = true
		return
	}
	consumer.InputReady[slot] = false
	if _, err := e.Links.PushChain(&prodEntry.OutputLinkHead[prod.OutputIndex], consumerRef, rslink.PayloadOperandIndex, slot); err != nil {
		panic(err) // MAX_RS_LINKS exhaustion is a configuration error (§7)
	}
}

// lsqRefresh recomputes, every cycle, which LSQ entries may issue (spec.md
// §4.3's still_valid/std_unknowns mechanism): a store issues once its
// address and value are both known; a load issues once its address is known
// and no earlier store on its thread (or an ancestor thread, mirrored across
// the fork lineage) has an address that is still unknown or matches the
// load's own address with an unknown value.
func (e *Engine) lsqRefresh() {
	for k := range e.stillValid {
		delete(e.stillValid, k)
	}
	for k := range e.stdUnknowns {
		delete(e.stdUnknowns, k)
	}
	stillValid := e.stillValid
	unknowns := e.stdUnknowns

	e.LSQ.Walk(func(ref rslink.Ref, en *ruu.Entry) bool {
		if en.Squashed || en.Completed {
			return true
		}
		tid := en.ThreadID
		if _, seen := stillValid[tid]; !seen {
			stillValid[tid] = true
		}

		if en.Opcode == isa.OpST {
			addrReady := en.InputReady[0]
			valReady := en.NumIn < 2 || en.InputReady[1]
			if !addrReady {
				stillValid[tid] = false
				return true
			}
			if !valReady {
				unknowns[tid] = append(unknowns[tid], en.EffAddr)
				return true
			}
			if !en.Issued && !en.Queued {
				en.Queued = true
				e.Ready.Push(queue.Item{Index: e.registerReady(e.LSQ, ref), Seq: en.Seq, Mem: true})
			}
			return true
		}

		if en.Issued || en.Queued {
			return true
		}
		if !en.InputReady[0] {
			return true // address not yet known
		}
		if !stillValid[tid] || addressBlocked(en.EffAddr, tid, e.Threads, unknowns) {
			return true
		}
		en.Queued = true
		e.Ready.Push(queue.Item{Index: e.registerReady(e.LSQ, ref), Seq: en.Seq, Mem: true})
		return true
	})
}

// addressBlocked reports whether a load at addr on thread tid must wait,
// per spec.md §4.3's cross-thread mirroring: an unknown store address
// recorded against an ancestor thread also blocks any descendant whose
// parent_fork_counters[ancestor] names that ancestor, not just the thread
// the store itself lives on.
func addressBlocked(addr uint64, tid int, tbl *thread.Table, unknowns map[int][]uint64) bool {
	if contains(unknowns[tid], addr) {
		return true
	}
	slot := tbl.Slot(tid)
	for ancestor := 0; ancestor < tbl.MaxThreads(); ancestor++ {
		if ancestor == tid {
			continue
		}
		if slot.ParentForkCtr[ancestor] != -1 && contains(unknowns[ancestor], addr) {
			return true
		}
	}
	return false
}

// contains reports whether xs holds v.
func contains(xs []uint64, v uint64) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// issue rebuilds the ready queue from the RUU (LSQ readiness is already
// handled by lsqRefresh) and drains up to issue_width candidates, acquiring
// a functional unit and scheduling a completion event for each (spec.md
// §4.3). A store with both operands ready completes immediately, with no
// functional-unit acquisition, per §4.3's "stores ... complete immediately".
func (e *Engine) issue() {
	e.RUU.Walk(func(ref rslink.Ref, en *ruu.Entry) bool {
		if en.Squashed || en.Issued || en.Completed || en.Queued {
			return true
		}
		for i := 0; i < en.NumIn; i++ {
			if !en.InputReady[i] {
				return true
			}
		}
		en.Queued = true
		e.Ready.Push(queue.Item{Index: e.registerReady(e.RUU, ref), Seq: en.Seq, Mem: en.Mem, LongLatency: en.LongLatency, Ctrl: en.Ctrl})
		return true
	})

	drained := e.Ready.Drain(e.Opts.IssueWidth)
	for _, item := range drained {
		rr, ok := e.readyLookup[item.Index]
		delete(e.readyLookup, item.Index)
		if !ok {
			continue
		}
		entry, ok2 := rr.ring.At(rr.ref)
		if !ok2 {
			continue
		}
		if entry.Squashed || entry.Issued || entry.Completed {
			continue // a duplicate or stale ready-queue item for an already-handled entry
		}

		if entry.Opcode == isa.OpST {
			entry.Issued = true
			entry.Completed = true
			e.wakeDependents(entry)
			continue
		}

		if !e.FUPool.Acquire(entry.FU) {
			entry.Queued = false // rediscovered by next cycle's fresh scan
			continue
		}

		lat := e.FUPool.Latency(entry.FU)
		latency := uint64(lat.OpLat)
		if entry.Mem && entry.Opcode == isa.OpLD {
			if fwd := e.storeForwardLatency(entry); fwd > 0 {
				latency = fwd
			} else {
				cacheLat := e.DCache.Access(cache.CmdRead, entry.EffAddr, 8, e.cycleNum)
				tlbLat := e.DTLB.Access(cache.CmdRead, entry.EffAddr, 8, e.cycleNum)
				latency = cache.Max(cacheLat, tlbLat)
			}
			if entry.InLSQ {
				e.Stats.Loads++ // count each load once, on its LSQ half
			}
		}

		entry.Issued = true
		id := e.nextCompletionID()
		e.completions[id] = completionInfo{ref: rr.ref, fromLSQ: rr.ring == e.LSQ}
		e.Events.Schedule(e.cycleNum+latency, id)
		e.Tracer.Trace(trace.Event{Cycle: e.cycleNum, Thread: entry.ThreadID, RUUIndex: rr.ref.Index, Stage: trace.StageIssue, PC: entry.PC})
	}
}

// storeForwardLatency returns the 1-cycle forwarding latency if an earlier,
// value-ready store on the same thread targets the same address as load,
// or 0 if the load must access the cache instead (spec.md §8 "store
// forwarding" scenario).
func (e *Engine) storeForwardLatency(load *ruu.Entry) uint64 {
	found := false
	e.LSQ.Walk(func(ref rslink.Ref, en *ruu.Entry) bool {
		if en.Seq >= load.Seq {
			return false
		}
		if en.Squashed || en.ThreadID != load.ThreadID || en.Opcode != isa.OpST || en.EffAddr != load.EffAddr {
			return true
		}
		if en.NumIn < 2 || en.InputReady[1] {
			found = true
		}
		return true
	})
	if found {
		return 1
	}
	return 0
}

// writeback drains due completion events, wakes each completed entry's
// dependents via its RS-links, demotes its create-vector producer entries
// to the register file, and resolves any control instruction's fork/
// recovery outcome (spec.md §4.4).
func (e *Engine) writeback() {
	due := e.Events.PopDue(e.cycleNum)
	for _, ev := range due {
		meta, ok := e.completions[ev.Index]
		delete(e.completions, ev.Index)
		if !ok {
			continue
		}
		ring := e.RUU
		if meta.fromLSQ {
			ring = e.LSQ
		}
		entry, ok2 := ring.At(meta.ref)
		if !ok2 {
			continue // squashed before its completion event fired
		}

		entry.Completed = true
		e.wakeDependents(entry)

		view := e.CreateVec.ViewFor(entry.SpecMode, entry.ThreadID, entry.SpecLevel)
		for k := 0; k < entry.NumOut; k++ {
			if entry.OutputValid[k] {
				view.Demote(uint64(entry.OutputReg[k]), meta.ref)
			}
		}

		e.Tracer.Trace(trace.Event{Cycle: e.cycleNum, Thread: entry.ThreadID, RUUIndex: meta.ref.Index, Stage: trace.StageWriteback, PC: entry.PC})

		if entry.Ctrl {
			e.resolveBranch(entry, meta.ref)
		}
	}
}

// wakeDependents flips InputReady on every consumer linked off entry's
// output chains, then releases the links -- each is single-use, since a
// producer completes exactly once.
func (e *Engine) wakeDependents(entry *ruu.Entry) {
	// every chain head is walked, not only the first NumOut: a memory op's
	// address-gen half has NumOut 0 but carries the DTMP link on chain 0.
	for o := range entry.OutputLinkHead {
		head := entry.OutputLinkHead[o]
		for idx := head; idx != 0; {
			link := e.Links.At(idx)
			if consumer, _, ok := e.entryAndRing(link.Target); ok {
				consumer.InputReady[link.Operand] = true
			}
			idx = link.Next
		}
		e.Links.ReleaseChain(head)
		entry.OutputLinkHead[o] = 0
	}
}

// resolveBranch handles a completed control instruction: predictor update,
// and -- if it mispredicted -- fork resolution and recovery (spec.md §4.4
// bullet list, §4.6).
func (e *Engine) resolveBranch(entry *ruu.Entry, ref rslink.Ref) {
	predCorrect := entry.NextPC == entry.PredPC
	e.updateBranchPredictor(entry, predCorrect)

	if !entry.RecoverInst {
		return
	}

	if entry.TriggersFork {
		e.Stats.RecordFork(!predCorrect)
		if predCorrect {
			// the sibling fork explored the correct path for nothing: free
			// it (and its descendants) and let this thread carry on.
			e.recoverFrom(entry, rslink.Ref{}, entry.ForkCounter, false, 0)
			return
		}
		// the sibling fork explored the correct path and must survive: only
		// cascade descendants forked *after* it, plus this thread's own
		// now-invalid continuation.
		e.recoverFrom(entry, ref, entry.ForkCounter+1, true, entry.NextPC)
		return
	}

	// solo mispredict: no live sibling was created (thread pool was full).
	e.recoverFrom(entry, ref, entry.ForkCounter, true, entry.NextPC)
}

func (e *Engine) updateBranchPredictor(entry *ruu.Entry, correct bool) {
	if e.Opts.BpredSpecUpdate != config.SpecUpdateWB {
		return
	}
	predTaken := entry.PredPC != entry.PC+4
	taken := entry.NextPC != entry.PC+4
	e.Pred.Update(entry.PC, entry.NextPC, taken, predTaken, correct, entry.PredictorCookie)
}

// recoverFrom performs the squash walk, thread-table invalidation,
// fetch-queue squash, and (when includeOriginThread) the origin thread's own
// speculation rollback and fetch resumption, per spec.md §4.6.
func (e *Engine) recoverFrom(entry *ruu.Entry, branchRef rslink.Ref, epoch int, includeOriginThread bool, resumePC uint64) {
	threadID := entry.ThreadID
	pred := func(tid int) bool {
		if includeOriginThread && tid == threadID {
			return true
		}
		return e.Threads.MatchesRecoveryPredicate(tid, threadID, epoch)
	}

	for _, sref := range e.RUU.Recover(branchRef, pred) {
		e.CreateVec.ClearProducerEverywhere(sref)
	}
	for _, sref := range e.LSQ.Recover(branchRef, pred) {
		e.CreateVec.ClearProducerEverywhere(sref)
	}

	freed := e.Threads.Recover(threadID, epoch)
	for _, tid := range freed {
		e.CreateVec.DropThread(tid)
		e.IFQ.SquashThread(tid)
	}

	e.SpecMem.Clear()

	if includeOriginThread {
		origin := e.Threads.Slot(threadID)
		branchLevel := entry.SpecLevel
		e.Shadows[threadID].RollbackTo(branchLevel)
		e.CreateVec.DropThreadLevelsAbove(threadID, branchLevel)
		origin.SpecLevel = branchLevel
		origin.SpecMode = branchLevel >= 0
		origin.KeepFetching = true
		origin.FetchPC = resumePC
		origin.FetchPredPC = resumePC
		e.IFQ.SquashThread(threadID)
		e.Pred.Recover(entry.PC, entry.RASIndex)
	}

	e.fetchStallUntil = e.cycleNum + uint64(e.Opts.FetchMPLat)
}

// commit retires up to commit_width completed, non-speculative RUU entries
// in order, writing stores through to architectural memory (spec.md §4.5).
func (e *Engine) commit() {
	width := e.Opts.CommitWidth
	for n := 0; n < width; n++ {
		head, ref, ok := e.RUU.Head()
		if !ok {
			return
		}
		if head.Squashed {
			// its architectural effect is already void: retire it (and its
			// paired ea_comp LSQ entry, if any) without touching memory or
			// stats (§4.5 "A squashed entry at the head is silently retired").
			e.RUU.Retire()
			e.CreateVec.ClearProducerEverywhere(ref)
			if head.EAComp {
				if lsqHead, _, lok := e.LSQ.Head(); lok && lsqHead.Squashed {
					lsqRetired, _ := e.LSQ.Retire()
					e.CreateVec.ClearProducerEverywhere(lsqRetired.Ref)
				}
			}
			continue
		}
		if !head.Completed || head.SpecMode {
			return
		}
		if head.Mem {
			lsqHead, _, lok := e.LSQ.Head()
			if !lok || !lsqHead.Completed {
				return
			}
			// a retiring store needs a free memory port; without one,
			// commit stalls here until a later cycle (§4.5).
			if head.Opcode == isa.OpST && !e.FUPool.Acquire(isa.FUMemPort) {
				return
			}
		}

		retired, _ := e.RUU.Retire()
		e.CreateVec.ClearProducerEverywhere(ref)
		e.Stats.CommittedInsn++
		e.Stats.RecordSlip(e.cycleNum - retired.DispatchCycle)

		if retired.Mem {
			lsqRetired, _ := e.LSQ.Retire()
			e.CreateVec.ClearProducerEverywhere(lsqRetired.Ref)
			if retired.Opcode == isa.OpST {
				e.Stats.Stores++
				e.DCache.Access(cache.CmdWrite, retired.EffAddr, 8, e.cycleNum)
				e.Mem.Store(retired.EffAddr, lsqRetired.InputValue[1])
			}
		}

		if retired.Ctrl && e.Opts.BpredSpecUpdate == config.SpecUpdateCT {
			predTaken := retired.PredPC != retired.PC+4
			taken := retired.NextPC != retired.PC+4
			e.Pred.Update(retired.PC, retired.NextPC, taken, predTaken, retired.NextPC == retired.PredPC, retired.PredictorCookie)
		}

		e.Tracer.Trace(trace.Event{Cycle: e.cycleNum, Thread: retired.ThreadID, RUUIndex: ref.Index, Stage: trace.StageCommit, PC: retired.PC})

		if e.IFQ.Empty() && !anyThreadFetching(e.Threads, e.Opts.MaxThreads) {
			e.done = true
		}
	}
}

// anyThreadFetching reports whether any thread slot is still live and
// willing to fetch, used by commit to decide whether the simulation has
// drained (spec.md §2 driver-loop termination).
func anyThreadFetching(tbl *thread.Table, maxThreads int) bool {
	for i := 0; i < maxThreads; i++ {
		s := tbl.Slot(i)
		if s.InUse && s.KeepFetching {
			return true
		}
	}
	return false
}

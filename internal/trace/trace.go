// Package trace implements the optional pipe tracer of spec.md §6
// ("Optional pipe trace") and SPEC_FULL.md §C.2: a record of
// (cycle, thread, RUU-index, stage, PC) tuples, one per phase transition
// per instruction, matching the shape of the original simulator's
// ptrace_newuop/ptrace_newstage call sites.
package trace

import (
	"bufio"
	"encoding/gob"
	"io"
)

// Stage names one pipeline-phase transition an instruction passed
// through, mirroring the original's per-stage trace points.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageDispatch  Stage = "dispatch"
	StageIssue     Stage = "issue"
	StageWriteback Stage = "writeback"
	StageCommit    Stage = "commit"
	StageSquash    Stage = "squash"
)

// Event is one traced phase transition.
type Event struct {
	Cycle    uint64
	Thread   int
	RUUIndex uint32
	Stage    Stage
	PC       uint64
}

// Tracer receives one Event per phase transition the engine chooses to
// trace. Implementations must not block the pipeline; the file-backed
// implementation buffers writes.
type Tracer interface {
	Trace(e Event)
	Close() error
}

// noop is the default Tracer, used when no `-trace` destination is
// configured (§6: tracing is optional).
type noop struct{}

func (noop) Trace(Event)  {}
func (noop) Close() error { return nil }

// NoOp returns a Tracer that discards every event.
func NoOp() Tracer { return noop{} }

// FileTracer writes Events to an underlying writer using encoding/gob, one
// record per call, matching sim-outorder.c's "one tracer call per phase
// transition" cadence. gob is chosen over a text format because the trace
// is a replay/debugging artifact read back with Reader, not
// hand-inspected -- the same tradeoff the
// original made by emitting a private binary pipe format rather than text.
type FileTracer struct {
	w   *bufio.Writer
	enc *gob.Encoder
	c   io.Closer
}

// NewFileTracer wraps a WriteCloser (typically an opened file) as a
// Tracer.
func NewFileTracer(wc io.WriteCloser) *FileTracer {
	bw := bufio.NewWriter(wc)
	return &FileTracer{w: bw, enc: gob.NewEncoder(bw), c: wc}
}

// Trace encodes and buffers e. Encoding errors are swallowed -- tracing is
// a diagnostic aid, not core semantics, so a malformed trace record must
// never halt the simulator (spec.md §7's fatal-error list has no entry for
// tracing failures).
func (t *FileTracer) Trace(e Event) {
	_ = t.enc.Encode(e)
}

// Close flushes buffered writes and closes the underlying writer.
func (t *FileTracer) Close() error {
	if err := t.w.Flush(); err != nil {
		return err
	}
	return t.c.Close()
}

// Reader replays a trace file written by FileTracer, for inspection after
// the fact.
type Reader struct {
	dec *gob.Decoder
}

// NewReader wraps r for decoding.
func NewReader(r io.Reader) *Reader { return &Reader{dec: gob.NewDecoder(r)} }

// Next decodes the next Event, returning io.EOF when the stream is
// exhausted.
func (r *Reader) Next() (Event, error) {
	var e Event
	err := r.dec.Decode(&e)
	return e, err
}

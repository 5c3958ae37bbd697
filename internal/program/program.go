// Package program loads an engine.Program from a YAML instruction listing.
//
// spec.md never specifies an instruction encoding to decode (engine.go's
// state.go notes this explicitly: the engine is "handed already-decoded
// programs"), so something has to stand in for the missing front-end that
// would normally turn an object file into engine.StaticInst values. This
// package fills that gap the way internal/config fills the options gap: a
// plain struct with yaml tags, unmarshalled with gopkg.in/yaml.v2 and
// reported with github.com/pkg/errors, mirroring config.LoadYAML rather than
// inventing a binary object format or text assembler.
package program

import (
	"os"
	"strings"

	"github.com/eagerx-sim/eagerx/internal/engine"
	"github.com/eagerx-sim/eagerx/internal/isa"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Inst is one YAML instruction entry. Op names match isa.Table's Info.Name
// (case-insensitive); In/Out are logical register numbers; Imm is the
// immediate, or, for branch/jump/call ops, the absolute target address.
type Inst struct {
	Op  string   `yaml:"op"`
	In  []uint16 `yaml:"in,omitempty"`
	Out []uint16 `yaml:"out,omitempty"`
	Imm uint64   `yaml:"imm,omitempty"`
}

// Doc is the top-level YAML document shape.
type Doc struct {
	TextBase     uint64 `yaml:"text_base"`
	Instructions []Inst `yaml:"instructions"`
}

var byName map[string]isa.Opcode

func init() {
	byName = make(map[string]isa.Opcode, len(isa.Table))
	for op, info := range isa.Table {
		byName[info.Name] = op
	}
}

// Load reads a YAML program file and returns its text base address and
// decoded instruction stream, ready for engine.New.
func Load(path string) (uint64, engine.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "program: reading %s", path)
	}
	var doc Doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, nil, errors.Wrapf(err, "program: parsing %s", path)
	}
	prog := make(engine.Program, len(doc.Instructions))
	for i, inst := range doc.Instructions {
		op, ok := byName[strings.ToLower(inst.Op)]
		if !ok {
			return 0, nil, errors.Errorf("program: %s:%d: unknown opcode %q", path, i, inst.Op)
		}
		si := engine.StaticInst{Opcode: op, Imm: inst.Imm}
		for j, r := range inst.In {
			if j >= len(si.In) {
				return 0, nil, errors.Errorf("program: %s:%d: too many inputs for %q", path, i, inst.Op)
			}
			si.In[j] = r
		}
		for j, r := range inst.Out {
			if j >= len(si.Out) {
				return 0, nil, errors.Errorf("program: %s:%d: too many outputs for %q", path, i, inst.Op)
			}
			si.Out[j] = r
		}
		prog[i] = si
	}
	return doc.TextBase, prog, nil
}

// Demo returns a small self-contained loop program (a countdown from 5 to
// 0 with a dependent add chain) used by `eagerx run`/`eagerx debug` when no
// --program file is given, so the CLI has something to execute out of the
// box.
func Demo() (uint64, engine.Program) {
	const base = 0x400000
	prog := engine.Program{
		{Opcode: isa.OpMOVI, Out: [isa.MaxODeps]uint16{1}, Imm: 5},                    // r1 = 5
		{Opcode: isa.OpMOVI, Out: [isa.MaxODeps]uint16{2}, Imm: 0},                    // r2 = 0
		{Opcode: isa.OpADDI, In: [isa.MaxIDeps]uint16{2}, Out: [isa.MaxODeps]uint16{2}, Imm: 1}, // r2 += 1
		{Opcode: isa.OpADDI, In: [isa.MaxIDeps]uint16{1}, Out: [isa.MaxODeps]uint16{1}, Imm: ^uint64(0)}, // r1 -= 1
		{Opcode: isa.OpMOVI, Out: [isa.MaxODeps]uint16{3}, Imm: 0},                    // r3 = 0
		{Opcode: isa.OpBNE, In: [isa.MaxIDeps]uint16{1, 3}, Imm: base + 4*2},          // loop while r1 != 0
		{Opcode: isa.OpNOP},
	}
	return base, prog
}

package program

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eagerx-sim/eagerx/internal/isa"
	"github.com/stretchr/testify/require"
)

func TestLoadDecodesInstructions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
text_base: 4194304
instructions:
  - op: movi
    out: [1]
    imm: 5
  - op: add
    in: [1, 1]
    out: [2]
  - op: beq
    in: [1, 0]
    imm: 4194308
`), 0o644))

	base, prog, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(4194304), base)
	require.Len(t, prog, 3)
	require.Equal(t, isa.OpMOVI, prog[0].Opcode)
	require.Equal(t, uint16(1), prog[0].Out[0])
	require.Equal(t, isa.OpADD, prog[1].Opcode)
	require.Equal(t, [isa.MaxIDeps]uint16{1, 1}, prog[1].In)
	require.Equal(t, isa.OpBEQ, prog[2].Opcode)
	require.Equal(t, uint64(4194308), prog[2].Imm)
}

func TestLoadRejectsUnknownOpcode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instructions:\n  - op: frobnicate\n"), 0o644))

	_, _, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown opcode")
}

func TestLoadMissingFileIsWrappedError(t *testing.T) {
	_, _, err := Load("/nonexistent/path/to/program.yaml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "program:")
}

func TestDemoProducesARunnableLoop(t *testing.T) {
	base, prog := Demo()
	require.NotZero(t, base)
	require.NotEmpty(t, prog)
	require.Equal(t, isa.OpBNE, prog[len(prog)-2].Opcode)
}

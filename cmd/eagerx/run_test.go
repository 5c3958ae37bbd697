package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eagerx-sim/eagerx/internal/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// newTestRunCmd builds an isolated cobra.Command + flag set wired the same
// way runCmd's init() wires the real one, but against its own runOpts copy
// so tests don't fight over the package-level flag state.
func newTestRunCmd(t *testing.T) *cobra.Command {
	t.Helper()
	prevOpts, prevConfig, prevProgram, prevStartPC, prevTrace, prevMetrics :=
		runOpts, runConfigPath, runProgram, runStartPC, runTracePath, runMetricsAddr
	t.Cleanup(func() {
		runOpts, runConfigPath, runProgram, runStartPC, runTracePath, runMetricsAddr =
			prevOpts, prevConfig, prevProgram, prevStartPC, prevTrace, prevMetrics
	})

	runOpts = config.Default()
	runConfigPath, runProgram, runStartPC, runTracePath, runMetricsAddr = "", "", 0, "", ""

	cmd := &cobra.Command{Use: "run"}
	runOpts.BindFlags(cmd)
	cmd.Flags().StringVar(&runConfigPath, "config", "", "")
	cmd.Flags().StringVar(&runProgram, "program", "", "")
	cmd.Flags().Uint64Var(&runStartPC, "start-pc", 0, "")
	cmd.Flags().StringVar(&runTracePath, "trace", "", "")
	cmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "")
	return cmd
}

func TestResolveOptionsConfigFileWithNoFlagOverrides(t *testing.T) {
	cmd := newTestRunCmd(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ruu_size: 64\nmax_threads: 8\n"), 0o644))
	require.NoError(t, cmd.Flags().Parse([]string{"--config=" + path}))

	opts, err := resolveOptions(cmd)
	require.NoError(t, err)
	require.Equal(t, 64, opts.RUUSize)
	require.Equal(t, 8, opts.MaxThreads)
}

func TestResolveOptionsExplicitFlagWinsOverConfigFile(t *testing.T) {
	cmd := newTestRunCmd(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ruu_size: 64\n"), 0o644))
	require.NoError(t, cmd.Flags().Parse([]string{"--config=" + path, "--ruu-size=32"}))

	opts, err := resolveOptions(cmd)
	require.NoError(t, err)
	require.Equal(t, 32, opts.RUUSize, "the explicitly-typed flag must win over the config file")
}

func TestResolveOptionsNoConfigFileReturnsFlagBoundOptions(t *testing.T) {
	cmd := newTestRunCmd(t)
	require.NoError(t, cmd.Flags().Parse([]string{"--lsq-size=4"}))

	opts, err := resolveOptions(cmd)
	require.NoError(t, err)
	require.Equal(t, 4, opts.LSQSize)
}

func TestBuildEngineForRunUsesDemoProgramByDefault(t *testing.T) {
	cmd := newTestRunCmd(t)
	require.NoError(t, cmd.Flags().Parse(nil))

	e, err := buildEngineForRun(cmd)
	require.NoError(t, err)
	require.NotEmpty(t, e.Program)
	require.Equal(t, uint64(0x400000), e.TextBase)
}

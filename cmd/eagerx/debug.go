package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/eagerx-sim/eagerx/internal/engine"
	"github.com/eagerx-sim/eagerx/internal/rslink"
	"github.com/eagerx-sim/eagerx/internal/ruu"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "single-step the simulator under a minimal REPL (n=next cycle, p=print RUU, q=quit)",
	RunE:  runDebug,
}

func init() {
	runOpts.BindFlags(debugCmd)
	debugCmd.Flags().StringVar(&runConfigPath, "config", "", "load options from a YAML file; explicit flags still override it")
	debugCmd.Flags().StringVar(&runProgram, "program", "", "YAML instruction listing; defaults to a built-in demo")
	debugCmd.Flags().Uint64Var(&runStartPC, "start-pc", 0, "thread 0's initial fetch PC; defaults to the program's text base")
}

func runDebug(cmd *cobra.Command, args []string) error {
	e, err := buildEngineForRun(cmd)
	if err != nil {
		return err
	}
	defer e.Tracer.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s debug -- n=next cycle, p=print RUU, q=quit\n", appName)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprintf(out, "(cycle %d) > ", e.Stats.Cycle)
		if !scanner.Scan() {
			return nil
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "n", "":
			if done, _ := e.Step(); done {
				fmt.Fprintln(out, "simulation finished")
				e.Stats.Report(out)
				return nil
			}
		case "p":
			printRUU(out, e)
		case "q":
			return nil
		default:
			fmt.Fprintln(out, "commands: n=next cycle, p=print RUU, q=quit")
		}
	}
}

// printRUU prints one line per live RUU entry, oldest first, for the
// debug REPL's `p` command.
func printRUU(w io.Writer, e *engine.Engine) {
	fmt.Fprintf(w, "RUU %d/%d  LSQ %d/%d\n", e.RUU.Num(), e.RUU.Cap(), e.LSQ.Num(), e.LSQ.Cap())
	e.RUU.Walk(func(ref rslink.Ref, entry *ruu.Entry) bool {
		fmt.Fprintf(w, "  [%d.%d] pc=%#x thread=%d seq=%d queued=%v issued=%v completed=%v squashed=%v\n",
			ref.Index, ref.Tag, entry.PC, entry.ThreadID, entry.Seq, entry.Queued, entry.Issued, entry.Completed, entry.Squashed)
		return true
	})
}

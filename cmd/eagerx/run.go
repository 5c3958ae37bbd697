package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/eagerx-sim/eagerx/internal/config"
	"github.com/eagerx-sim/eagerx/internal/engine"
	"github.com/eagerx-sim/eagerx/internal/program"
	"github.com/eagerx-sim/eagerx/internal/stats"
	"github.com/eagerx-sim/eagerx/internal/trace"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	runOpts        = config.Default()
	runConfigPath  string
	runProgram     string
	runStartPC     uint64
	runTracePath   string
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a program to completion and print the statistics report",
	RunE:  runRun,
}

func init() {
	runOpts.BindFlags(runCmd)
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "load options from a YAML file; explicit flags still override it")
	runCmd.Flags().StringVar(&runProgram, "program", "", "YAML instruction listing (internal/program.Load); defaults to a built-in demo")
	runCmd.Flags().Uint64Var(&runStartPC, "start-pc", 0, "thread 0's initial fetch PC; defaults to the program's text base")
	runCmd.Flags().StringVar(&runTracePath, "trace", "", "write a gob-encoded pipe trace to this file")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (e.g. :9090) until the run finishes")
}

// flagOverrides lists every run flag that BindFlags also registers, so a
// --config load can start from the YAML file's values while still letting
// flags the user actually typed win, per config.Options.BindFlags' own
// doc comment ("load a YAML file first, then let command-line flags win").
var flagOverrides = map[string]func(dst, src *config.Options){
	"max-inst":                  func(d, s *config.Options) { d.MaxInst = s.MaxInst },
	"fastfwd":                   func(d, s *config.Options) { d.FastFwd = s.FastFwd },
	"fetch-ifqsize":             func(d, s *config.Options) { d.FetchIFQSize = s.FetchIFQSize },
	"fetch-speed":               func(d, s *config.Options) { d.FetchSpeed = s.FetchSpeed },
	"fetch-mplat":               func(d, s *config.Options) { d.FetchMPLat = s.FetchMPLat },
	"decode-width":              func(d, s *config.Options) { d.DecodeWidth = s.DecodeWidth },
	"issue-width":               func(d, s *config.Options) { d.IssueWidth = s.IssueWidth },
	"commit-width":              func(d, s *config.Options) { d.CommitWidth = s.CommitWidth },
	"issue-inorder":             func(d, s *config.Options) { d.IssueInOrder = s.IssueInOrder },
	"issue-wrongpath":           func(d, s *config.Options) { d.IssueWrongPath = s.IssueWrongPath },
	"ruu-size":                  func(d, s *config.Options) { d.RUUSize = s.RUUSize },
	"lsq-size":                  func(d, s *config.Options) { d.LSQSize = s.LSQSize },
	"bpred":                     func(d, s *config.Options) { d.Bpred = s.Bpred },
	"bpred-spec-update":         func(d, s *config.Options) { d.BpredSpecUpdate = s.BpredSpecUpdate },
	"cache-dl1":                 func(d, s *config.Options) { d.CacheDL1 = s.CacheDL1 },
	"cache-dl2":                 func(d, s *config.Options) { d.CacheDL2 = s.CacheDL2 },
	"cache-il1":                 func(d, s *config.Options) { d.CacheIL1 = s.CacheIL1 },
	"cache-il2":                 func(d, s *config.Options) { d.CacheIL2 = s.CacheIL2 },
	"tlb-itlb":                  func(d, s *config.Options) { d.TLBITLB = s.TLBITLB },
	"tlb-dtlb":                  func(d, s *config.Options) { d.TLBDTLB = s.TLBDTLB },
	"tlb-lat":                   func(d, s *config.Options) { d.TLBLat = s.TLBLat },
	"res-ialu":                  func(d, s *config.Options) { d.ResIALU = s.ResIALU },
	"res-imult":                 func(d, s *config.Options) { d.ResIMult = s.ResIMult },
	"res-memport":               func(d, s *config.Options) { d.ResMemPort = s.ResMemPort },
	"res-fpalu":                 func(d, s *config.Options) { d.ResFPALU = s.ResFPALU },
	"res-fpmult":                func(d, s *config.Options) { d.ResFPMult = s.ResFPMult },
	"max-threads":               func(d, s *config.Options) { d.MaxThreads = s.MaxThreads },
	"fork-penalty":              func(d, s *config.Options) { d.ForkPenalty = s.ForkPenalty },
	"max-fetches-before-switch": func(d, s *config.Options) { d.MaxFetchesBeforeSwitch = s.MaxFetchesBeforeSwitch },
}

// resolveOptions applies --config (if given) as the base, then re-applies
// every flag the user explicitly typed on top of it.
func resolveOptions(cmd *cobra.Command) (*config.Options, error) {
	if runConfigPath == "" {
		return runOpts, nil
	}
	opts, err := config.LoadYAML(runConfigPath)
	if err != nil {
		return nil, err
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if apply, ok := flagOverrides[f.Name]; ok {
			apply(opts, runOpts)
		}
	})
	return opts, nil
}

func buildEngineForRun(cmd *cobra.Command) (*engine.Engine, error) {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var textBase uint64
	var prog engine.Program
	if runProgram != "" {
		textBase, prog, err = program.Load(runProgram)
		if err != nil {
			return nil, err
		}
	} else {
		textBase, prog = program.Demo()
	}

	e := engine.New(opts, prog, newLogger())
	e.TextBase = textBase
	startPC := runStartPC
	if startPC == 0 {
		startPC = textBase
	}
	if opts.FastFwd > 0 {
		e.FastForward(startPC, opts.FastFwd)
	} else {
		e.Threads.Slot(0).FetchPC = startPC
		e.Threads.Slot(0).FetchPredPC = startPC
	}

	if runTracePath != "" {
		f, err := os.Create(runTracePath)
		if err != nil {
			return nil, err
		}
		e.Tracer = trace.NewFileTracer(f)
	}
	return e, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := buildEngineForRun(cmd)
	if err != nil {
		return err
	}
	defer e.Tracer.Close()

	if runMetricsAddr != "" {
		reg := stats.NewRegistry(e.Stats)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: runMetricsAddr, Handler: mux}
		go func() {
			e.Log.Info().Str("addr", runMetricsAddr).Msg("serving /metrics")
			_ = srv.ListenAndServe()
		}()
		defer srv.Close()
	}

	if err := e.Run(0); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s run finished in %d cycles\n", appName, e.Stats.Cycle)
	e.Stats.Report(cmd.OutOrStdout())
	return nil
}

// Package config implements the command-line/configuration surface of
// spec.md §6 and the configuration-error validation of §7: a flat Options
// struct bound to cobra/pflag flags or loaded from YAML, validated once at
// start-up with pkg/errors-wrapped diagnostics.
//
// Grounded on intel-PerfSpect's cmd/config flag-group pattern
// (flag.go/flag_groups.go: named flags with a validation function attached
// at registration time) -- generalized here from per-target runtime flags
// to the simulator's static Options struct, validated as a batch rather
// than per-flag, since these options are fixed for an entire run rather
// than queried live against remote targets.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// BpredKind is the branch-predictor selection, spec.md §6 `bpred`.
type BpredKind string

const (
	BpredNotTaken BpredKind = "nottaken"
	BpredTaken    BpredKind = "taken"
	BpredPerfect  BpredKind = "perfect"
	BpredBimodal  BpredKind = "bimod"
	BpredTwoLevel BpredKind = "2lev"
	BpredComb     BpredKind = "comb"
)

// SpecUpdateKind is spec.md §6 `bpred:spec_update`.
type SpecUpdateKind string

const (
	SpecUpdateID SpecUpdateKind = "ID"
	SpecUpdateWB SpecUpdateKind = "WB"
	SpecUpdateCT SpecUpdateKind = "CT"
)

// Options is the full set of options spec.md §6 lists as the core's
// configuration surface. YAML tags let this be loaded from a config file;
// pflag names (bound in BindFlags) mirror the spec's option names.
// IssueInOrder, IssueWrongPath, CacheDL2, CacheIL2 and ForkPenalty are
// parsed and bound but not read by engine.New: issue is always out of
// order, no L2 level is built, and forks are not charged extra cycles.
type Options struct {
	MaxInst int `yaml:"max_inst"`
	FastFwd int `yaml:"fastfwd"`

	FetchIFQSize int `yaml:"fetch_ifqsize"`
	FetchSpeed   int `yaml:"fetch_speed"`
	FetchMPLat   int `yaml:"fetch_mplat"`

	DecodeWidth int `yaml:"decode_width"`
	IssueWidth  int `yaml:"issue_width"`
	CommitWidth int `yaml:"commit_width"`

	IssueInOrder   bool `yaml:"issue_inorder"`
	IssueWrongPath bool `yaml:"issue_wrongpath"`

	RUUSize int `yaml:"ruu_size"`
	LSQSize int `yaml:"lsq_size"`

	Bpred           BpredKind      `yaml:"bpred"`
	BpredSpecUpdate SpecUpdateKind `yaml:"bpred_spec_update"`

	CacheDL1 string `yaml:"cache_dl1"`
	CacheDL2 string `yaml:"cache_dl2"`
	CacheIL1 string `yaml:"cache_il1"`
	CacheIL2 string `yaml:"cache_il2"`

	TLBITLB string `yaml:"tlb_itlb"`
	TLBDTLB string `yaml:"tlb_dtlb"`
	TLBLat  int    `yaml:"tlb_lat"`

	ResIALU    int `yaml:"res_ialu"`
	ResIMult   int `yaml:"res_imult"`
	ResMemPort int `yaml:"res_memport"`
	ResFPALU   int `yaml:"res_fpalu"`
	ResFPMult  int `yaml:"res_fpmult"`

	MaxThreads             int `yaml:"max_threads"`
	ForkPenalty            int `yaml:"fork_penalty"`
	MaxFetchesBeforeSwitch int `yaml:"max_fetches_before_switch"`
}

// MaxThreadsHardLimit is spec.md §6's MAX_THREADS=16.
const MaxThreadsHardLimit = 16

// Default returns the simulator's baseline configuration.
func Default() *Options {
	return &Options{
		MaxInst:      0, // 0 == unlimited
		FastFwd:      0,
		FetchIFQSize: 8,
		FetchSpeed:   1,
		FetchMPLat:   1,
		DecodeWidth:  4,
		IssueWidth:   4,
		CommitWidth:  4,
		RUUSize:      16,
		LSQSize:      8,

		Bpred:           BpredBimodal,
		BpredSpecUpdate: SpecUpdateWB,

		CacheDL1: "dl1:128:32:4:l",
		CacheDL2: "none",
		CacheIL1: "il1:128:32:1:l",
		CacheIL2: "none",

		TLBITLB: "itlb:16:4096:4:l",
		TLBDTLB: "dtlb:32:4096:4:l",
		TLBLat:  30,

		ResIALU:    4,
		ResIMult:   1,
		ResMemPort: 2,
		ResFPALU:   2,
		ResFPMult:  1,

		MaxThreads:             4,
		ForkPenalty:            0,
		MaxFetchesBeforeSwitch: 4,
	}
}

// BindFlags registers every spec.md §6 option as a pflag on cmd, bound to
// o's fields and defaulting to o's current values (so callers can load a
// YAML file first, then let command-line flags win).
func (o *Options) BindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&o.MaxInst, "max-inst", o.MaxInst, "instruction budget (0 = unlimited)")
	f.IntVar(&o.FastFwd, "fastfwd", o.FastFwd, "functional-only warm-up instruction count")
	f.IntVar(&o.FetchIFQSize, "fetch-ifqsize", o.FetchIFQSize, "fetch queue capacity, power of two")
	f.IntVar(&o.FetchSpeed, "fetch-speed", o.FetchSpeed, "front-end fetch multiplier")
	f.IntVar(&o.FetchMPLat, "fetch-mplat", o.FetchMPLat, "mispredict fetch stall, in cycles")
	f.IntVar(&o.DecodeWidth, "decode-width", o.DecodeWidth, "decode/dispatch width, power of two")
	f.IntVar(&o.IssueWidth, "issue-width", o.IssueWidth, "issue width, power of two")
	f.IntVar(&o.CommitWidth, "commit-width", o.CommitWidth, "commit width, power of two")
	f.BoolVar(&o.IssueInOrder, "issue-inorder", o.IssueInOrder, "force strict in-order issue (not read by the engine)")
	f.BoolVar(&o.IssueWrongPath, "issue-wrongpath", o.IssueWrongPath, "include mis-speculated paths in issue stats (not read by the engine)")
	f.IntVar(&o.RUUSize, "ruu-size", o.RUUSize, "reorder buffer size, power of two, >= 2")
	f.IntVar(&o.LSQSize, "lsq-size", o.LSQSize, "load/store queue size, power of two, >= 2")
	f.StringVar((*string)(&o.Bpred), "bpred", string(o.Bpred), "predictor: nottaken|taken|perfect|bimod|2lev|comb")
	f.StringVar((*string)(&o.BpredSpecUpdate), "bpred-spec-update", string(o.BpredSpecUpdate), "update policy: ID|WB|CT")
	f.StringVar(&o.CacheDL1, "cache-dl1", o.CacheDL1, "L1 data cache config or none/dl1/dl2")
	f.StringVar(&o.CacheDL2, "cache-dl2", o.CacheDL2, "L2 data cache config or none (not read by the engine)")
	f.StringVar(&o.CacheIL1, "cache-il1", o.CacheIL1, "L1 instruction cache config or none/dl1/dl2")
	f.StringVar(&o.CacheIL2, "cache-il2", o.CacheIL2, "L2 instruction cache config or none (not read by the engine)")
	f.StringVar(&o.TLBITLB, "tlb-itlb", o.TLBITLB, "instruction TLB config or none")
	f.StringVar(&o.TLBDTLB, "tlb-dtlb", o.TLBDTLB, "data TLB config or none")
	f.IntVar(&o.TLBLat, "tlb-lat", o.TLBLat, "TLB miss latency, cycles")
	f.IntVar(&o.ResIALU, "res-ialu", o.ResIALU, "integer ALU count")
	f.IntVar(&o.ResIMult, "res-imult", o.ResIMult, "integer mul/div unit count")
	f.IntVar(&o.ResMemPort, "res-memport", o.ResMemPort, "memory port count")
	f.IntVar(&o.ResFPALU, "res-fpalu", o.ResFPALU, "FP adder count")
	f.IntVar(&o.ResFPMult, "res-fpmult", o.ResFPMult, "FP mul/div unit count")
	f.IntVar(&o.MaxThreads, "max-threads", o.MaxThreads, fmt.Sprintf("simultaneous live threads, <= %d", MaxThreadsHardLimit))
	f.IntVar(&o.ForkPenalty, "fork-penalty", o.ForkPenalty, "cycles charged per successful fork (not read by the engine)")
	f.IntVar(&o.MaxFetchesBeforeSwitch, "max-fetches-before-switch", o.MaxFetchesBeforeSwitch, "round-robin fetch quantum")
}

// LoadYAML reads options from path, overlaying them onto a copy of
// Default(). Used when a run is launched with `--config`.
func LoadYAML(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}
	o := Default()
	if err := yaml.Unmarshal(data, o); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}
	return o, nil
}

// isPow2 reports whether n is a positive power of two.
func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// Validate applies spec.md §7's configuration-error checks: bad option
// shape, non-power-of-two where required, zero latency, unknown predictor
// name. Every failure is fatal at start-up with a one-line diagnostic, so
// Validate collects and returns the first one found wrapped with context.
func (o *Options) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{isPow2(o.FetchIFQSize), "fetch:ifqsize must be a power of two"},
		{isPow2(o.DecodeWidth), "decode:width must be a power of two"},
		{isPow2(o.IssueWidth), "issue:width must be a power of two"},
		{isPow2(o.CommitWidth), "commit:width must be a power of two"},
		{isPow2(o.RUUSize) && o.RUUSize >= 2, "ruu:size must be a power of two >= 2"},
		{isPow2(o.LSQSize) && o.LSQSize >= 2, "lsq:size must be a power of two >= 2"},
		{o.RUUSize >= o.LSQSize, "ruu:size must be >= lsq:size"},
		{o.FetchSpeed > 0, "fetch:speed must be positive"},
		{o.FetchMPLat >= 0, "fetch:mplat must not be negative"},
		{o.TLBLat > 0, "tlb:lat must be a positive latency"},
		{o.MaxThreads >= 1 && o.MaxThreads <= MaxThreadsHardLimit, fmt.Sprintf("max:threads must be in [1, %d]", MaxThreadsHardLimit)},
		{o.ForkPenalty >= 0, "fork_penalty must not be negative"},
		{o.MaxFetchesBeforeSwitch >= 1, "max:fetches_before_switch must be positive"},
		{o.ResIALU > 0, "res:ialu must be positive"},
		{o.ResMemPort > 0, "res:memport must be positive"},
		{isValidBpred(o.Bpred), fmt.Sprintf("unknown bpred %q", o.Bpred)},
		{isValidSpecUpdate(o.BpredSpecUpdate), fmt.Sprintf("unknown bpred:spec_update %q", o.BpredSpecUpdate)},
	}
	for _, c := range checks {
		if !c.ok {
			return errors.Errorf("config: %s", c.msg)
		}
	}
	return nil
}

func isValidBpred(k BpredKind) bool {
	switch k {
	case BpredNotTaken, BpredTaken, BpredPerfect, BpredBimodal, BpredTwoLevel, BpredComb:
		return true
	default:
		return false
	}
}

func isValidSpecUpdate(k SpecUpdateKind) bool {
	switch k {
	case SpecUpdateID, SpecUpdateWB, SpecUpdateCT:
		return true
	default:
		return false
	}
}

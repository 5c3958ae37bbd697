package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const appName = "eagerx"

var flagVerbose bool

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "cycle-accurate out-of-order superscalar simulator with speculative multithreading",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.AddCommand(runCmd, debugCmd, versionCmd)
}

// newLogger builds the engine-wide logger per the verbosity flag, written
// to stderr so stdout stays free for the stats report.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", appName).Logger()
}

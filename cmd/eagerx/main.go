// Command eagerx drives the simulator core in internal/engine from the
// command line: run to completion, single-step under a debug REPL, or
// print the build version.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

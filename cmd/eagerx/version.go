package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildVersion is overwritten by -ldflags "-X main.buildVersion=..." at
// release build time.
var buildVersion = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, buildVersion)
		return nil
	},
}

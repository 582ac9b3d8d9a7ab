package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	// VersionMajor is the major number in anomalyscore's version
	VersionMajor = 0
	// VersionMinor is the minor number in anomalyscore's version
	VersionMinor = 1
	// VersionPatch is the patch number in anomalyscore's version
	VersionPatch = 0
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of anomalyscore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "anomalyscore v%d.%d.%d\n", VersionMajor, VersionMinor, VersionPatch)
		},
	}
}

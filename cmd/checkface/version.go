package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/version"
)

var versionLong bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		if versionLong {
			fmt.Fprintf(cmd.OutOrStdout(), "checkface %s\n", version.Long())
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checkface version %s\n", version.Get())
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionLong, "long", "l", false, "Include build revision and Go version")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.4.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fendesk",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fendesk version %s\n", version)
	},
}

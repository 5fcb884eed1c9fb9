// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ragprep/pkg/types"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of ragprep",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragprep %s (pipeline %s)\n", version, types.PipelineVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

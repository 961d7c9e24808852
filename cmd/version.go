package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wna/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wna version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wna %s\n", config.Version)
	},
}

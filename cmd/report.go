package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wna/report"
)

var reportCmd = &cobra.Command{
	Use:   "generate-report",
	Short: "Render an HTML overview of every archived story",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := report.Generate(settings.WorkspacePath)
		if err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", path)
		return nil
	},
}

// Package cmd wires the CLI surface. Commands stay thin: flag parsing and
// output formatting here, behavior in the domain packages.
package cmd

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"wna/config"
	"wna/logx"
	"wna/sites"
)

var (
	cfgPath  string
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "wna",
	Short: "Archive webnovels into EPUB files",
	Long: `wna downloads webnovel chapters, cleans their HTML and packages them
into EPUB volumes, keeping durable per-story progress state in a local
workspace so runs are incremental and resumable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		s, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		settings = s

		if err := logx.Init(s.WorkspacePath); err != nil {
			// Logging falls back to stderr; not worth failing the run
			log.Printf("[CLI] Could not open workspace log: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logx.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgPath, "config", config.DefaultPath(), "path to the INI config file",
	)

	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(cloudBackupCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI. Any unhandled error exits non-zero; warnings are
// logged and never affect the exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func supportedHostsLine() string {
	hosts := sites.SupportedHosts()
	sort.Strings(hosts)
	return "Supported sources: " + strings.Join(hosts, ", ")
}

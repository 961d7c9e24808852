package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wna/sites"
	"wna/workspace"
)

var migrateOpts struct {
	story       string
	migrateType string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate --type royalroad-legacy-id",
	Short: "Upgrade a pre-index workspace in place",
	Long: `Migrate assigns permanent IDs to stories archived before the story index
existed, renames their folders to match the recorded title, and rebuilds
index.json. Safe to re-run; already-migrated stories are left alone.`,
	RunE: runMigrate,
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateOpts.story, "story", "", "migrate only this story folder name")
	f.StringVar(&migrateOpts.migrateType, "type", "", "migration to run (royalroad-legacy-id)")
	migrateCmd.MarkFlagRequired("type")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateOpts.migrateType != "royalroad-legacy-id" {
		return fmt.Errorf("unknown migration type %q", migrateOpts.migrateType)
	}

	derive := func(storyURL string) (string, error) {
		f, err := sites.ForURL(storyURL, nil)
		if err != nil {
			return "", err
		}
		return f.PermanentID(storyURL)
	}

	summary, err := workspace.MigrateLegacyIDs(settings.WorkspacePath, derive, migrateOpts.story)
	if summary != nil {
		fmt.Printf("Scanned %d stories: %d migrated, %d folders renamed, %d skipped\n",
			summary.Scanned, summary.Migrated, summary.Renamed, summary.Skipped)
	}
	return err
}

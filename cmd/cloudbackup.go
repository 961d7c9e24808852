package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wna/cloud"
)

var backupOpts struct {
	story           string
	service         string
	target          string
	forceFullUpload bool
}

var cloudBackupCmd = &cobra.Command{
	Use:   "cloud-backup",
	Short: "Replicate progress files and EPUBs to cloud storage",
	Long: `Cloud-backup uploads each story's progress file and generated EPUB files
to the configured storage service, skipping files whose remote copy is
already current.`,
	RunE: runCloudBackup,
}

func init() {
	f := cloudBackupCmd.Flags()
	f.StringVar(&backupOpts.story, "story", "", "back up only this permanent story ID")
	f.StringVar(&backupOpts.service, "service", "localdir", "storage service: localdir or gdrive")
	f.StringVar(&backupOpts.target, "target", "", "target directory for the localdir service")
	f.BoolVar(&backupOpts.forceFullUpload, "force-full-upload", false, "upload everything, ignoring remote timestamps")
}

func runCloudBackup(cmd *cobra.Command, args []string) error {
	store, err := cloud.ForService(backupOpts.service, backupOpts.target)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := cloud.Backup(ctx, settings.WorkspacePath, store, cloud.Options{
		PermanentID:     backupOpts.story,
		ForceFullUpload: backupOpts.forceFullUpload,
	})
	if summary != nil {
		fmt.Printf("Backed up %d stories: %d uploaded, %d skipped, %d failed\n",
			summary.Stories, summary.Uploaded, summary.Skipped, summary.Failed)
	}
	return err
}

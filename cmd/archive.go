package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"wna/archiver"
	"wna/downloader"
	"wna/epub"
	"wna/progress"
)

var archiveOpts struct {
	outputDir           string
	titleOverride       string
	keepTempFiles       bool
	forceReprocessing   bool
	sentenceRemovalFile string
	noSentenceRemoval   bool
	chaptersPerVolume   int
	epubContents        string
	chapterLimit        int
	resumeFrom          string
}

var archiveCmd = &cobra.Command{
	Use:   "archive <story_url>",
	Short: "Download, clean and package one story",
	Long: `Archive fetches the story's chapter manifest, reconciles it against the
workspace's progress record, downloads what is new or broken, and rebuilds
the EPUB volumes. Interrupting with Ctrl-C saves partial progress; the next
run resumes where this one stopped.

` + supportedHostsLine(),
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	f := archiveCmd.Flags()
	f.StringVar(&archiveOpts.outputDir, "output-dir", "", "write EPUB files here instead of the workspace ebooks folder")
	f.StringVar(&archiveOpts.titleOverride, "ebook-title-override", "", "use this title for folders and EPUB metadata")
	f.BoolVar(&archiveOpts.keepTempFiles, "keep-temp-files", false, "keep raw and processed chapter files after the run")
	f.BoolVar(&archiveOpts.forceReprocessing, "force-reprocessing", false, "re-download and re-clean every chapter in the manifest")
	f.StringVar(&archiveOpts.sentenceRemovalFile, "sentence-removal-file", "", "JSON file of literal strings and regexes to strip from chapter text")
	f.BoolVar(&archiveOpts.noSentenceRemoval, "no-sentence-removal", false, "disable sentence removal even when configured")
	f.IntVar(&archiveOpts.chaptersPerVolume, "chapters-per-volume", 0, "split the EPUB into volumes of this many chapters (0 = one volume)")
	f.StringVar(&archiveOpts.epubContents, "epub-contents", string(epub.ContentsAll), "chapters to include: all or active-only")
	f.IntVar(&archiveOpts.chapterLimit, "chapter-limit", 0, "cap successful downloads this run (0 = unlimited)")
	f.StringVar(&archiveOpts.resumeFrom, "resume-from", "", "skip manifest entries before this chapter URL")

	archiveCmd.MarkFlagsMutuallyExclusive("sentence-removal-file", "no-sentence-removal")
}

func runArchive(cmd *cobra.Command, args []string) error {
	contents := epub.Contents(archiveOpts.epubContents)
	if contents != epub.ContentsAll && contents != epub.ContentsActiveOnly {
		return fmt.Errorf("invalid --epub-contents %q: must be all or active-only", archiveOpts.epubContents)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := archiver.NewRunner(settings)

	var bar *progressbar.ProgressBar
	runner.OnProgress = func(done, total int, chapterTitle string, out downloader.Outcome) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Downloading"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		if out.Status == progress.StatusFailed {
			fmt.Fprintf(os.Stderr, "\nWarning: %s failed (%s)\n", chapterTitle, out.ErrorInfo.Type)
		}
		bar.Set(done)
	}

	summary, err := runner.Run(ctx, archiver.Options{
		StoryURL:            args[0],
		TitleOverride:       archiveOpts.titleOverride,
		KeepTempFiles:       archiveOpts.keepTempFiles,
		ForceReprocessing:   archiveOpts.forceReprocessing,
		SentenceRemovalFile: archiveOpts.sentenceRemovalFile,
		NoSentenceRemoval:   archiveOpts.noSentenceRemoval,
		OutputDir:           archiveOpts.outputDir,
		ChaptersPerVolume:   archiveOpts.chaptersPerVolume,
		EpubContents:        contents,
		ChapterLimit:        archiveOpts.chapterLimit,
		ResumeFromURL:       archiveOpts.resumeFrom,
	})
	if bar != nil {
		bar.Finish()
	}

	if err != nil {
		if !archiver.IsFatal(err) {
			fmt.Println("Interrupted. Progress saved; re-run to resume.")
			if summary != nil {
				printSummary(summary)
			}
			return nil
		}
		return err
	}

	printSummary(summary)
	return nil
}

func printSummary(s *archiver.Summary) {
	fmt.Printf("%s (%s)\n", s.Title, s.PermanentID)
	fmt.Printf("  queued %d, downloaded %d, failed %d, new %d, archived %d\n",
		s.QueueSize, s.Downloaded, s.Failed, s.NewFound, s.Archived)
	if s.Skipped > 0 {
		fmt.Printf("  skipped %d (chapter limit)\n", s.Skipped)
	}
	for _, ef := range s.EpubFiles {
		fmt.Printf("  wrote %s\n", ef.AbsolutePath)
	}
}

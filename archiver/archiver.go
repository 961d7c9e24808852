// Package archiver wires fetcher, reconciler, download pool, progress store
// and EPUB builder into one run over a stateful workspace.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"wna/cleaner"
	"wna/config"
	"wna/downloader"
	"wna/epub"
	"wna/fetchhttp"
	"wna/progress"
	"wna/reconcile"
	"wna/sites"
	"wna/workspace"
)

// Options are the per-run knobs, mirroring the archive command's flags.
type Options struct {
	StoryURL            string
	TitleOverride       string
	KeepTempFiles       bool
	ForceReprocessing   bool
	SentenceRemovalFile string
	NoSentenceRemoval   bool
	OutputDir           string
	ChaptersPerVolume   int
	EpubContents        epub.Contents
	ChapterLimit        int
	ResumeFromURL       string
}

// Summary reports what a run did.
type Summary struct {
	PermanentID string
	Slug        string
	Title       string

	QueueSize  int
	Downloaded int
	Failed     int
	Skipped    int
	Cancelled  int
	NewFound   int
	Archived   int

	EpubFiles []progress.EpubFile
}

// Runner executes archive runs against one workspace. Construct once per
// process; the HTTP client's connection pool is shared across runs.
type Runner struct {
	Settings *config.Settings
	Client   *fetchhttp.Client
	Limiter  *downloader.HostLimiter

	// OnProgress surfaces per-chapter completion events. May be nil.
	OnProgress downloader.ProgressFunc
}

// NewRunner builds a runner from settings with the standard client and
// per-host limiter.
func NewRunner(settings *config.Settings) *Runner {
	ua := fmt.Sprintf("wna/%s (webnovel archiver; +https://github.com/adamfitz/wna)", config.Version)
	return &Runner{
		Settings: settings,
		Client:   fetchhttp.NewClient(time.Duration(settings.RequestTimeoutS)*time.Second, ua),
		Limiter:  downloader.NewHostLimiter(time.Duration(settings.RequestDelayMs) * time.Millisecond),
	}
}

// Run archives one story: discovery, reconciliation, download, EPUB build,
// persistence, cleanup. Cancellation is cooperative; whatever completed
// before the cancel is still persisted.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	fetcher, err := sites.ForURL(opts.StoryURL, r.Client)
	if err != nil {
		return nil, err
	}

	permanentID, err := fetcher.PermanentID(opts.StoryURL)
	if err != nil {
		return nil, err
	}

	log.Printf("[Archiver] Run start for %s (%s)", permanentID, opts.StoryURL)

	meta, err := fetcher.Metadata(ctx, opts.StoryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch story metadata: %w", err)
	}

	effectiveTitle := meta.Title
	if opts.TitleOverride != "" {
		effectiveTitle = opts.TitleOverride
	}

	resolver, err := workspace.NewResolver(r.Settings.WorkspacePath)
	if err != nil {
		return nil, err
	}
	slug, err := resolver.SetStory(permanentID, effectiveTitle)
	if err != nil {
		return nil, err
	}
	layout := resolver.Layout

	store := progress.NewStore(layout.StatusDir(slug))
	rec, err := store.Load(permanentID, opts.StoryURL)
	if err != nil {
		return nil, err
	}

	rec.StoryURL = opts.StoryURL
	rec.OriginalTitle = meta.Title
	rec.EffectiveTitle = effectiveTitle
	rec.OriginalAuthor = meta.Author
	rec.CoverImageURL = meta.CoverURL
	rec.Synopsis = meta.Synopsis
	rec.EstimatedTotalChaptersSource = meta.EstimatedChapters

	manifest, err := fetcher.Manifest(ctx, opts.StoryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chapter manifest: %w", err)
	}

	// An empty manifest with known history can mean the source hides its
	// chapter list; probe the last downloaded chapter for a successor and
	// refetch once if one exists.
	if len(manifest) == 0 && rec.LastDownloadedChapterURL != "" {
		log.Printf("[Archiver] Empty manifest, probing %s for a next chapter", rec.LastDownloadedChapterURL)
		if next, probeErr := fetcher.ProbeNext(ctx, rec.LastDownloadedChapterURL); probeErr == nil && next != "" {
			log.Printf("[Archiver] Probe found %s, refetching manifest", next)
			if refetched, refErr := fetcher.Manifest(ctx, opts.StoryURL); refErr == nil {
				manifest = refetched
			}
		}
	}

	runStart := progress.Now()
	recResult := reconcile.Run(rec, manifest, reconcile.Options{
		ForceReprocessing:   opts.ForceReprocessing,
		ResumeFromURL:       opts.ResumeFromURL,
		RawDir:              layout.RawDir(slug),
		ProcessedDir:        layout.ProcessedDir(slug),
		TrustProgressRecord: r.Settings.TrustProgressRecord,
		Now:                 runStart,
	})

	summary := &Summary{
		PermanentID: permanentID,
		Slug:        slug,
		Title:       effectiveTitle,
		QueueSize:   len(recResult.Queue),
		NewFound:    recResult.NewChapters,
		Archived:    recResult.Archived,
	}

	if len(recResult.Queue) > 0 {
		filter := r.sentenceFilter(opts)

		pool := &downloader.Pool{
			Fetcher:      fetcher,
			Filter:       filter,
			Limiter:      r.Limiter,
			RawDir:       layout.RawDir(slug),
			ProcessedDir: layout.ProcessedDir(slug),
			Workers:      r.Settings.WorkerCount,
			ChapterLimit: opts.ChapterLimit,
			OnProgress:   r.OnProgress,
		}

		outcomes := pool.Run(ctx, recResult.Queue)
		r.mergeOutcomes(rec, outcomes, summary)
	}

	reconcile.ComputePointers(rec, manifest)

	// A failed progress save is fatal: state integrity is gone. The previous
	// file survives because saves go through temp+rename.
	if err := store.Save(rec); err != nil {
		return summary, fmt.Errorf("failed to save progress: %w", err)
	}

	if ctx.Err() != nil {
		log.Printf("[Archiver] Run cancelled, partial progress saved for %s", permanentID)
		return summary, ctx.Err()
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = layout.EbooksDir(slug)
	}
	artifacts, err := epub.Build(ctx, rec, epub.Options{
		ChaptersPerVolume: opts.ChaptersPerVolume,
		Contents:          opts.EpubContents,
		ProcessedDir:      layout.ProcessedDir(slug),
		OutputDir:         outputDir,
		Client:            r.Client,
	})
	if err != nil {
		log.Printf("[Archiver] EPUB build failed: %v", err)
	}
	if len(artifacts) > 0 {
		rec.LastEpubProcessing = &progress.EpubProcessing{
			Timestamp:          progress.Now(),
			GeneratedEpubFiles: artifacts,
		}
		summary.EpubFiles = artifacts
		if err := store.Save(rec); err != nil {
			return summary, fmt.Errorf("failed to save progress after EPUB build: %w", err)
		}
	}

	r.cleanup(opts, layout, slug)

	log.Printf("[Archiver] Run complete for %s: %d downloaded, %d failed, %d new, %d archived",
		permanentID, summary.Downloaded, summary.Failed, summary.NewFound, summary.Archived)

	return summary, nil
}

// mergeOutcomes applies worker results to the record. Single-writer: only
// this method mutates the record after the pool ran.
func (r *Runner) mergeOutcomes(rec *progress.Record, outcomes []downloader.Outcome, summary *Summary) {
	for _, out := range outcomes {
		switch {
		case out.Cancelled:
			summary.Cancelled++
			continue
		case out.Skipped:
			summary.Skipped++
			continue
		}

		ch := rec.ChapterByURL(out.ChapterURL)
		if ch == nil {
			log.Printf("[Archiver] Outcome for unknown chapter %s dropped", out.ChapterURL)
			continue
		}

		switch out.Status {
		case progress.StatusActive:
			ch.Status = progress.StatusActive
			ch.LocalRawFilename = out.RawFilename
			ch.LocalProcessedFilename = out.ProcessedFilename
			ch.DownloadTimestamp = out.DownloadTimestamp
			ch.ErrorInfo = nil
			summary.Downloaded++
		case progress.StatusFailed:
			// Prior filenames survive a failed re-download attempt
			ch.Status = progress.StatusFailed
			if out.RawFilename != "" {
				ch.LocalRawFilename = out.RawFilename
			}
			ch.ErrorInfo = out.ErrorInfo
			summary.Failed++
		}
	}
}

func (r *Runner) sentenceFilter(opts Options) *cleaner.SentenceFilter {
	if opts.NoSentenceRemoval {
		return nil
	}
	path := opts.SentenceRemovalFile
	if path == "" {
		path = r.Settings.SentenceRemovalFile
	}
	if path == "" {
		return nil
	}
	return cleaner.LoadSentenceFilter(path)
}

// cleanup removes the per-story raw/processed dirs when the operator asked
// for it. Only done when the progress record is trusted as evidence of prior
// success, otherwise the next run would re-download everything the deleted
// files used to vouch for.
func (r *Runner) cleanup(opts Options, layout workspace.Layout, slug string) {
	if opts.KeepTempFiles {
		return
	}
	if !r.Settings.TrustProgressRecord {
		log.Printf("[Archiver] Not deleting content dirs: trust_progress_record=false requires files on disk")
		return
	}

	for _, dir := range []string{layout.RawDir(slug), layout.ProcessedDir(slug)} {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[Archiver] Failed to remove %s: %v", dir, err)
		}
	}
	log.Printf("[Archiver] Removed working content dirs for %s", slug)
}

// IsFatal reports whether a run error means the process should exit non-zero
// without touching more stories.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

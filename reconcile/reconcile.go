// Package reconcile diffs a story's live source manifest against its
// persisted chapter records, deciding per chapter whether it is new, intact,
// in need of a re-download, or withdrawn by the source.
package reconcile

import (
	"log"
	"os"
	"path/filepath"

	"wna/progress"
	"wna/sites"
)

// Options tune one reconciliation pass.
type Options struct {
	// ForceReprocessing queues every manifest chapter for re-download.
	// Existing download_order values are preserved; the chapter list is
	// never cleared.
	ForceReprocessing bool

	// ResumeFromURL skips queueing chapters that precede this URL in source
	// order. Their prior state is untouched.
	ResumeFromURL string

	// RawDir / ProcessedDir locate the story's content files for the
	// file-presence check.
	RawDir       string
	ProcessedDir string

	// TrustProgressRecord treats an active chapter whose content dirs are
	// gone as intact, so a cleaned-up workspace does not trigger a full
	// re-download on the next run.
	TrustProgressRecord bool

	// Now is the run start timestamp stamped into last_checked_on.
	Now string
}

// Result is the outcome of a reconciliation pass. Queue holds copies of the
// chapter records to fetch, in source order; the record itself has been
// updated in place (statuses, timestamps, ordering, pointers).
type Result struct {
	Queue          []progress.ChapterRecord
	NewChapters    int
	Reprocessed    int
	Archived       int
	AlreadyCurrent int
}

// Run reconciles the record against the manifest. The record is mutated:
// every manifest chapter gets last_checked_on updated, new chapters are
// appended with the next download_order, chapters missing from the manifest
// become archived, and the derived pointers are recomputed.
func Run(rec *progress.Record, manifest []sites.ChapterStub, opts Options) *Result {
	if opts.Now == "" {
		opts.Now = progress.Now()
	}

	res := &Result{}

	existingByURL := make(map[string]*progress.ChapterRecord, len(rec.DownloadedChapters))
	for i := range rec.DownloadedChapters {
		existingByURL[rec.DownloadedChapters[i].ChapterURL] = &rec.DownloadedChapters[i]
	}

	maxOrder := rec.MaxDownloadOrder()
	resumeReached := opts.ResumeFromURL == ""
	visited := make(map[string]bool, len(manifest))

	for _, stub := range manifest {
		if stub.URL == opts.ResumeFromURL {
			resumeReached = true
		}
		visited[stub.URL] = true

		ch, known := existingByURL[stub.URL]
		if !known {
			maxOrder++
			rec.DownloadedChapters = append(rec.DownloadedChapters, progress.ChapterRecord{
				SourceChapterID: stub.SourceID,
				ChapterURL:      stub.URL,
				ChapterTitle:    stub.Title,
				DownloadOrder:   maxOrder,
				Status:          progress.StatusPending,
				FirstSeenOn:     opts.Now,
				LastCheckedOn:   opts.Now,
			})
			res.NewChapters++
			if resumeReached {
				res.Queue = append(res.Queue, rec.DownloadedChapters[len(rec.DownloadedChapters)-1])
			}
			// The append may have reallocated the backing array
			existingByURL = reindex(rec)
			continue
		}

		ch.LastCheckedOn = opts.Now
		if stub.Title != "" && stub.Title != ch.ChapterTitle {
			ch.ChapterTitle = stub.Title
		}
		if stub.SourceID != "" && stub.SourceID != ch.SourceChapterID {
			ch.SourceChapterID = stub.SourceID
		}

		if needsReprocess(ch, opts) {
			res.Reprocessed++
			if resumeReached {
				res.Queue = append(res.Queue, *ch)
			}
			continue
		}

		// Intact chapter back in the manifest: a withdrawn chapter that
		// reappears returns to active without a re-download, keeping its
		// original order.
		if ch.Status == progress.StatusArchived {
			ch.Status = progress.StatusActive
		}
		res.AlreadyCurrent++
	}

	// Everything the walk never visited is gone from the source
	for i := range rec.DownloadedChapters {
		ch := &rec.DownloadedChapters[i]
		if visited[ch.ChapterURL] {
			continue
		}
		if ch.Status != progress.StatusArchived {
			log.Printf("[Reconciler] Chapter withdrawn from source: %s (order %d)", ch.ChapterURL, ch.DownloadOrder)
			ch.Status = progress.StatusArchived
			res.Archived++
		}
		ch.LastCheckedOn = opts.Now
	}

	rec.SortChapters()
	ComputePointers(rec, manifest)

	log.Printf("[Reconciler] %d new, %d reprocess, %d archived, %d current, queue=%d",
		res.NewChapters, res.Reprocessed, res.Archived, res.AlreadyCurrent, len(res.Queue))

	return res
}

// needsReprocess decides whether a known chapter must be fetched again.
func needsReprocess(ch *progress.ChapterRecord, opts Options) bool {
	if opts.ForceReprocessing {
		return true
	}
	if ch.Status == progress.StatusFailed || ch.Status == progress.StatusPending {
		return true
	}
	if ch.LocalRawFilename == "" || ch.LocalProcessedFilename == "" {
		return true
	}
	return filesMissing(ch, opts)
}

// filesMissing checks the chapter's content files on disk. When the story's
// content dirs were removed by a keep-temp-files=false cleanup and the
// record is trusted, presence in progress counts as presence on disk.
func filesMissing(ch *progress.ChapterRecord, opts Options) bool {
	if opts.TrustProgressRecord {
		if _, err := os.Stat(opts.RawDir); os.IsNotExist(err) {
			if _, err := os.Stat(opts.ProcessedDir); os.IsNotExist(err) {
				return false
			}
		}
	}

	if _, err := os.Stat(filepath.Join(opts.RawDir, ch.LocalRawFilename)); err != nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(opts.ProcessedDir, ch.LocalProcessedFilename)); err != nil {
		return true
	}
	return false
}

// ComputePointers recomputes the derived chapter pointers from the current
// statuses: last_downloaded is the highest source-ordered active chapter
// still present in the manifest, next_to_download the first source-ordered
// chapter that is not active.
func ComputePointers(rec *progress.Record, manifest []sites.ChapterStub) {
	rec.LastDownloadedChapterURL = ""
	rec.NextChapterToDownloadURL = ""

	for _, stub := range manifest {
		ch := rec.ChapterByURL(stub.URL)
		if ch == nil {
			if rec.NextChapterToDownloadURL == "" {
				rec.NextChapterToDownloadURL = stub.URL
			}
			continue
		}
		if ch.Status == progress.StatusActive {
			rec.LastDownloadedChapterURL = stub.URL
		} else if rec.NextChapterToDownloadURL == "" {
			rec.NextChapterToDownloadURL = stub.URL
		}
	}
}

func reindex(rec *progress.Record) map[string]*progress.ChapterRecord {
	m := make(map[string]*progress.ChapterRecord, len(rec.DownloadedChapters))
	for i := range rec.DownloadedChapters {
		m[rec.DownloadedChapters[i].ChapterURL] = &rec.DownloadedChapters[i]
	}
	return m
}

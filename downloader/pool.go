// Package downloader executes a reconciled work queue: bounded concurrency,
// per-host rate limiting, retry with backoff, and atomic raw/processed file
// writes. Workers never mutate shared state; they emit Outcome values that
// the orchestrator merges serially.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"wna/cleaner"
	"wna/progress"
	"wna/sites"
)

// DefaultWorkers is the pool size when the config does not say otherwise.
const DefaultWorkers = 4

const (
	retryAttempts  = 5
	retryBaseDelay = time.Second
)

// Outcome is the immutable result of one chapter task, returned to the
// orchestrator over the completion channel.
type Outcome struct {
	ChapterURL        string
	Status            progress.ChapterStatus
	RawFilename       string
	ProcessedFilename string
	DownloadTimestamp string
	ErrorInfo         *progress.ErrorInfo
	Cancelled         bool
	Skipped           bool // chapter limit reached before this task started
}

// ProgressFunc reports per-task completion back to the caller.
// done counts finished tasks (any outcome), total is the queue length.
type ProgressFunc func(done, total int, chapterTitle string, out Outcome)

// Pool downloads and cleans a work queue of chapter records.
type Pool struct {
	Fetcher      sites.Fetcher
	Filter       *cleaner.SentenceFilter
	Limiter      *HostLimiter
	RawDir       string
	ProcessedDir string
	Workers      int

	// ChapterLimit caps successful downloads this run; 0 means unlimited.
	ChapterLimit int

	OnProgress ProgressFunc
}

// Run executes the queue and returns every task's outcome. Work items are
// delivered in source order; workers complete out of order. Cancellation via
// ctx stops new task starts immediately and aborts in-flight tasks at their
// next suspension point.
func (p *Pool) Run(ctx context.Context, queue []progress.ChapterRecord) []Outcome {
	if len(queue) == 0 {
		return nil
	}

	workers := p.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	if workers > len(queue) {
		workers = len(queue)
	}

	if err := os.MkdirAll(p.RawDir, 0755); err != nil {
		log.Printf("[Pool] Cannot create raw dir: %v", err)
	}
	if err := os.MkdirAll(p.ProcessedDir, 0755); err != nil {
		log.Printf("[Pool] Cannot create processed dir: %v", err)
	}

	work := make(chan progress.ChapterRecord)
	results := make(chan Outcome, len(queue))

	// reserved tracks claimed download slots when a chapter limit is set.
	// A task claims a slot before fetching and releases it on failure, so
	// successes never exceed the limit.
	var reserved int64

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for ch := range work {
				results <- p.runTask(ctx, id, ch, &reserved)
			}
		}(w)
	}

	go func() {
		defer close(work)
		for _, ch := range queue {
			select {
			case work <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	titleByURL := make(map[string]string, len(queue))
	for _, ch := range queue {
		titleByURL[ch.ChapterURL] = ch.ChapterTitle
	}

	var outcomes []Outcome
	done := 0
	for out := range results {
		done++
		outcomes = append(outcomes, out)
		if p.OnProgress != nil {
			p.OnProgress(done, len(queue), titleByURL[out.ChapterURL], out)
		}
	}

	return outcomes
}

// runTask executes the per-chapter pipeline: rate limit, fetch with retry,
// raw write, clean, filter, processed write.
func (p *Pool) runTask(ctx context.Context, workerID int, ch progress.ChapterRecord, reserved *int64) Outcome {
	out := Outcome{ChapterURL: ch.ChapterURL}

	if err := ctx.Err(); err != nil {
		out.Cancelled = true
		return out
	}

	if p.ChapterLimit > 0 {
		if atomic.AddInt64(reserved, 1) > int64(p.ChapterLimit) {
			atomic.AddInt64(reserved, -1)
			out.Skipped = true
			return out
		}
	}

	releaseSlot := func() {
		if p.ChapterLimit > 0 {
			atomic.AddInt64(reserved, -1)
		}
	}

	host := hostOf(ch.ChapterURL)
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx, host); err != nil {
			releaseSlot()
			out.Cancelled = true
			return out
		}
	}

	log.Printf("[Pool:%d] Fetching chapter %d: %s", workerID, ch.DownloadOrder, ch.ChapterURL)

	body, err := p.fetchWithRetry(ctx, ch.ChapterURL)
	if err != nil {
		releaseSlot()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			out.Cancelled = true
			return out
		}
		return p.failed(out, ch, classify(err), err)
	}

	rawName := chapterFileName(ch, false)
	if err := writeFileAtomic(p.RawDir, rawName, []byte(body)); err != nil {
		releaseSlot()
		return p.failed(out, ch, "filesystem", err)
	}
	out.RawFilename = rawName

	cleaned := cleaner.Clean(body, p.Fetcher.SiteName())
	if p.Filter != nil && !p.Filter.Empty() {
		cleaned = p.Filter.Apply(cleaned)
	}

	if isEffectivelyEmpty(cleaned) {
		releaseSlot()
		out.RawFilename = rawName // raw is kept for inspection
		return p.failed(out, ch, "empty_after_clean", fmt.Errorf("cleaner produced no content for %s", ch.ChapterURL))
	}

	processedName := chapterFileName(ch, true)
	if err := writeFileAtomic(p.ProcessedDir, processedName, []byte(cleaned)); err != nil {
		releaseSlot()
		return p.failed(out, ch, "filesystem", err)
	}

	out.ProcessedFilename = processedName
	out.Status = progress.StatusActive
	out.DownloadTimestamp = progress.Now()

	log.Printf("[Pool:%d] Completed chapter %d (%s)", workerID, ch.DownloadOrder, ch.ChapterTitle)
	return out
}

// fetchWithRetry pulls the chapter body, retrying transient failures with
// exponential backoff plus jitter. Terminal errors (404, parse, missing
// container) return immediately.
func (p *Pool) fetchWithRetry(ctx context.Context, chapterURL string) (string, error) {
	var body string

	err := retry.Do(
		func() error {
			var err error
			body, err = p.Fetcher.ChapterBody(ctx, chapterURL)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryBaseDelay),
		retry.MaxJitter(retryBaseDelay/5),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(sites.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[Pool] Retry %d/%d for %s: %v", n+1, retryAttempts, chapterURL, err)
		}),
	)

	return body, err
}

func (p *Pool) failed(out Outcome, ch progress.ChapterRecord, errType string, err error) Outcome {
	log.Printf("[Pool] Chapter %d failed (%s): %v", ch.DownloadOrder, errType, err)
	out.Status = progress.StatusFailed
	out.ErrorInfo = &progress.ErrorInfo{
		Type:      errType,
		Message:   err.Error(),
		Timestamp: progress.Now(),
	}
	return out
}

// classify maps an error to the taxonomy recorded in error_info.type.
func classify(err error) string {
	switch {
	case errors.Is(err, sites.ErrChapterGone):
		return "chapter_gone"
	case errors.Is(err, sites.ErrContentMissing):
		return "content_missing"
	default:
		var pe *sites.ParseError
		if errors.As(err, &pe) {
			return "parse"
		}
		return "network"
	}
}

var unsafeFileRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// chapterFileName builds the on-disk leaf name:
// chapter_00042_<srcid>.html / chapter_00042_<srcid>_clean.html
func chapterFileName(ch progress.ChapterRecord, processed bool) string {
	srcID := unsafeFileRe.ReplaceAllString(ch.SourceChapterID, "")
	if srcID == "" {
		srcID = "na"
	}
	if processed {
		return fmt.Sprintf("chapter_%05d_%s_clean.html", ch.DownloadOrder, srcID)
	}
	return fmt.Sprintf("chapter_%05d_%s.html", ch.DownloadOrder, srcID)
}

// writeFileAtomic writes via temp file + rename in the destination directory.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// isEffectivelyEmpty reports whether cleaned HTML carries no visible text.
func isEffectivelyEmpty(html string) bool {
	stripped := tagRe.ReplaceAllString(html, "")
	for _, r := range stripped {
		switch r {
		case ' ', '\t', '\n', '\r', ' ':
		default:
			return false
		}
	}
	return true
}

// Package epub assembles one or more EPUB volumes from a story's processed
// chapter files and its progress record.
package epub

import (
	"context"
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	goepub "github.com/bmaupin/go-epub"

	"wna/fetchhttp"
	"wna/progress"
)

// Contents selects which chapters are included.
type Contents string

const (
	// ContentsAll includes archived chapters, their titles prefixed.
	ContentsAll Contents = "all"
	// ContentsActiveOnly drops everything that is not active.
	ContentsActiveOnly Contents = "active-only"
)

const archivedTitlePrefix = "[Archived] "

// Options configure one build.
type Options struct {
	// ChaptersPerVolume partitions the chapters; 0 or >= count means a
	// single volume.
	ChaptersPerVolume int
	Contents          Contents
	ProcessedDir      string
	OutputDir         string

	// Client fetches the cover image. May be nil to skip covers.
	Client *fetchhttp.Client
}

// Build emits EPUB volumes for the record and returns their artifacts. A
// missing processed file skips that chapter, never the build. Cover download
// failures are logged and the build continues coverless. Temp cover files
// are removed regardless of outcome.
func Build(ctx context.Context, rec *progress.Record, opts Options) ([]progress.EpubFile, error) {
	if opts.Contents == "" {
		opts.Contents = ContentsAll
	}

	chapters := selectChapters(rec, opts.Contents)
	if len(chapters) == 0 {
		log.Printf("[EPUB] No eligible chapters for %s, skipping build", rec.PermanentID)
		return nil, nil
	}

	volumes := partition(chapters, opts.ChaptersPerVolume)

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ebooks directory: %w", err)
	}

	// Cover is downloaded once and shared by every volume
	coverPath := ""
	if opts.Client != nil && rec.CoverImageURL != "" {
		tempDir, err := os.MkdirTemp("", "wna-cover-*")
		if err != nil {
			log.Printf("[EPUB] Cannot create cover temp dir: %v", err)
		} else {
			defer os.RemoveAll(tempDir)
			coverPath, err = downloadCover(ctx, opts.Client, rec.CoverImageURL, tempDir)
			if err != nil {
				log.Printf("[EPUB] Cover download failed, continuing without: %v", err)
				coverPath = ""
			}
		}
	}

	var artifacts []progress.EpubFile
	multi := len(volumes) > 1

	for vi, vol := range volumes {
		volNum := vi + 1

		title := rec.EffectiveTitle
		if title == "" {
			title = rec.OriginalTitle
		}
		identifier := rec.PermanentID
		if multi {
			title = fmt.Sprintf("%s Vol. %d", title, volNum)
			identifier = fmt.Sprintf("%s_vol_%d", rec.PermanentID, volNum)
		}

		book := goepub.NewEpub(title)
		book.SetIdentifier(identifier)
		if rec.OriginalAuthor != "" {
			book.SetAuthor(rec.OriginalAuthor)
		}
		if rec.Synopsis != "" {
			book.SetDescription(rec.Synopsis)
		}

		if coverPath != "" {
			if imgRef, err := book.AddImage(coverPath, "cover.jpg"); err != nil {
				log.Printf("[EPUB] Failed to embed cover: %v", err)
			} else {
				book.SetCover(imgRef, "")
			}
		}

		if rec.Synopsis != "" {
			if _, err := book.AddSection(synopsisHTML(rec.Synopsis), "Synopsis", "synopsis.xhtml", ""); err != nil {
				log.Printf("[EPUB] Failed to add synopsis section: %v", err)
			}
		}

		added := 0
		for _, ch := range vol {
			body, err := os.ReadFile(filepath.Join(opts.ProcessedDir, ch.LocalProcessedFilename))
			if err != nil {
				log.Printf("[EPUB] Skipping chapter %d, processed file unreadable: %v", ch.DownloadOrder, err)
				continue
			}

			chTitle := ch.ChapterTitle
			if chTitle == "" {
				chTitle = fmt.Sprintf("Chapter %d", ch.DownloadOrder)
			}
			if opts.Contents == ContentsAll && ch.Status == progress.StatusArchived {
				chTitle = archivedTitlePrefix + chTitle
			}

			section := fmt.Sprintf("<h2>%s</h2>\n%s", html.EscapeString(chTitle), string(body))
			if _, err := book.AddSection(section, chTitle, fmt.Sprintf("chapter_%05d.xhtml", ch.DownloadOrder), ""); err != nil {
				log.Printf("[EPUB] Failed to add chapter %d: %v", ch.DownloadOrder, err)
				continue
			}
			added++
		}

		if added == 0 {
			log.Printf("[EPUB] Volume %d has no readable chapters, skipping", volNum)
			continue
		}

		fileName := epubFileName(rec, volNum, multi)
		outPath := filepath.Join(opts.OutputDir, fileName)
		if err := book.Write(outPath); err != nil {
			return artifacts, fmt.Errorf("failed to write %s: %w", outPath, err)
		}

		absPath, err := filepath.Abs(outPath)
		if err != nil {
			absPath = outPath
		}
		artifacts = append(artifacts, progress.EpubFile{Name: fileName, AbsolutePath: absPath})
		log.Printf("[EPUB] Wrote %s (%d chapters)", outPath, added)
	}

	return artifacts, nil
}

// selectChapters filters by contents mode and keeps download_order ascending.
func selectChapters(rec *progress.Record, contents Contents) []progress.ChapterRecord {
	var out []progress.ChapterRecord
	for _, ch := range rec.DownloadedChapters {
		switch ch.Status {
		case progress.StatusActive:
			out = append(out, ch)
		case progress.StatusArchived:
			if contents == ContentsAll {
				out = append(out, ch)
			}
		}
	}
	return out
}

// partition splits chapters into volumes of up to perVolume each.
func partition(chapters []progress.ChapterRecord, perVolume int) [][]progress.ChapterRecord {
	if perVolume <= 0 || perVolume >= len(chapters) {
		return [][]progress.ChapterRecord{chapters}
	}

	var volumes [][]progress.ChapterRecord
	for start := 0; start < len(chapters); start += perVolume {
		end := start + perVolume
		if end > len(chapters) {
			end = len(chapters)
		}
		volumes = append(volumes, chapters[start:end])
	}
	return volumes
}

func synopsisHTML(synopsis string) string {
	var sb strings.Builder
	sb.WriteString("<h2>Synopsis</h2>\n")
	for _, para := range strings.Split(synopsis, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(para))
		sb.WriteString("</p>\n")
	}
	return sb.String()
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9 ._-]+`)

// epubFileName builds "<sanitized title>[_vol_<n>].epub".
func epubFileName(rec *progress.Record, volNum int, multi bool) string {
	title := rec.EffectiveTitle
	if title == "" {
		title = rec.OriginalTitle
	}
	name := strings.TrimSpace(unsafeNameRe.ReplaceAllString(title, ""))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		name = rec.PermanentID
	}
	if multi {
		return fmt.Sprintf("%s_vol_%d.epub", name, volNum)
	}
	return name + ".epub"
}

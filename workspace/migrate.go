package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"wna/progress"
)

// IDDeriver turns a story URL into its permanent ID. The caller wires in the
// site registry so this package stays free of fetcher imports.
type IDDeriver func(storyURL string) (string, error)

// MigrationSummary counts what one migration pass did.
type MigrationSummary struct {
	Scanned  int
	Migrated int
	Renamed  int
	Skipped  int
}

// MigrateLegacyIDs upgrades pre-index workspaces: every progress file under
// archival_status/ that lacks a permanent_id gets one derived from its
// story_url, the story's folders are renamed to the slug of the recorded
// title, and a fresh index.json is written covering all stories. onlySlug
// restricts the pass to one story folder; empty means all.
func MigrateLegacyIDs(root string, derive IDDeriver, onlySlug string) (*MigrationSummary, error) {
	layout := Layout{Root: root}
	statusRoot := filepath.Join(root, StatusDirName)

	entries, err := os.ReadDir(statusRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", statusRoot, err)
	}

	ix, err := LoadIndex(root)
	if err != nil {
		return nil, err
	}
	resolver := &Resolver{Layout: layout, Index: ix}

	summary := &MigrationSummary{}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		slug := entry.Name()
		if onlySlug != "" && slug != onlySlug {
			continue
		}
		summary.Scanned++

		store := progress.NewStore(layout.StatusDir(slug))
		rec, err := store.Load("", "")
		if err != nil {
			log.Printf("[Migrate] Skipping %s, unreadable progress file: %v", slug, err)
			summary.Skipped++
			continue
		}

		if rec.PermanentID == "" {
			if rec.StoryURL == "" {
				log.Printf("[Migrate] Skipping %s: no permanent_id and no story_url to derive one from", slug)
				summary.Skipped++
				continue
			}
			id, err := derive(rec.StoryURL)
			if err != nil {
				log.Printf("[Migrate] Skipping %s: cannot derive permanent ID from %s: %v", slug, rec.StoryURL, err)
				summary.Skipped++
				continue
			}
			rec.PermanentID = id
			if err := store.Save(rec); err != nil {
				return summary, fmt.Errorf("failed to save migrated record for %s: %w", slug, err)
			}
			summary.Migrated++
			log.Printf("[Migrate] %s: assigned permanent ID %s", slug, id)
		}

		title := rec.EffectiveTitle
		if title == "" {
			title = rec.OriginalTitle
		}
		wantSlug := Slugify(title)
		if title != "" && wantSlug != slug {
			if _, taken := ix.IDForSlug(wantSlug); taken {
				log.Printf("[Migrate] %s: target slug %q already registered, keeping current folder name", slug, wantSlug)
				wantSlug = slug
			} else {
				if err := resolver.renameStoryDirs(slug, wantSlug); err != nil {
					return summary, err
				}
				summary.Renamed++
				log.Printf("[Migrate] Renamed story folders %q -> %q", slug, wantSlug)
			}
		} else {
			wantSlug = slug
		}

		if err := ix.Set(rec.PermanentID, wantSlug); err != nil {
			log.Printf("[Migrate] Cannot index %s: %v", rec.PermanentID, err)
			summary.Skipped++
		}
	}

	if err := ix.Save(); err != nil {
		return summary, fmt.Errorf("failed to write rebuilt index: %w", err)
	}

	return summary, nil
}

package workspace

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
)

var (
	slugInvalidRe  = regexp.MustCompile(`[^a-z0-9]+`)
	slugCollapseRe = regexp.MustCompile(`-{2,}`)
)

const maxSlugLen = 80

// Slugify converts a title into a filesystem-safe, hyphenated folder name.
// Output never contains characters disallowed on common filesystems.
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugInvalidRe.ReplaceAllString(slug, "-")
	slug = slugCollapseRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// Resolver maps (workspace, permanent ID) to the story's folder layout,
// renaming per-story directories when the effective title changes.
type Resolver struct {
	Layout Layout
	Index  *Index
}

// NewResolver loads the workspace index and returns a resolver over it.
func NewResolver(root string) (*Resolver, error) {
	ix, err := LoadIndex(root)
	if err != nil {
		return nil, err
	}
	return &Resolver{Layout: Layout{Root: root}, Index: ix}, nil
}

// SetStory registers or updates the slug for a story and returns it. When
// the slug changes, every per-story directory is renamed from the old slug;
// that composite rename is NOT atomic across the four directories. On partial
// failure the error names both slugs and the operator must inspect manually -
// rolling back half-moved directories risks losing content.
func (r *Resolver) SetStory(permanentID, effectiveTitle string) (string, error) {
	newSlug := Slugify(effectiveTitle)

	oldSlug, known := r.Index.SlugFor(permanentID)
	if known && oldSlug == newSlug {
		return newSlug, nil
	}

	// Slug collisions across different stories get the permanent ID's
	// numeric suffix appended.
	if owner, taken := r.Index.IDForSlug(newSlug); taken && owner != permanentID {
		suffix := permanentID
		if i := strings.LastIndex(permanentID, "-"); i >= 0 {
			suffix = permanentID[i+1:]
		}
		newSlug = Slugify(newSlug + "-" + suffix)
		log.Printf("[PathResolver] Slug collision, using %q for %s", newSlug, permanentID)
	}

	if !known {
		if err := r.Index.Set(permanentID, newSlug); err != nil {
			return "", err
		}
		if err := r.Index.Save(); err != nil {
			return "", err
		}
		if err := os.MkdirAll(r.Layout.StatusDir(newSlug), 0755); err != nil {
			return "", fmt.Errorf("failed to create status directory: %w", err)
		}
		log.Printf("[PathResolver] Registered %s -> %s", permanentID, newSlug)
		return newSlug, nil
	}

	log.Printf("[PathResolver] Title change for %s: renaming %q -> %q", permanentID, oldSlug, newSlug)
	if err := r.renameStoryDirs(oldSlug, newSlug); err != nil {
		return "", err
	}

	if err := r.Index.Set(permanentID, newSlug); err != nil {
		return "", err
	}
	if err := r.Index.Save(); err != nil {
		return "", err
	}

	return newSlug, nil
}

func (r *Resolver) renameStoryDirs(oldSlug, newSlug string) error {
	oldDirs := r.Layout.storyDirs(oldSlug)
	newDirs := r.Layout.storyDirs(newSlug)

	for i := range oldDirs {
		if _, err := os.Stat(oldDirs[i]); os.IsNotExist(err) {
			continue // story never produced this directory
		}
		if err := os.Rename(oldDirs[i], newDirs[i]); err != nil {
			return fmt.Errorf(
				"partial rename from %q to %q: failed moving %s: %w; inspect the workspace manually before re-running",
				oldSlug, newSlug, oldDirs[i], err)
		}
	}
	return nil
}

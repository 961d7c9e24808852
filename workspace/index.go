package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Index is the workspace-wide mapping from permanent story ID to the story's
// current folder slug. Unique on both sides. Persisted as a JSON object with
// sorted keys at <workspace>/index.json.
type Index struct {
	path    string
	entries map[string]string
}

// LoadIndex reads the workspace index, returning an empty one when the file
// does not exist yet.
func LoadIndex(root string) (*Index, error) {
	ix := &Index{
		path:    filepath.Join(root, IndexFileName),
		entries: map[string]string{},
	}

	data, err := os.ReadFile(ix.path)
	if os.IsNotExist(err) {
		return ix, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read story index: %w", err)
	}

	if err := json.Unmarshal(data, &ix.entries); err != nil {
		return nil, fmt.Errorf("failed to parse story index %s: %w", ix.path, err)
	}

	return ix, nil
}

// SlugFor looks up the current slug for a permanent ID.
func (ix *Index) SlugFor(permanentID string) (string, bool) {
	slug, ok := ix.entries[permanentID]
	return slug, ok
}

// IDForSlug performs the reverse lookup.
func (ix *Index) IDForSlug(slug string) (string, bool) {
	for id, s := range ix.entries {
		if s == slug {
			return id, true
		}
	}
	return "", false
}

// PermanentIDs returns all registered IDs, sorted.
func (ix *Index) PermanentIDs() []string {
	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Set registers or updates a mapping. Registering a slug already owned by a
// different permanent ID is an error: slugs are unique.
func (ix *Index) Set(permanentID, slug string) error {
	if owner, ok := ix.IDForSlug(slug); ok && owner != permanentID {
		return fmt.Errorf("slug %q already maps to story %s", slug, owner)
	}
	ix.entries[permanentID] = slug
	return nil
}

// Save writes the index atomically. encoding/json emits map keys sorted, so
// the file is deterministic.
func (ix *Index) Save() error {
	data, err := json.MarshalIndent(ix.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal story index: %w", err)
	}

	dir := filepath.Dir(ix.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace root: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp index file: %w", err)
	}

	if err := os.Rename(tmpName, ix.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace index file: %w", err)
	}

	return nil
}

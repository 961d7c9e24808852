package progress

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// FileName is the progress file leaf name inside a story's status directory.
const FileName = "progress.json"

// Store loads and saves one story's progress file. The directory is the
// story's archival_status/<slug> folder; the path resolver owns that mapping.
type Store struct {
	dir string
}

// NewStore returns a store rooted at the story's status directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the progress file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Load reads the progress record, returning a fresh one when the file does
// not exist. Legacy records (no per-chapter status fields) are upgraded in
// place after writing a .bak sibling of the original bytes.
func (s *Store) Load(permanentID, storyURL string) (*Record, error) {
	path := s.Path()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRecord(permanentID, storyURL), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse progress file %s: %w", path, err)
	}

	if needsMigration(&rec) {
		log.Printf("[Progress] Legacy schema in %s, upgrading (backup at %s.bak)", path, path)
		if err := os.WriteFile(path+".bak", data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write migration backup: %w", err)
		}
		migrate(&rec, s.fileTimestamp(path))
		if err := s.Save(&rec); err != nil {
			return nil, fmt.Errorf("failed to persist migrated record: %w", err)
		}
	}

	if rec.PermanentID == "" {
		rec.PermanentID = permanentID
	}
	if rec.StoryURL == "" {
		rec.StoryURL = storyURL
	}

	return &rec, nil
}

// Save writes the record atomically: marshal to a temp file in the
// destination directory, then rename over the old file. Readers never see a
// half-written record.
func (s *Store) Save(rec *Record) error {
	rec.Version = SchemaVersion
	rec.LastUpdatedTimestamp = Now()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress record: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".progress-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp progress file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp progress file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace progress file: %w", err)
	}

	return nil
}

// needsMigration detects version-1 records: chapters without status fields.
func needsMigration(rec *Record) bool {
	if rec.Version >= SchemaVersion {
		return false
	}
	for i := range rec.DownloadedChapters {
		ch := &rec.DownloadedChapters[i]
		if ch.Status == "" || ch.FirstSeenOn == "" || ch.LastCheckedOn == "" {
			return true
		}
	}
	return rec.Version < SchemaVersion && len(rec.DownloadedChapters) == 0
}

// migrate upgrades every chapter in place. Chapters recorded by the old
// schema were only written after successful downloads, so they default to
// active, timestamped with the progress file's mtime.
func migrate(rec *Record, fallbackTS string) {
	for i := range rec.DownloadedChapters {
		ch := &rec.DownloadedChapters[i]
		if ch.Status == "" {
			ch.Status = StatusActive
		}
		if ch.FirstSeenOn == "" {
			ch.FirstSeenOn = fallbackTS
		}
		if ch.LastCheckedOn == "" {
			ch.LastCheckedOn = fallbackTS
		}
	}
	rec.Version = SchemaVersion
}

func (s *Store) fileTimestamp(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return TimestampSentinel
	}
	return info.ModTime().UTC().Format(time.RFC3339)
}

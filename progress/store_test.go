package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wna/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	os.Exit(m.Run())
}

func TestLoadFreshRecord(t *testing.T) {
	store := NewStore(t.TempDir())

	rec, err := store.Load("royalroad-12345", "https://www.royalroad.com/fiction/12345")
	require.NoError(t, err)

	assert.Equal(t, "royalroad-12345", rec.PermanentID)
	assert.Equal(t, "https://www.royalroad.com/fiction/12345", rec.StoryURL)
	assert.Equal(t, SchemaVersion, rec.Version)
	assert.Empty(t, rec.DownloadedChapters)
}

func TestSaveAndReload(t *testing.T) {
	store := NewStore(t.TempDir())

	rec := NewRecord("royalroad-1", "https://www.royalroad.com/fiction/1")
	rec.OriginalTitle = "Some Story"
	rec.DownloadedChapters = []ChapterRecord{
		{
			SourceChapterID: "100",
			ChapterURL:      "https://www.royalroad.com/fiction/1/chapter/100",
			ChapterTitle:    "One",
			DownloadOrder:   1,
			Status:          StatusActive,
			FirstSeenOn:     "2026-08-01T00:00:00Z",
			LastCheckedOn:   "2026-08-01T00:00:00Z",
		},
	}
	require.NoError(t, store.Save(rec))

	// Save stamps version and timestamp
	assert.Equal(t, SchemaVersion, rec.Version)
	assert.NotEmpty(t, rec.LastUpdatedTimestamp)

	got, err := store.Load("royalroad-1", "")
	require.NoError(t, err)
	assert.Equal(t, rec.OriginalTitle, got.OriginalTitle)
	require.Len(t, got.DownloadedChapters, 1)
	assert.Equal(t, StatusActive, got.DownloadedChapters[0].Status)

	// No temp files left behind by the atomic write
	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{FileName}, names)
}

func TestLoadMigratesLegacySchema(t *testing.T) {
	dir := t.TempDir()
	legacy := map[string]any{
		"permanent_id":   "royalroad-7",
		"story_url":      "https://www.royalroad.com/fiction/7",
		"original_title": "Old Story",
		"downloaded_chapters": []map[string]any{
			{
				"source_chapter_id": "1",
				"chapter_url":       "https://www.royalroad.com/fiction/7/chapter/1",
				"chapter_title":     "One",
				"download_order":    1,
			},
			{
				"source_chapter_id": "2",
				"chapter_url":       "https://www.royalroad.com/fiction/7/chapter/2",
				"chapter_title":     "Two",
				"download_order":    2,
			},
		},
	}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	store := NewStore(dir)
	rec, err := store.Load("royalroad-7", "")
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, rec.Version)
	for _, ch := range rec.DownloadedChapters {
		assert.Equal(t, StatusActive, ch.Status)
		assert.NotEmpty(t, ch.FirstSeenOn)
		assert.NotEmpty(t, ch.LastCheckedOn)
	}

	// Original bytes survive as a .bak sibling
	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, raw, bak)

	// The migrated file on disk carries the new schema
	reloaded, err := store.Load("royalroad-7", "")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, reloaded.Version)
	assert.Equal(t, StatusActive, reloaded.DownloadedChapters[0].Status)
}

func TestLoadCorruptFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644))

	_, err := NewStore(dir).Load("x", "")
	assert.Error(t, err)
}

func TestChapterHelpers(t *testing.T) {
	rec := NewRecord("x", "")
	rec.DownloadedChapters = []ChapterRecord{
		{ChapterURL: "u3", DownloadOrder: 3},
		{ChapterURL: "u1", DownloadOrder: 1},
		{ChapterURL: "u2", DownloadOrder: 2},
	}

	assert.Equal(t, 3, rec.MaxDownloadOrder())

	ch := rec.ChapterByURL("u2")
	require.NotNil(t, ch)
	assert.Equal(t, 2, ch.DownloadOrder)
	assert.Nil(t, rec.ChapterByURL("missing"))

	rec.SortChapters()
	assert.Equal(t, "u1", rec.DownloadedChapters[0].ChapterURL)
	assert.Equal(t, "u3", rec.DownloadedChapters[2].ChapterURL)
}

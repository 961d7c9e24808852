package progress

import (
	"sort"
	"time"
)

// SchemaVersion tags the current progress.json layout. Version 1 predates
// per-chapter status tracking and is upgraded on load.
const SchemaVersion = 2

// TimestampSentinel stands in for unknown timestamps during migration when
// the progress file's mtime cannot be read.
const TimestampSentinel = "1970-01-01T00:00:00Z"

// ChapterStatus is the per-chapter lifecycle state.
type ChapterStatus string

const (
	// StatusPending - seen in a manifest, not yet downloaded.
	StatusPending ChapterStatus = "pending"
	// StatusActive - downloaded and cleaned successfully.
	StatusActive ChapterStatus = "active"
	// StatusFailed - terminal error on the last attempt.
	StatusFailed ChapterStatus = "failed"
	// StatusArchived - absent from the current source manifest; files kept.
	StatusArchived ChapterStatus = "archived"
)

// ErrorInfo captures the terminal error of a failed chapter.
type ErrorInfo struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ChapterRecord is the persisted state of one chapter.
type ChapterRecord struct {
	SourceChapterID        string        `json:"source_chapter_id"`
	ChapterURL             string        `json:"chapter_url"`
	ChapterTitle           string        `json:"chapter_title"`
	DownloadOrder          int           `json:"download_order"`
	Status                 ChapterStatus `json:"status"`
	FirstSeenOn            string        `json:"first_seen_on"`
	LastCheckedOn          string        `json:"last_checked_on"`
	DownloadTimestamp      string        `json:"download_timestamp,omitempty"`
	LocalRawFilename       string        `json:"local_raw_filename,omitempty"`
	LocalProcessedFilename string        `json:"local_processed_filename,omitempty"`
	ErrorInfo              *ErrorInfo    `json:"error_info"`
}

// EpubFile is one emitted EPUB artifact.
type EpubFile struct {
	Name         string `json:"name"`
	AbsolutePath string `json:"absolute_path"`
}

// EpubProcessing records the most recent EPUB build.
type EpubProcessing struct {
	Timestamp          string     `json:"timestamp"`
	GeneratedEpubFiles []EpubFile `json:"generated_epub_files"`
}

// UploadRecord is one file pushed to cloud storage.
type UploadRecord struct {
	Name         string `json:"name"`
	RemoteID     string `json:"remote_id"`
	ModifiedTime string `json:"modified_time"`
	UploadedOn   string `json:"uploaded_on"`
}

// CloudBackupStatus tracks replication to cloud object storage. Only the
// cloud-backup command writes this; archive runs copy it through.
type CloudBackupStatus struct {
	LastAttemptOn string         `json:"last_attempt_on,omitempty"`
	LastSuccessOn string         `json:"last_success_on,omitempty"`
	UploadedFiles []UploadRecord `json:"uploaded_files,omitempty"`
}

// Record is the durable per-story progress state.
type Record struct {
	Version                      int                `json:"version"`
	PermanentID                  string             `json:"permanent_id"`
	StoryURL                     string             `json:"story_url"`
	OriginalTitle                string             `json:"original_title"`
	EffectiveTitle               string             `json:"effective_title"`
	OriginalAuthor               string             `json:"original_author"`
	CoverImageURL                string             `json:"cover_image_url"`
	Synopsis                     string             `json:"synopsis"`
	EstimatedTotalChaptersSource int                `json:"estimated_total_chapters_source"`
	DownloadedChapters           []ChapterRecord    `json:"downloaded_chapters"`
	LastDownloadedChapterURL     string             `json:"last_downloaded_chapter_url,omitempty"`
	NextChapterToDownloadURL     string             `json:"next_chapter_to_download_url,omitempty"`
	LastEpubProcessing           *EpubProcessing    `json:"last_epub_processing,omitempty"`
	CloudBackupStatus            *CloudBackupStatus `json:"cloud_backup_status,omitempty"`
	LastUpdatedTimestamp         string             `json:"last_updated_timestamp"`
}

// NewRecord returns a fresh record for a story never archived before.
func NewRecord(permanentID, storyURL string) *Record {
	return &Record{
		Version:     SchemaVersion,
		PermanentID: permanentID,
		StoryURL:    storyURL,
	}
}

// ChapterByURL returns the chapter record for url, or nil.
func (r *Record) ChapterByURL(url string) *ChapterRecord {
	for i := range r.DownloadedChapters {
		if r.DownloadedChapters[i].ChapterURL == url {
			return &r.DownloadedChapters[i]
		}
	}
	return nil
}

// MaxDownloadOrder returns the highest download_order assigned so far, or 0.
func (r *Record) MaxDownloadOrder() int {
	max := 0
	for i := range r.DownloadedChapters {
		if r.DownloadedChapters[i].DownloadOrder > max {
			max = r.DownloadedChapters[i].DownloadOrder
		}
	}
	return max
}

// SortChapters orders downloaded_chapters by download_order ascending.
func (r *Record) SortChapters() {
	sort.SliceStable(r.DownloadedChapters, func(i, j int) bool {
		return r.DownloadedChapters[i].DownloadOrder < r.DownloadedChapters[j].DownloadOrder
	})
}

// Now returns the canonical timestamp format used throughout progress files.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

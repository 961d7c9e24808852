package workspace

import "path/filepath"

// Directory names under the workspace root. One folder per story under each,
// keyed by the story's current slug.
const (
	StatusDirName    = "archival_status"
	RawDirName       = "raw_content"
	ProcessedDirName = "processed_content"
	EbooksDirName    = "ebooks"
	ReportsDirName   = "reports"
	IndexFileName    = "index.json"
)

// Layout maps slugs to concrete per-story directories.
type Layout struct {
	Root string
}

func (l Layout) IndexPath() string {
	return filepath.Join(l.Root, IndexFileName)
}

func (l Layout) StatusDir(slug string) string {
	return filepath.Join(l.Root, StatusDirName, slug)
}

func (l Layout) RawDir(slug string) string {
	return filepath.Join(l.Root, RawDirName, slug)
}

func (l Layout) ProcessedDir(slug string) string {
	return filepath.Join(l.Root, ProcessedDirName, slug)
}

func (l Layout) EbooksDir(slug string) string {
	return filepath.Join(l.Root, EbooksDirName, slug)
}

func (l Layout) ReportsDir() string {
	return filepath.Join(l.Root, ReportsDirName)
}

// storyDirs returns every per-story directory for a slug, in rename order.
func (l Layout) storyDirs(slug string) []string {
	return []string{
		l.StatusDir(slug),
		l.RawDir(slug),
		l.ProcessedDir(slug),
		l.EbooksDir(slug),
	}
}

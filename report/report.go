// Package report renders a read-only HTML overview of every archived story
// in a workspace.
package report

import (
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"time"

	"wna/progress"
	"wna/workspace"
)

// FileName is the report leaf name under <workspace>/reports/.
const FileName = "archive_report.html"

type storyView struct {
	PermanentID string
	Slug        string
	Title       string
	Author      string
	StoryURL    string
	Active      int
	Pending     int
	Failed      int
	Archived    int
	Total       int
	LastUpdated string
	EpubFiles   []progress.EpubFile
}

type reportView struct {
	GeneratedAt string
	Workspace   string
	Stories     []storyView
}

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Webnovel Archive Report</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
th { background: #f0f0f0; }
tr:nth-child(even) { background: #fafafa; }
.count { text-align: right; }
.failed { color: #b00; }
footer { margin-top: 2em; color: #888; font-size: 0.85em; }
</style>
</head>
<body>
<h1>Webnovel Archive Report</h1>
<p>Workspace: <code>{{.Workspace}}</code></p>
<table>
<tr>
  <th>Story</th><th>Author</th><th>ID</th>
  <th class="count">Active</th><th class="count">Pending</th>
  <th class="count">Failed</th><th class="count">Archived</th>
  <th>Last Updated</th><th>EPUBs</th>
</tr>
{{range .Stories}}
<tr>
  <td><a href="{{.StoryURL}}">{{.Title}}</a></td>
  <td>{{.Author}}</td>
  <td><code>{{.PermanentID}}</code></td>
  <td class="count">{{.Active}}</td>
  <td class="count">{{.Pending}}</td>
  <td class="count{{if .Failed}} failed{{end}}">{{.Failed}}</td>
  <td class="count">{{.Archived}}</td>
  <td>{{.LastUpdated}}</td>
  <td>{{range .EpubFiles}}{{.Name}}<br>{{end}}</td>
</tr>
{{end}}
</table>
<footer>Generated {{.GeneratedAt}} by wna</footer>
</body>
</html>
`))

// Generate renders the report over every indexed story and returns the
// output path. Unreadable progress files are skipped with a warning so one
// corrupt story cannot block the report.
func Generate(root string) (string, error) {
	ix, err := workspace.LoadIndex(root)
	if err != nil {
		return "", err
	}
	layout := workspace.Layout{Root: root}

	view := reportView{
		GeneratedAt: time.Now().UTC().Format(time.RFC1123),
		Workspace:   root,
	}

	for _, id := range ix.PermanentIDs() {
		slug, _ := ix.SlugFor(id)
		rec, loadErr := progress.NewStore(layout.StatusDir(slug)).Load(id, "")
		if loadErr != nil {
			log.Printf("[Report] Skipping %s: %v", id, loadErr)
			continue
		}

		sv := storyView{
			PermanentID: id,
			Slug:        slug,
			Title:       rec.EffectiveTitle,
			Author:      rec.OriginalAuthor,
			StoryURL:    rec.StoryURL,
			Total:       len(rec.DownloadedChapters),
			LastUpdated: rec.LastUpdatedTimestamp,
		}
		if sv.Title == "" {
			sv.Title = rec.OriginalTitle
		}
		for _, ch := range rec.DownloadedChapters {
			switch ch.Status {
			case progress.StatusActive:
				sv.Active++
			case progress.StatusPending:
				sv.Pending++
			case progress.StatusFailed:
				sv.Failed++
			case progress.StatusArchived:
				sv.Archived++
			}
		}
		if rec.LastEpubProcessing != nil {
			sv.EpubFiles = rec.LastEpubProcessing.GeneratedEpubFiles
		}

		view.Stories = append(view.Stories, sv)
	}

	if err := os.MkdirAll(layout.ReportsDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	outPath := filepath.Join(layout.ReportsDir(), FileName)
	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := reportTmpl.Execute(f, view); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	log.Printf("[Report] Wrote %s (%d stories)", outPath, len(view.Stories))
	return outPath, nil
}

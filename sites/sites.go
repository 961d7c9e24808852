package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"wna/fetchhttp"
)

// Metadata is everything a story landing page tells us about the story.
type Metadata struct {
	Title             string
	Author            string
	CoverURL          string
	Synopsis          string
	EstimatedChapters int
}

// ChapterStub is the minimal chapter identity a source manifest advertises.
// SourceOrder is the position in the source's published order, starting at 0.
type ChapterStub struct {
	SourceID    string
	URL         string
	Title       string
	SourceOrder int
}

// Fetcher is the capability set every supported source implements.
// Fetchers provide ONLY source-specific extraction - retries, rate limiting
// and persistence are the downloader's job.
type Fetcher interface {
	// SiteName returns the registry identifier (e.g. "royalroad").
	SiteName() string

	// PermanentID derives the stable story identifier from the URL without
	// any network traffic, e.g. "royalroad-12345".
	PermanentID(storyURL string) (string, error)

	// Metadata fetches the story landing page and parses title, author,
	// cover URL, synopsis and the advertised chapter count.
	Metadata(ctx context.Context, storyURL string) (*Metadata, error)

	// Manifest returns the chapter stubs in the source's published order.
	Manifest(ctx context.Context, storyURL string) ([]ChapterStub, error)

	// ChapterBody returns the raw HTML of a chapter page. A missing content
	// container surfaces as ErrContentMissing, a 404 as ErrChapterGone.
	ChapterBody(ctx context.Context, chapterURL string) (string, error)

	// ProbeNext checks a chapter page for a "next chapter" link. Returns ""
	// when the page has none. Best effort.
	ProbeNext(ctx context.Context, chapterURL string) (string, error)
}

// factory builds a fetcher bound to a shared HTTP client.
type factory func(client *fetchhttp.Client) Fetcher

var registry = map[string]factory{}

// Register maps one or more hostnames to a fetcher factory. Called from each
// site module's init().
func Register(f func(client *fetchhttp.Client) Fetcher, hosts ...string) {
	for _, h := range hosts {
		registry[strings.ToLower(h)] = f
	}
}

// ForURL selects the fetcher for a story URL by hostname.
func ForURL(storyURL string, client *fetchhttp.Client) (Fetcher, error) {
	parsed, err := url.Parse(storyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	host := strings.ToLower(parsed.Hostname())
	f, ok := registry[host]
	if !ok {
		// Try again without the www prefix
		f, ok = registry[strings.TrimPrefix(host, "www.")]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, host)
	}

	return f(client), nil
}

// SupportedHosts lists every registered hostname. Used by CLI help output.
func SupportedHosts() []string {
	hosts := make([]string, 0, len(registry))
	for h := range registry {
		hosts = append(hosts, h)
	}
	return hosts
}

package sites

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"

	"wna/fetchhttp"
)

func init() {
	Register(func(client *fetchhttp.Client) Fetcher {
		return &RoyalRoad{client: client}
	}, "royalroad.com", "www.royalroad.com")
}

var (
	rrFictionRe = regexp.MustCompile(`/fiction/(\d+)`)
	rrChapterRe = regexp.MustCompile(`/chapter/(\d+)`)
)

// RoyalRoad fetches stories from royalroad.com. The landing page carries the
// full chapter table, so the manifest never needs pagination.
type RoyalRoad struct {
	client *fetchhttp.Client
}

func (r *RoyalRoad) SiteName() string { return "royalroad" }

// PermanentID extracts the numeric fiction ID, e.g.
// https://www.royalroad.com/fiction/12345/some-title -> royalroad-12345
func (r *RoyalRoad) PermanentID(storyURL string) (string, error) {
	m := rrFictionRe.FindStringSubmatch(storyURL)
	if m == nil {
		return "", fmt.Errorf("%w: no fiction ID in %s", ErrMalformedURL, storyURL)
	}
	return "royalroad-" + m[1], nil
}

func (r *RoyalRoad) Metadata(ctx context.Context, storyURL string) (*Metadata, error) {
	page, err := r.client.GetString(ctx, storyURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, &ParseError{Site: r.SiteName(), URL: storyURL, Reason: err.Error()}
	}

	meta := &Metadata{
		Title:    strings.TrimSpace(doc.Find("div.fic-title h1").First().Text()),
		Author:   strings.TrimSpace(doc.Find("div.fic-title h4 a").First().Text()),
		Synopsis: strings.TrimSpace(doc.Find("div.description").First().Text()),
	}
	if meta.Title == "" {
		// Fall back to the og:title meta tag
		meta.Title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	}
	if meta.Title == "" {
		return nil, &ParseError{Site: r.SiteName(), URL: storyURL, Reason: "no story title found"}
	}

	if cover, ok := doc.Find("div.cover-art-container img").Attr("src"); ok {
		meta.CoverURL = absoluteURL(storyURL, cover)
	} else if cover, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		meta.CoverURL = cover
	}

	meta.EstimatedChapters = doc.Find("table#chapters tbody tr.chapter-row").Length()

	return meta, nil
}

// Manifest scrapes the chapter table from the landing page. Rows appear in
// published order, oldest first.
func (r *RoyalRoad) Manifest(ctx context.Context, storyURL string) ([]ChapterStub, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stubs []ChapterStub
	var parseErr error

	c := colly.NewCollector(colly.UserAgent(r.client.UserAgent()))

	c.OnResponse(func(resp *colly.Response) {
		if body, was, err := fetchhttp.DecompressBody(resp.Body, resp.Headers.Get("Content-Encoding")); err == nil && was {
			resp.Body = body
		}
	})

	c.OnHTML("table#chapters tbody tr.chapter-row", func(e *colly.HTMLElement) {
		href := e.ChildAttr("td a", "href")
		if href == "" {
			href = e.Attr("data-url")
		}
		if href == "" {
			return
		}

		chapterURL := absoluteURL(storyURL, href)
		title := strings.TrimSpace(e.ChildText("td a"))

		sourceID := ""
		if m := rrChapterRe.FindStringSubmatch(chapterURL); m != nil {
			sourceID = m[1]
		}

		stubs = append(stubs, ChapterStub{
			SourceID:    sourceID,
			URL:         chapterURL,
			Title:       title,
			SourceOrder: len(stubs),
		})
	})

	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil && resp.StatusCode != 0 {
			parseErr = &fetchhttp.StatusError{Code: resp.StatusCode, URL: storyURL}
			return
		}
		parseErr = err
	})

	if err := c.Visit(storyURL); err != nil && parseErr == nil {
		parseErr = err
	}
	if parseErr != nil {
		return nil, parseErr
	}

	log.Printf("[royalroad] Manifest for %s: %d chapters", storyURL, len(stubs))
	return stubs, nil
}

func (r *RoyalRoad) ChapterBody(ctx context.Context, chapterURL string) (string, error) {
	page, err := r.client.GetString(ctx, chapterURL)
	if err != nil {
		var se *fetchhttp.StatusError
		if errors.As(err, &se) && se.Code == 404 {
			return "", fmt.Errorf("%w: %s", ErrChapterGone, chapterURL)
		}
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", &ParseError{Site: r.SiteName(), URL: chapterURL, Reason: err.Error()}
	}

	if doc.Find("div.chapter-inner.chapter-content").Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrContentMissing, chapterURL)
	}

	return page, nil
}

// ProbeNext looks for the "Next Chapter" navigation button on a chapter page.
func (r *RoyalRoad) ProbeNext(ctx context.Context, chapterURL string) (string, error) {
	page, err := r.client.GetString(ctx, chapterURL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", &ParseError{Site: r.SiteName(), URL: chapterURL, Reason: err.Error()}
	}

	next := ""
	doc.Find("div.nav-buttons a, a.btn").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "next") {
			if href, ok := s.Attr("href"); ok && !strings.HasPrefix(href, "javascript") {
				next = absoluteURL(chapterURL, href)
				return false
			}
		}
		return true
	})

	return next, nil
}

// absoluteURL resolves href against base. Returns href unchanged when it is
// already absolute or base is unparseable.
func absoluteURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

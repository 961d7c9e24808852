package sites

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"wna/fetchhttp"
)

func init() {
	Register(func(client *fetchhttp.Client) Fetcher {
		return &ScribbleHub{client: client}
	}, "scribblehub.com", "www.scribblehub.com")
}

var (
	shSeriesRe  = regexp.MustCompile(`/series/(\d+)`)
	shChapterRe = regexp.MustCompile(`/chapter/(\d+)`)
)

// ScribbleHub fetches stories from scribblehub.com. The table of contents on
// the landing page lists chapters newest first, so the manifest is reversed
// into published order.
type ScribbleHub struct {
	client *fetchhttp.Client
}

func (s *ScribbleHub) SiteName() string { return "scribblehub" }

func (s *ScribbleHub) PermanentID(storyURL string) (string, error) {
	m := shSeriesRe.FindStringSubmatch(storyURL)
	if m == nil {
		return "", fmt.Errorf("%w: no series ID in %s", ErrMalformedURL, storyURL)
	}
	return "scribblehub-" + m[1], nil
}

func (s *ScribbleHub) Metadata(ctx context.Context, storyURL string) (*Metadata, error) {
	doc, err := s.document(ctx, storyURL)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Title:    strings.TrimSpace(doc.Find("div.fic_title").First().Text()),
		Author:   strings.TrimSpace(doc.Find("span.auth_name_fic").First().Text()),
		Synopsis: strings.TrimSpace(doc.Find("div.wi_fic_desc").First().Text()),
	}
	if meta.Title == "" {
		meta.Title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	}
	if meta.Title == "" {
		return nil, &ParseError{Site: s.SiteName(), URL: storyURL, Reason: "no story title found"}
	}

	if cover, ok := doc.Find("div.fic_image img").Attr("src"); ok {
		meta.CoverURL = absoluteURL(storyURL, cover)
	}

	meta.EstimatedChapters = doc.Find("ol.toc_ol li.toc_w").Length()

	return meta, nil
}

func (s *ScribbleHub) Manifest(ctx context.Context, storyURL string) ([]ChapterStub, error) {
	doc, err := s.document(ctx, storyURL)
	if err != nil {
		return nil, err
	}

	var stubs []ChapterStub
	doc.Find("ol.toc_ol li.toc_w a.toc_a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}

		chapterURL := absoluteURL(storyURL, href)
		sourceID := ""
		if m := shChapterRe.FindStringSubmatch(chapterURL); m != nil {
			sourceID = m[1]
		}

		stubs = append(stubs, ChapterStub{
			SourceID: sourceID,
			URL:      chapterURL,
			Title:    strings.TrimSpace(sel.Text()),
		})
	})

	// TOC is newest first; flip into published order and number it
	for i, j := 0, len(stubs)-1; i < j; i, j = i+1, j-1 {
		stubs[i], stubs[j] = stubs[j], stubs[i]
	}
	for i := range stubs {
		stubs[i].SourceOrder = i
	}

	return stubs, nil
}

func (s *ScribbleHub) ChapterBody(ctx context.Context, chapterURL string) (string, error) {
	page, err := s.client.GetString(ctx, chapterURL)
	if err != nil {
		var se *fetchhttp.StatusError
		if errors.As(err, &se) && se.Code == 404 {
			return "", fmt.Errorf("%w: %s", ErrChapterGone, chapterURL)
		}
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", &ParseError{Site: s.SiteName(), URL: chapterURL, Reason: err.Error()}
	}

	if doc.Find("div#chp_raw, div.chp_raw").Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrContentMissing, chapterURL)
	}

	return page, nil
}

func (s *ScribbleHub) ProbeNext(ctx context.Context, chapterURL string) (string, error) {
	doc, err := s.document(ctx, chapterURL)
	if err != nil {
		return "", err
	}

	next := ""
	doc.Find("a.btn-next, div.prenext a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(sel.Text()), "next") {
			if href, ok := sel.Attr("href"); ok && !strings.HasPrefix(href, "javascript") {
				next = absoluteURL(chapterURL, href)
				return false
			}
		}
		return true
	})

	return next, nil
}

func (s *ScribbleHub) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	page, err := s.client.GetString(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, &ParseError{Site: s.SiteName(), URL: pageURL, Reason: err.Error()}
	}
	return doc, nil
}

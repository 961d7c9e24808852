package cleaner

import (
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Elements that never belong in reading content.
var strippedElements = []string{
	"script", "style", "link", "meta", "noscript",
	"nav", "header", "footer", "aside", "iframe", "form",
}

// Attributes removed from every element: scripting hooks, inline styling and
// framework internals.
var strippedAttrPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^on[a-z]+$`),
	regexp.MustCompile(`^style$`),
	regexp.MustCompile(`^class$`),
	regexp.MustCompile(`^id$`),
	regexp.MustCompile(`^data-`),
	regexp.MustCompile(`^aria-`),
	regexp.MustCompile(`^ng-`),
	regexp.MustCompile(`^v-`),
	regexp.MustCompile(`^epub:`),
}

// Attributes kept even though the list above would match them; href/src/alt
// carry meaning for readers.
var keptAttrs = map[string]bool{
	"href": true,
	"src":  true,
	"alt":  true,
}

// contentSelectors maps a site name to the CSS selector of its chapter
// content container. Unknown sites fall back to cleaning the whole document.
var contentSelectors = map[string]string{
	"royalroad":   "div.chapter-inner.chapter-content",
	"scribblehub": "div#chp_raw, div.chp_raw",
}

// junkSelectors lists per-site author-note, ad and comment containers removed
// from the extracted content.
var junkSelectors = map[string][]string{
	"royalroad": {
		"div.author-note-portlet",
		"div.portlet",
		"div.comments",
		"div.ad-container",
		"div.bold-btn-container",
	},
	"scribblehub": {
		"div.wi_authornotes",
		"div.wi_news",
		"div#comments",
		"div.ads",
	},
}

// Void elements per the HTML spec; these never count as "empty" containers
// and must self-close in XHTML output.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

var voidCloseRe = regexp.MustCompile(`<(area|base|br|col|embed|hr|img|input|source|track|wbr)((?:\s[^<>]*[^/<>])?)>`)

// Clean normalizes raw chapter HTML into an XHTML-compatible fragment for
// EPUB inclusion. Best effort: malformed input is cleaned as far as the
// parser can see, and errors fall back to returning the input stripped of
// nothing rather than failing the chapter.
func Clean(rawHTML, siteName string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		// net/html recovers from almost anything, so this is unexpected
		log.Printf("[Cleaner] Unparseable HTML for site %s: %v", siteName, err)
		return rawHTML
	}

	// Locate the content container for known sites; fall back to <body>
	content := doc.Find("body")
	if sel, ok := contentSelectors[siteName]; ok {
		if found := doc.Find(sel); found.Length() > 0 {
			content = found.First()
		} else {
			log.Printf("[Cleaner] Content container missing for %s, cleaning whole document", siteName)
		}
	}

	for _, sel := range junkSelectors[siteName] {
		content.Find(sel).Remove()
	}

	content.Find(strings.Join(strippedElements, ", ")).Remove()

	stripAttributes(content)
	content.Find("*").Each(func(_ int, s *goquery.Selection) {
		stripAttributes(s)
	})

	collapseEmpty(content)

	html, err := content.Html()
	if err != nil {
		log.Printf("[Cleaner] Failed to render cleaned HTML: %v", err)
		return rawHTML
	}

	return selfCloseVoids(strings.TrimSpace(html))
}

func stripAttributes(s *goquery.Selection) {
	for _, node := range s.Nodes {
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			name := strings.ToLower(attr.Key)
			if keptAttrs[name] || !isStrippedAttr(name) {
				kept = append(kept, attr)
			}
		}
		node.Attr = kept
	}
}

func isStrippedAttr(name string) bool {
	for _, re := range strippedAttrPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// collapseEmpty removes non-void elements whose content is only whitespace.
// Single pass from the leaves up: removing a child can empty its parent, so
// the walk repeats until stable.
func collapseEmpty(root *goquery.Selection) {
	for {
		removed := 0
		root.Find("*").Each(func(_ int, s *goquery.Selection) {
			node := s.Get(0)
			if voidElements[node.Data] {
				return
			}
			if s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == "" {
				s.Remove()
				removed++
			}
		})
		if removed == 0 {
			return
		}
	}
}

// selfCloseVoids rewrites bare void tags (<br>) into their XHTML form
// (<br/>). goquery serializes HTML5, which EPUB readers reject.
func selfCloseVoids(html string) string {
	return voidCloseRe.ReplaceAllString(html, "<$1$2/>")
}

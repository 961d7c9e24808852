package cleaner

import (
	"encoding/json"
	"log"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// sentenceFile is the on-disk shape of a sentence-removal config.
type sentenceFile struct {
	RemoveSentences []string `json:"remove_sentences"`
	RemovePatterns  []string `json:"remove_patterns"`
}

// SentenceFilter removes configured literal strings and regex matches from
// the text nodes of a cleaned chapter. Containers left whitespace-only by a
// removal are dropped, recursively upward, but never the fragment root.
type SentenceFilter struct {
	literals []string
	patterns []*regexp.Regexp
}

// LoadSentenceFilter reads a sentence-removal JSON file. Missing or malformed
// files are logged and produce an empty (pass-through) filter; individual
// malformed regex entries are skipped with a warning.
func LoadSentenceFilter(path string) *SentenceFilter {
	f := &SentenceFilter{}
	if path == "" {
		return f
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[SentenceFilter] Cannot read %s, sentence removal disabled: %v", path, err)
		return f
	}

	var cfg sentenceFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("[SentenceFilter] Malformed JSON in %s, sentence removal disabled: %v", path, err)
		return f
	}

	for _, s := range cfg.RemoveSentences {
		if s != "" {
			f.literals = append(f.literals, s)
		}
	}
	for _, p := range cfg.RemovePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Printf("[SentenceFilter] Skipping invalid pattern %q: %v", p, err)
			continue
		}
		f.patterns = append(f.patterns, re)
	}

	log.Printf("[SentenceFilter] Loaded %d sentences, %d patterns from %s", len(f.literals), len(f.patterns), path)
	return f
}

// Empty reports whether the filter would pass input through unchanged.
func (f *SentenceFilter) Empty() bool {
	return f == nil || (len(f.literals) == 0 && len(f.patterns) == 0)
}

// Apply rewrites text nodes of the fragment. Script and style content is left
// alone. Returns the input unchanged when the filter is empty or the fragment
// cannot be parsed.
func (f *SentenceFilter) Apply(fragment string) string {
	if f.Empty() {
		return fragment
	}

	wrapped := "<html><head></head><body>" + fragment + "</body></html>"
	doc, err := html.Parse(strings.NewReader(wrapped))
	if err != nil {
		log.Printf("[SentenceFilter] Unparseable fragment, returning unchanged: %v", err)
		return fragment
	}

	body := findBody(doc)
	if body == nil {
		return fragment
	}

	f.rewriteText(body)
	pruneEmpty(body)

	var sb strings.Builder
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&sb, child); err != nil {
			log.Printf("[SentenceFilter] Render failed, returning unchanged: %v", err)
			return fragment
		}
	}
	return sb.String()
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findBody(child); found != nil {
			return found
		}
	}
	return nil
}

func (f *SentenceFilter) rewriteText(n *html.Node) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		text := n.Data
		for _, lit := range f.literals {
			text = strings.ReplaceAll(text, lit, "")
		}
		for _, re := range f.patterns {
			text = re.ReplaceAllString(text, "")
		}
		n.Data = text
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		f.rewriteText(child)
	}
}

// pruneEmpty removes elements under root that contain only whitespace after
// rewriting. root itself survives even when emptied.
func pruneEmpty(root *html.Node) {
	for {
		if !pruneOnce(root, root) {
			return
		}
	}
}

func pruneOnce(root, n *html.Node) bool {
	removed := false
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		if pruneOnce(root, child) {
			removed = true
		}
		child = next
	}

	if n == root || n.Type != html.ElementNode || voidElements[n.Data] {
		return removed
	}
	if n.FirstChild == nil || strings.TrimSpace(textContent(n)) == "" {
		if hasMeaningfulDescendant(n) {
			return removed
		}
		n.Parent.RemoveChild(n)
		return true
	}
	return removed
}

// hasMeaningfulDescendant reports whether n contains something worth keeping
// even without text, like an image.
func hasMeaningfulDescendant(n *html.Node) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && (child.Data == "img" || child.Data == "hr" || hasMeaningfulDescendant(child)) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(textContent(child))
	}
	return sb.String()
}

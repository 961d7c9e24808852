package cleaner

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"wna/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	os.Exit(m.Run())
}

const royalroadChapterPage = `<!DOCTYPE html>
<html>
<head><title>Chapter 1</title><script>analytics()</script></head>
<body>
<nav>site nav</nav>
<div class="chapter-inner chapter-content" style="font-size: 14px" data-reactid="42">
  <p class="para" onclick="evil()">First paragraph.</p>
  <p>Second with <a href="/fiction/1" id="lnk">a link</a> and <br> a break.</p>
  <div class="author-note-portlet"><p>Thanks for reading!</p></div>
  <div>   </div>
  <p><img src="scene.jpg" alt="scene"></p>
</div>
<footer>copyright</footer>
</body>
</html>`

func TestCleanExtractsContentContainer(t *testing.T) {
	out := Clean(royalroadChapterPage, "royalroad")

	assert.Contains(t, out, "First paragraph.")
	assert.Contains(t, out, "Second with")

	// Site chrome and author notes are gone
	assert.NotContains(t, out, "site nav")
	assert.NotContains(t, out, "copyright")
	assert.NotContains(t, out, "Thanks for reading!")
	assert.NotContains(t, out, "analytics")
}

func TestCleanStripsAttributes(t *testing.T) {
	out := Clean(royalroadChapterPage, "royalroad")

	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "style=")
	assert.NotContains(t, out, "class=")
	assert.NotContains(t, out, "id=")
	assert.NotContains(t, out, "data-reactid")

	// Meaningful attributes survive
	assert.Contains(t, out, `href="/fiction/1"`)
	assert.Contains(t, out, `src="scene.jpg"`)
	assert.Contains(t, out, `alt="scene"`)
}

func TestCleanXHTMLVoids(t *testing.T) {
	out := Clean(royalroadChapterPage, "royalroad")
	assert.Contains(t, out, "<br/>")
	assert.NotContains(t, out, "<br>")
}

func TestCleanCollapsesEmptyContainers(t *testing.T) {
	out := Clean(`<div class="chapter-inner chapter-content"><p>keep</p><div><span>  </span></div></div>`, "royalroad")
	assert.Contains(t, out, "keep")
	assert.NotContains(t, out, "<span>")
	assert.NotContains(t, out, "<div>")
}

func TestCleanUnknownSiteFallsBackToBody(t *testing.T) {
	out := Clean(`<html><body><p>anything</p><script>x()</script></body></html>`, "nosuchsite")
	assert.Contains(t, out, "anything")
	assert.NotContains(t, out, "x()")
}

func TestCleanScribblehubContainer(t *testing.T) {
	page := `<html><body><div id="chp_raw"><p>sh content</p></div><div class="wi_authornotes">note</div></body></html>`
	out := Clean(page, "scribblehub")
	assert.Contains(t, out, "sh content")
	assert.NotContains(t, out, "note")
}

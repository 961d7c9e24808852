package sites

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wna/fetchhttp"
	"wna/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	os.Exit(m.Run())
}

const rrFictionPage = `<!DOCTYPE html>
<html>
<head><meta property="og:title" content="Fallback Title"></head>
<body>
<div class="fic-title">
  <h1>Mother of Learning</h1>
  <h4>by <a href="/profile/1">nobody103</a></h4>
</div>
<div class="cover-art-container"><img src="/covers/12345.jpg"></div>
<div class="description">A story about a time loop.</div>
<table id="chapters"><tbody>
  <tr class="chapter-row"><td><a href="/fiction/12345/mol/chapter/100/one">1. Good Morning Brother</a></td></tr>
  <tr class="chapter-row"><td><a href="/fiction/12345/mol/chapter/101/two">2. Life&#39;s Little Problems</a></td></tr>
  <tr class="chapter-row"><td><a href="/fiction/12345/mol/chapter/102/three">3. The Bitter Truth</a></td></tr>
</tbody></table>
</body>
</html>`

const rrChapterPage = `<!DOCTYPE html>
<html><body>
<div class="chapter-inner chapter-content"><p>Zorian opened his eyes.</p></div>
<div class="nav-buttons">
  <a href="/fiction/12345/mol/chapter/100/one">Previous Chapter</a>
  <a href="/fiction/12345/mol/chapter/102/three">Next Chapter</a>
</div>
</body></html>`

func testClient() *fetchhttp.Client {
	return fetchhttp.NewClient(5*time.Second, "wna-test/1.0")
}

func TestRoyalRoadPermanentID(t *testing.T) {
	rr := &RoyalRoad{}

	id, err := rr.PermanentID("https://www.royalroad.com/fiction/12345/mother-of-learning")
	require.NoError(t, err)
	assert.Equal(t, "royalroad-12345", id)

	_, err = rr.PermanentID("https://www.royalroad.com/profile/99")
	assert.ErrorIs(t, err, ErrMalformedURL)
}

func TestRoyalRoadMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rrFictionPage))
	}))
	defer srv.Close()

	rr := &RoyalRoad{client: testClient()}
	meta, err := rr.Metadata(context.Background(), srv.URL+"/fiction/12345/mol")
	require.NoError(t, err)

	assert.Equal(t, "Mother of Learning", meta.Title)
	assert.Equal(t, "nobody103", meta.Author)
	assert.Equal(t, "A story about a time loop.", meta.Synopsis)
	assert.Equal(t, srv.URL+"/covers/12345.jpg", meta.CoverURL)
	assert.Equal(t, 3, meta.EstimatedChapters)
}

func TestRoyalRoadManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rrFictionPage))
	}))
	defer srv.Close()

	rr := &RoyalRoad{client: testClient()}
	stubs, err := rr.Manifest(context.Background(), srv.URL+"/fiction/12345/mol")
	require.NoError(t, err)
	require.Len(t, stubs, 3)

	assert.Equal(t, "100", stubs[0].SourceID)
	assert.Equal(t, srv.URL+"/fiction/12345/mol/chapter/100/one", stubs[0].URL)
	assert.Equal(t, "1. Good Morning Brother", stubs[0].Title)
	assert.Equal(t, 0, stubs[0].SourceOrder)

	assert.Equal(t, "102", stubs[2].SourceID)
	assert.Equal(t, 2, stubs[2].SourceOrder)
}

func TestRoyalRoadManifestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rr := &RoyalRoad{client: testClient()}
	_, err := rr.Manifest(context.Background(), srv.URL+"/fiction/12345/mol")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestRoyalRoadChapterBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chapter/ok":
			w.Write([]byte(rrChapterPage))
		case "/chapter/hollow":
			w.Write([]byte(`<html><body><p>no container here</p></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rr := &RoyalRoad{client: testClient()}

	t.Run("success returns full page", func(t *testing.T) {
		body, err := rr.ChapterBody(context.Background(), srv.URL+"/chapter/ok")
		require.NoError(t, err)
		assert.Contains(t, body, "Zorian opened his eyes.")
	})

	t.Run("404 is chapter gone", func(t *testing.T) {
		_, err := rr.ChapterBody(context.Background(), srv.URL+"/chapter/deleted")
		assert.ErrorIs(t, err, ErrChapterGone)
		assert.False(t, IsTransient(err))
	})

	t.Run("missing container", func(t *testing.T) {
		_, err := rr.ChapterBody(context.Background(), srv.URL+"/chapter/hollow")
		assert.ErrorIs(t, err, ErrContentMissing)
		assert.False(t, IsTransient(err))
	})
}

func TestRoyalRoadProbeNext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rrChapterPage))
	}))
	defer srv.Close()

	rr := &RoyalRoad{client: testClient()}
	next, err := rr.ProbeNext(context.Background(), srv.URL+"/chapter/101")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/fiction/12345/mol/chapter/102/three", next)
}

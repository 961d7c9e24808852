package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wna/logx"
	"wna/progress"
	"wna/sites"
)

func TestMain(m *testing.M) {
	logx.Discard()
	os.Exit(m.Run())
}

// fakeFetcher serves canned chapter bodies and records fetch attempts.
type fakeFetcher struct {
	bodies   map[string]string
	errs     map[string]error
	attempts int64
}

func (f *fakeFetcher) SiteName() string                          { return "faketest" }
func (f *fakeFetcher) PermanentID(string) (string, error)        { return "faketest-1", nil }
func (f *fakeFetcher) Metadata(context.Context, string) (*sites.Metadata, error) {
	return &sites.Metadata{Title: "Fake"}, nil
}
func (f *fakeFetcher) Manifest(context.Context, string) ([]sites.ChapterStub, error) {
	return nil, nil
}
func (f *fakeFetcher) ProbeNext(context.Context, string) (string, error) { return "", nil }

func (f *fakeFetcher) ChapterBody(ctx context.Context, chapterURL string) (string, error) {
	atomic.AddInt64(&f.attempts, 1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.errs[chapterURL]; ok {
		return "", err
	}
	body, ok := f.bodies[chapterURL]
	if !ok {
		return "", fmt.Errorf("%w: %s", sites.ErrChapterGone, chapterURL)
	}
	return body, nil
}

func queueOf(n int) []progress.ChapterRecord {
	var q []progress.ChapterRecord
	for i := 1; i <= n; i++ {
		q = append(q, progress.ChapterRecord{
			SourceChapterID: fmt.Sprintf("%d", i),
			ChapterURL:      fmt.Sprintf("https://faketest.example/chapter/%d", i),
			ChapterTitle:    fmt.Sprintf("Chapter %d", i),
			DownloadOrder:   i,
			Status:          progress.StatusPending,
		})
	}
	return q
}

func bodiesFor(q []progress.ChapterRecord) map[string]string {
	bodies := make(map[string]string, len(q))
	for _, ch := range q {
		bodies[ch.ChapterURL] = fmt.Sprintf("<html><body><p>Content of %s</p></body></html>", ch.ChapterTitle)
	}
	return bodies
}

func newPool(t *testing.T, f *fakeFetcher) *Pool {
	t.Helper()
	root := t.TempDir()
	return &Pool{
		Fetcher:      f,
		RawDir:       filepath.Join(root, "raw"),
		ProcessedDir: filepath.Join(root, "processed"),
		Workers:      4,
	}
}

func TestPoolDownloadsQueue(t *testing.T) {
	queue := queueOf(5)
	fetcher := &fakeFetcher{bodies: bodiesFor(queue)}
	pool := newPool(t, fetcher)

	outcomes := pool.Run(context.Background(), queue)
	require.Len(t, outcomes, 5)

	for _, out := range outcomes {
		assert.Equal(t, progress.StatusActive, out.Status)
		assert.NotEmpty(t, out.DownloadTimestamp)

		raw, err := os.ReadFile(filepath.Join(pool.RawDir, out.RawFilename))
		require.NoError(t, err)
		assert.Contains(t, string(raw), "Content of")

		processed, err := os.ReadFile(filepath.Join(pool.ProcessedDir, out.ProcessedFilename))
		require.NoError(t, err)
		assert.Contains(t, string(processed), "Content of")
		assert.NotContains(t, string(processed), "<body>")
	}
}

func TestPoolFileNames(t *testing.T) {
	queue := queueOf(1)
	fetcher := &fakeFetcher{bodies: bodiesFor(queue)}
	pool := newPool(t, fetcher)

	outcomes := pool.Run(context.Background(), queue)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "chapter_00001_1.html", outcomes[0].RawFilename)
	assert.Equal(t, "chapter_00001_1_clean.html", outcomes[0].ProcessedFilename)
}

func TestPoolTerminalErrorFailsWithoutRetry(t *testing.T) {
	queue := queueOf(1)
	fetcher := &fakeFetcher{
		bodies: map[string]string{},
		errs:   map[string]error{queue[0].ChapterURL: fmt.Errorf("%w: gone", sites.ErrChapterGone)},
	}
	pool := newPool(t, fetcher)

	outcomes := pool.Run(context.Background(), queue)
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	assert.Equal(t, progress.StatusFailed, out.Status)
	require.NotNil(t, out.ErrorInfo)
	assert.Equal(t, "chapter_gone", out.ErrorInfo.Type)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fetcher.attempts))
}

func TestPoolEmptyAfterCleanFails(t *testing.T) {
	queue := queueOf(1)
	fetcher := &fakeFetcher{bodies: map[string]string{
		queue[0].ChapterURL: "<html><body><div>   </div></body></html>",
	}}
	pool := newPool(t, fetcher)

	outcomes := pool.Run(context.Background(), queue)
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	assert.Equal(t, progress.StatusFailed, out.Status)
	require.NotNil(t, out.ErrorInfo)
	assert.Equal(t, "empty_after_clean", out.ErrorInfo.Type)

	// Raw file stays on disk for inspection
	assert.NotEmpty(t, out.RawFilename)
	_, err := os.Stat(filepath.Join(pool.RawDir, out.RawFilename))
	assert.NoError(t, err)
}

func TestPoolChapterLimit(t *testing.T) {
	queue := queueOf(6)
	fetcher := &fakeFetcher{bodies: bodiesFor(queue)}
	pool := newPool(t, fetcher)
	pool.ChapterLimit = 2

	outcomes := pool.Run(context.Background(), queue)
	require.Len(t, outcomes, 6)

	downloaded, skipped := 0, 0
	for _, out := range outcomes {
		switch {
		case out.Status == progress.StatusActive:
			downloaded++
		case out.Skipped:
			skipped++
		}
	}
	assert.Equal(t, 2, downloaded)
	assert.Equal(t, 4, skipped)
}

func TestPoolFailureReleasesLimitSlot(t *testing.T) {
	queue := queueOf(3)
	bodies := bodiesFor(queue)
	delete(bodies, queue[0].ChapterURL) // first chapter 404s
	fetcher := &fakeFetcher{bodies: bodies}
	pool := newPool(t, fetcher)
	pool.Workers = 1
	pool.ChapterLimit = 2

	outcomes := pool.Run(context.Background(), queue)
	require.Len(t, outcomes, 3)

	downloaded := 0
	for _, out := range outcomes {
		if out.Status == progress.StatusActive {
			downloaded++
		}
	}
	// The failed chapter's slot went back to the pool
	assert.Equal(t, 2, downloaded)
}

func TestPoolCancellation(t *testing.T) {
	queue := queueOf(8)
	fetcher := &fakeFetcher{bodies: bodiesFor(queue)}
	pool := newPool(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := pool.Run(ctx, queue)

	for _, out := range outcomes {
		assert.True(t, out.Cancelled, "task for %s should be cancelled", out.ChapterURL)
		assert.NotEqual(t, progress.StatusActive, out.Status)
	}
}

func TestPoolProgressCallback(t *testing.T) {
	queue := queueOf(4)
	fetcher := &fakeFetcher{bodies: bodiesFor(queue)}
	pool := newPool(t, fetcher)
	pool.Workers = 2

	var calls int32
	var lastDone int32
	pool.OnProgress = func(done, total int, chapterTitle string, out Outcome) {
		atomic.AddInt32(&calls, 1)
		atomic.StoreInt32(&lastDone, int32(done))
		assert.Equal(t, 4, total)
		assert.NotEmpty(t, chapterTitle)
	}

	pool.Run(context.Background(), queue)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(4), atomic.LoadInt32(&lastDone))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "www.royalroad.com", hostOf("https://www.royalroad.com/fiction/1/chapter/2"))
}

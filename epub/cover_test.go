package epub

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wna/fetchhttp"
)

func encodeTestImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	case "jpeg":
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	default:
		t.Fatalf("unsupported test format %s", format)
	}
	return buf.Bytes()
}

func TestDetectImageFormat(t *testing.T) {
	assert.Equal(t, "png", mustFormat(t, encodeTestImage(t, "png")))
	assert.Equal(t, "jpeg", mustFormat(t, encodeTestImage(t, "jpeg")))

	_, err := detectImageFormat([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = detectImageFormat([]byte{0x00})
	assert.Error(t, err)
}

func mustFormat(t *testing.T, data []byte) string {
	t.Helper()
	format, err := detectImageFormat(data)
	require.NoError(t, err)
	return format
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestDownloadCoverNormalizesToJPEG(t *testing.T) {
	pngBytes := encodeTestImage(t, "png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes)
	}))
	defer srv.Close()

	client := fetchhttp.NewClient(5*time.Second, "wna-test/1.0")
	path, err := downloadCover(context.Background(), client, srv.URL+"/cover.png", t.TempDir())
	require.NoError(t, err)

	data := readFile(t, path)
	format, err := detectImageFormat(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDownloadCoverKeepsJPEGBytes(t *testing.T) {
	jpegBytes := encodeTestImage(t, "jpeg")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	client := fetchhttp.NewClient(5*time.Second, "wna-test/1.0")
	path, err := downloadCover(context.Background(), client, srv.URL+"/cover.jpg", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, jpegBytes, readFile(t, path))
}

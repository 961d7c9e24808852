package fetchhttp

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wna/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	os.Exit(m.Run())
}

func TestGetSendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "wna-test/1.0")
	body, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "wna-test/1.0", gotUA)
}

func TestGetStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "wna-test/1.0")
	_, err := client.Get(context.Background(), srv.URL)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)
	assert.Contains(t, se.Error(), "404")
}

func TestGetDecompressesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte("compressed content"))
		zw.Close()

		// Uses a header Go's transport will not auto-decompress for us
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "wna-test/1.0")
	body, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "compressed content", string(body))
}

func TestDecompressBody(t *testing.T) {
	t.Run("gzip by magic bytes", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte("payload"))
		zw.Close()

		// Header lies, magic bytes win
		out, was, err := DecompressBody(buf.Bytes(), "")
		require.NoError(t, err)
		assert.True(t, was)
		assert.Equal(t, "payload", string(out))
	})

	t.Run("brotli by header", func(t *testing.T) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("payload"))
		bw.Close()

		out, was, err := DecompressBody(buf.Bytes(), "br")
		require.NoError(t, err)
		assert.True(t, was)
		assert.Equal(t, "payload", string(out))
	})

	t.Run("mislabeled brotli falls through", func(t *testing.T) {
		out, was, err := DecompressBody([]byte("plain text"), "br")
		require.NoError(t, err)
		assert.False(t, was)
		assert.Equal(t, "plain text", string(out))
	})

	t.Run("plain body untouched", func(t *testing.T) {
		out, was, err := DecompressBody([]byte("plain"), "")
		require.NoError(t, err)
		assert.False(t, was)
		assert.Equal(t, "plain", string(out))
	})

	t.Run("empty body", func(t *testing.T) {
		out, was, err := DecompressBody(nil, "br")
		require.NoError(t, err)
		assert.False(t, was)
		assert.Empty(t, out)
	})
}

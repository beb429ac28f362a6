package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadWritesToCacheDir(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	c := New(Options{CacheDir: cacheDir})

	path, err := c.Download(context.Background(), srv.URL+"/tool-1.0.0.tar.gz")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
	assert.Equal(t, 1, hits)
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) == cacheDir)
}

func TestDownloadReusesCachedFile(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	c := New(Options{CacheDir: cacheDir})
	url := srv.URL + "/tool-1.0.0.tar.gz"

	_, err := c.Download(context.Background(), url)
	require.NoError(t, err)
	_, err = c.Download(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "second download must be served from cache")
}

func TestDownloadErrorsOnNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Options{CacheDir: t.TempDir(), RetryMax: 0})
	_, err := c.Download(context.Background(), srv.URL+"/missing.tar.gz")
	assert.Error(t, err)
}

func TestCacheKeyStableForSameURL(t *testing.T) {
	a := CacheKey("https://example.test/tool-1.0.0.tar.gz")
	b := CacheKey("https://example.test/tool-1.0.0.tar.gz")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "tool-1.0.0.tar.gz")
}

func TestCacheKeyDiffersAcrossURLsWithSameBasename(t *testing.T) {
	a := CacheKey("https://host-a.test/tool.tar.gz")
	b := CacheKey("https://host-b.test/tool.tar.gz")
	assert.NotEqual(t, a, b)
}

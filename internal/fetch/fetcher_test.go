package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
)

func TestFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("hello world"))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/slow":
			time.Sleep(500 * time.Millisecond)
			_, _ = w.Write([]byte("too late"))
		case "/truncated":
			// Announce more bytes than are sent so the client read fails
			// mid copy.
			w.Header().Set("Content-Length", "1024")
			_, _ = w.Write([]byte("partial"))
			w.(http.Flusher).Flush()
			conn, _, _ := w.(http.Hijacker).Hijack()
			_ = conn.Close()
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	var tracked []string
	f := &Fetcher{
		Dir:    dir,
		Prefix: "media_test",
		Track:  func(p string) { tracked = append(tracked, p) },
	}

	t.Run("success streams body to disk", func(t *testing.T) {
		res := f.Fetch(context.Background(), 0, asset.Descriptor{Filename: "a.mp4", SourceURL: server.URL + "/ok"})
		require.NoError(t, res.Err)
		assert.Equal(t, int64(len("hello world")), res.Size)

		data, err := os.ReadFile(res.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
		assert.Contains(t, tracked, res.LocalPath)
	})

	t.Run("non-2xx carries the status code", func(t *testing.T) {
		res := f.Fetch(context.Background(), 1, asset.Descriptor{Filename: "b.mp4", SourceURL: server.URL + "/missing"})
		require.Error(t, res.Err)

		var serr *StatusError
		require.ErrorAs(t, res.Err, &serr)
		assert.Equal(t, http.StatusNotFound, serr.Code)
		assert.Empty(t, res.LocalPath)
	})

	t.Run("timeout is reported as ErrTimeout", func(t *testing.T) {
		slow := &Fetcher{Dir: dir, Prefix: "media_test", Timeout: 50 * time.Millisecond}
		res := slow.Fetch(context.Background(), 2, asset.Descriptor{Filename: "c.mp4", SourceURL: server.URL + "/slow"})
		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, ErrTimeout)
	})

	t.Run("partial file is removed on body error", func(t *testing.T) {
		res := f.Fetch(context.Background(), 3, asset.Descriptor{Filename: "d.mp4", SourceURL: server.URL + "/truncated"})
		require.Error(t, res.Err)

		_, err := os.Stat(filepath.Join(dir, "media_test_003"))
		assert.True(t, os.IsNotExist(err), "partial download must be deleted")
	})

	t.Run("connection failure is captured, not raised", func(t *testing.T) {
		res := f.Fetch(context.Background(), 4, asset.Descriptor{Filename: "e.mp4", SourceURL: "http://127.0.0.1:1/nope"})
		require.Error(t, res.Err)
		assert.False(t, res.OK())
	})
}

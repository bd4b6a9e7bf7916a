package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
)

func TestBatcher_FetchAll(t *testing.T) {
	var inflight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	defer server.Close()

	assets := make([]asset.Descriptor, 7)
	for i := range assets {
		path := fmt.Sprintf("/asset-%d", i)
		if i == 2 || i == 5 {
			path = "/fail"
		}
		assets[i] = asset.Descriptor{
			Filename:  fmt.Sprintf("asset %d.mp4", i),
			SourceURL: server.URL + path,
		}
	}

	b := &Batcher{
		Fetcher: &Fetcher{Dir: t.TempDir(), Prefix: "media_batch"},
		Size:    3,
	}
	results := b.FetchAll(context.Background(), assets)

	require.Len(t, results, 7)
	for i, r := range results {
		assert.Equal(t, i, r.Index, "results must keep input order")
		assert.Equal(t, assets[i], r.Asset)
	}

	ok := Successes(results)
	failed := Failures(results)
	assert.Len(t, ok, 5)
	assert.Len(t, failed, 2)
	assert.Equal(t, 2, failed[0].Index)
	assert.Equal(t, 5, failed[1].Index)

	for _, r := range ok {
		data, err := os.ReadFile(r.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("content of /asset-%d", r.Index), string(data))
	}

	assert.LessOrEqual(t, peak, int32(3), "no more than one batch may be in flight")
}

func TestBatcher_DefaultSize(t *testing.T) {
	b := &Batcher{Fetcher: &Fetcher{Dir: t.TempDir(), Prefix: "media_empty"}}
	results := b.FetchAll(context.Background(), nil)
	assert.Empty(t, results)
}

package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zip_test.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newUploader() *Uploader {
	return &Uploader{BackoffStep: time.Millisecond}
}

func TestUploader_Put_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	var lastBody []byte
	var lastLength string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		lastBody = body
		lastLength = r.Header.Get("Content-Length")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeArchive(t, "archive bytes")
	attempts, err := newUploader().Put(context.Background(), server.URL+"/key.zip", path)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "archive bytes", string(lastBody), "retries must resend the whole file")
	assert.Equal(t, "13", lastLength, "Content-Length must be explicit")
}

func TestUploader_Put_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	attempts, err := newUploader().Put(context.Background(), server.URL+"/key.zip", writeArchive(t, "x"))

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, exhausted.Attempts)

	var serr *StatusError
	require.ErrorAs(t, exhausted.Last, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.Code)
}

func TestUploader_Put_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	attempts, err := newUploader().Put(context.Background(), server.URL+"/key.zip", writeArchive(t, "x"))

	require.Error(t, err)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.Code)
	assert.Equal(t, 1, attempts)
	assert.EqualValues(t, 1, calls, "client errors must not be retried")

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted), "a client error is not retry exhaustion")
}

func TestUploader_Put_MissingArchive(t *testing.T) {
	attempts, err := newUploader().Put(context.Background(), "http://127.0.0.1:1/key.zip", filepath.Join(t.TempDir(), "nope.zip"))
	require.Error(t, err)
	assert.Zero(t, attempts)
}

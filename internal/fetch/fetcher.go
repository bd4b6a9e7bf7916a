// Package fetch downloads remote assets into the shared scratch directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
)

// DefaultTimeout bounds a single fetch from connection start to completion.
const DefaultTimeout = 60 * time.Second

// ErrTimeout indicates a fetch did not complete within its timeout.
var ErrTimeout = errors.New("fetch timed out")

// StatusError is returned when the remote host answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Result is the outcome of fetching one asset. Err is nil exactly when the
// asset was fully written to LocalPath. The local file is owned by the run
// that created it.
type Result struct {
	Asset     asset.Descriptor
	Index     int
	LocalPath string
	Size      int64
	Err       error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Fetcher streams remote assets to local files. The response body is copied
// straight to disk and never buffered in memory as a whole.
type Fetcher struct {
	// Client is the HTTP client to fetch with. Defaults to http.DefaultClient.
	Client *http.Client

	// Timeout bounds each fetch. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Dir is the directory local files are written to.
	Dir string

	// Prefix is the run-unique name prefix for local files.
	Prefix string

	// Track is called with the path of every local file the moment it is
	// created, so the run's janitor can reclaim it on any exit path.
	Track func(path string)
}

// Fetch downloads one asset. Failures are captured in the result, never
// raised; a partially written file is removed before returning.
func (f *Fetcher) Fetch(ctx context.Context, index int, d asset.Descriptor) Result {
	res := Result{Asset: d, Index: index}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.SourceURL, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}

	resp, err := f.client().Do(req)
	if err != nil {
		res.Err = classify(err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Err = &StatusError{URL: d.SourceURL, Code: resp.StatusCode}
		return res
	}

	dest := filepath.Join(f.Dir, fmt.Sprintf("%s_%03d", f.Prefix, index))
	out, err := os.Create(dest)
	if err != nil {
		res.Err = fmt.Errorf("create local file: %w", err)
		return res
	}
	if f.Track != nil {
		f.Track(dest)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", dest).Msg("Failed to remove partial download")
		}
		res.Err = classify(err)
		return res
	}

	res.LocalPath = dest
	res.Size = n
	return res
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// classify folds timeouts into ErrTimeout so callers can report them as such.
// Everything else is left as the underlying network error.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Package upload streams finished archives to the object store.
package upload

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxAttempts is the total number of PUT attempts, first try
	// included.
	DefaultMaxAttempts = 3

	// DefaultBackoffStep is the linear backoff unit: attempt n waits n*step
	// before retrying.
	DefaultBackoffStep = 2 * time.Second

	// DefaultTimeout bounds a single PUT attempt.
	DefaultTimeout = 2 * time.Minute
)

// ExhaustedError is returned when every attempt failed with a retryable
// error. Last carries the failure of the final attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("upload failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// StatusError is an upload rejected by the store with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store answered %d", e.Code)
}

// Outcome summarizes one finished upload.
type Outcome struct {
	RemotePath string
	PublicURL  string
	Attempts   int
	Succeeded  bool
}

// Uploader PUTs archive files to presigned destinations. Transient failures
// (timeout, connection reset, TLS negotiation, 5xx) are retried with linear
// backoff; anything else fails immediately. Every attempt re-reads the
// archive from the start, which is why archives are materialized to disk
// before upload rather than streamed through.
type Uploader struct {
	// MaxAttempts is the total attempt budget. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// BackoffStep is the linear backoff unit. Defaults to DefaultBackoffStep.
	BackoffStep time.Duration

	// Timeout bounds each attempt. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Put uploads the file at path to the signed URL with an explicit
// Content-Length. It returns the number of attempts made alongside any error.
func (u *Uploader) Put(ctx context.Context, signedURL, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	// Rewind to the start for every attempt. The wrapper hides Close so the
	// HTTP client cannot close the file between attempts.
	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return struct{ io.Reader }{f}, nil
	})

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, signedURL, body)
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/zip")

	attempts := 0
	client := &retryablehttp.Client{
		HTTPClient:   &http.Client{Timeout: u.timeout()},
		RetryMax:     u.maxAttempts() - 1,
		CheckRetry:   checkRetry,
		Backoff:      u.backoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, _ *http.Request, retry int) {
			attempts = retry + 1
			if retry > 0 {
				log.Info().Int("attempt", attempts).Msg("Retrying archive upload")
			}
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTransient(err) {
			return attempts, &ExhaustedError{Attempts: attempts, Last: err}
		}
		return attempts, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return attempts, nil
	}

	serr := &StatusError{Code: resp.StatusCode}
	if retryableStatus(resp.StatusCode) {
		// A retryable status on the way out means the attempt budget ran dry.
		return attempts, &ExhaustedError{Attempts: attempts, Last: serr}
	}
	return attempts, serr
}

func (u *Uploader) maxAttempts() int {
	if u.MaxAttempts > 0 {
		return u.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (u *Uploader) timeout() time.Duration {
	if u.Timeout > 0 {
		return u.Timeout
	}
	return DefaultTimeout
}

func (u *Uploader) backoff(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	step := u.BackoffStep
	if step <= 0 {
		step = DefaultBackoffStep
	}
	return step * time.Duration(attemptNum+1)
}

// checkRetry retries transient transport failures and retryable statuses
// only. Client errors (4xx) and malformed requests fail on the spot.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return isTransient(err), nil
	}
	return retryableStatus(resp.StatusCode), nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// isTransient reports whether err belongs to the restricted class worth
// retrying: timeouts, connection resets and TLS negotiation failures.
func isTransient(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	return errors.As(err, &verifyErr)
}

// Package pipeline coordinates one archive run: batched fetches, archive
// assembly, signed upload and the completion webhook, with temp artifacts
// reclaimed on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/archive"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/fetch"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/fileio"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/janitor"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/notify"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/r2"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/upload"
)

// Temp artifact name prefixes. The background sweeper keys off these.
const (
	AssetPrefix   = "media_"
	ArchivePrefix = "zip_"
)

const (
	uploadExpiry     = 15 * time.Minute
	publicLinkExpiry = 7 * 24 * time.Hour
)

// ErrNoAssets is returned when not a single asset could be fetched.
var ErrNoAssets = errors.New("no assets available: all fetches failed")

// Result is the outcome of a successful run.
type Result struct {
	RemotePath   string
	PublicURL    string
	SizeBytes    int64
	SuccessCount int
	TotalCount   int
	Attempts     int
	Elapsed      time.Duration
}

// Pipeline runs archive jobs. One coordinating flow per job; the only
// concurrency lives inside a fetch batch.
type Pipeline struct {
	// TempDir is the shared scratch directory. Defaults to os.TempDir().
	TempDir string

	// BatchSize bounds concurrent fetches. Defaults to fetch.DefaultBatchSize.
	BatchSize int

	// FetchTimeout bounds each asset fetch. Defaults to fetch.DefaultTimeout.
	FetchTimeout time.Duration

	// FetchClient is the HTTP client assets are fetched with.
	FetchClient *http.Client

	// Uploader PUTs the finished archive. A zero Uploader is usable.
	Uploader *upload.Uploader

	// SignerOpts are extra signer options. Tests use them to redirect the
	// store endpoint.
	SignerOpts []r2.Option
}

// Run executes the whole job and delivers the completion webhook on both
// paths. The returned error is fatal to the job; per-asset failures are
// absorbed into the result.
func (p *Pipeline) Run(ctx context.Context, job asset.Job) (Result, error) {
	start := time.Now()
	run := &janitor.Run{}
	defer run.Cleanup()

	log.Info().
		Str("job_id", job.ID).
		Int("assets", len(job.Assets)).
		Str("store", job.Store.Redacted()).
		Msg("Starting archive job")

	res, err := p.run(ctx, job, run)
	res.Elapsed = time.Since(start)

	ev := notify.Event{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		UserID:    job.UserID,
		Success:   err == nil,
		ElapsedMs: res.Elapsed.Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
		log.Error().Err(err).Str("job_id", job.ID).Msg("Archive job failed")
	} else {
		ev.RemotePath = res.RemotePath
		ev.PublicURL = res.PublicURL
		ev.SizeBytes = res.SizeBytes
		ev.SuccessCount = res.SuccessCount
		ev.TotalCount = res.TotalCount
		log.Info().
			Str("job_id", job.ID).
			Str("remote_path", res.RemotePath).
			Int("entries", res.SuccessCount).
			Dur("elapsed", res.Elapsed).
			Msg("Archive job finished")
	}
	notify.New(job.NotificationURL).Send(ctx, ev)

	return res, err
}

func (p *Pipeline) run(ctx context.Context, job asset.Job, run *janitor.Run) (Result, error) {
	dir := p.tempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure scratch dir: %w", err)
	}
	token := fileio.RunToken()

	fetcher := &fetch.Fetcher{
		Client:  p.FetchClient,
		Timeout: p.FetchTimeout,
		Dir:     dir,
		Prefix:  AssetPrefix + token,
		Track:   run.Track,
	}
	batcher := &fetch.Batcher{Fetcher: fetcher, Size: p.BatchSize}
	results := batcher.FetchAll(ctx, job.Assets)

	for _, r := range fetch.Failures(results) {
		log.Warn().
			Err(r.Err).
			Str("job_id", job.ID).
			Str("filename", r.Asset.Filename).
			Msg("Asset excluded from archive")
	}

	ok := fetch.Successes(results)
	if len(ok) == 0 {
		return Result{TotalCount: len(results)}, ErrNoAssets
	}

	zipPath := filepath.Join(dir, ArchivePrefix+token+".zip")
	run.Track(zipPath)
	art, err := archive.Build(zipPath, ok)
	if err != nil {
		return Result{TotalCount: len(results)}, err
	}

	key := objectKey(job, token)
	signer := r2.NewSigner(job.Store, p.SignerOpts...)
	putURL := signer.PresignURL(http.MethodPut, key, uploadExpiry)

	attempts, err := p.uploader().Put(ctx, putURL, art.Path)
	if err != nil {
		return Result{TotalCount: len(results), Attempts: attempts}, err
	}

	return Result{
		RemotePath:   key,
		PublicURL:    signer.PresignURL(http.MethodGet, key, publicLinkExpiry),
		SizeBytes:    art.Size,
		SuccessCount: art.EntryCount,
		TotalCount:   len(results),
		Attempts:     attempts,
	}, nil
}

func (p *Pipeline) tempDir() string {
	if p.TempDir != "" {
		return p.TempDir
	}
	return os.TempDir()
}

func (p *Pipeline) uploader() *upload.Uploader {
	if p.Uploader != nil {
		return p.Uploader
	}
	return &upload.Uploader{}
}

func objectKey(job asset.Job, token string) string {
	return path.Join("archives", job.UserID, job.ProjectID, job.ID+"_"+token+".zip")
}

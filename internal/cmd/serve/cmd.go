// Package serve implements the serve command: the HTTP service that accepts
// archive jobs.
package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/api"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/config"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/janitor"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/pipeline"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/upload"
)

// Command creates the serve command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the archive bundling service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		TempDir:      cfg.TempDir,
		BatchSize:    cfg.BatchSize,
		FetchTimeout: cfg.FetchTimeout,
		Uploader:     &upload.Uploader{Timeout: cfg.UploadTimeout},
	}

	sweeper := &janitor.Sweeper{
		Dir:      cfg.TempDir,
		Prefixes: []string{pipeline.AssetPrefix, pipeline.ArchivePrefix},
		MaxAge:   cfg.SweepMaxAge,
		Interval: cfg.SweepInterval,
	}
	go sweeper.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(&api.Handler{Runner: p}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down cleanly")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("temp_dir", cfg.TempDir).Msg("API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

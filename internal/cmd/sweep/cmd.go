// Package sweep implements the sweep command: a one-shot cleanup of orphaned
// temp artifacts, useful after a crash or from cron.
package sweep

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/config"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/janitor"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/pipeline"
)

// Command creates the sweep command.
func Command() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:          "sweep",
		Short:        "Remove orphaned temp artifacts left behind by crashed runs",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = cfg.SweepMaxAge
			}

			s := &janitor.Sweeper{
				Dir:      cfg.TempDir,
				Prefixes: []string{pipeline.AssetPrefix, pipeline.ArchivePrefix},
				MaxAge:   maxAge,
			}
			removed := s.Sweep()
			log.Info().Int("removed", removed).Str("dir", cfg.TempDir).Msg("Sweep finished")
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "minimum age before a temp artifact is considered orphaned")
	return cmd
}

// Package janitor reclaims temp artifacts. A run owns and deletes its own
// files; the background sweeper only ever touches files old enough that no
// live run should still hold them, which is what makes the shared scratch
// directory safe without locking.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxAge is how old an orphan must be before the sweep takes it.
	DefaultMaxAge = time.Hour

	// DefaultInterval is how often the background sweep runs.
	DefaultInterval = 30 * time.Minute
)

// Run tracks every temp artifact one pipeline run creates so they can all be
// deleted on any exit path. Safe for concurrent use; fetches inside a batch
// register from their own goroutines.
type Run struct {
	mu    sync.Mutex
	paths []string
}

// Track records a path for later cleanup. Call it the moment the file is
// created.
func (r *Run) Track(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

// Cleanup deletes every tracked artifact. Deletion failures are logged, not
// raised; cleanup must never mask the run's real outcome.
func (r *Run) Cleanup() {
	r.mu.Lock()
	paths := r.paths
	r.paths = nil
	r.mu.Unlock()

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("Failed to remove run artifact")
		}
	}
	if len(paths) > 0 {
		log.Debug().Int("count", len(paths)).Msg("Run artifacts reclaimed")
	}
}

// Sweeper removes orphaned temp files left behind by crashed runs.
type Sweeper struct {
	// Dir is the shared scratch directory to sweep.
	Dir string

	// Prefixes are the artifact name prefixes the sweep is allowed to touch.
	Prefixes []string

	// MaxAge is the minimum age of a file before it is considered orphaned.
	// Defaults to DefaultMaxAge.
	MaxAge time.Duration

	// Interval between sweeps. Defaults to DefaultInterval.
	Interval time.Duration
}

// Sweep runs one pass and returns how many files were removed.
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", s.Dir).Msg("Sweep failed to list scratch dir")
		return 0
	}

	maxAge := s.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !s.matches(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.Dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Sweep failed to remove orphan")
			continue
		}
		log.Info().Str("path", path).Msg("Removed orphaned temp artifact")
		removed++
	}
	return removed
}

// Start sweeps on the configured interval until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sweeper) matches(name string) bool {
	for _, p := range s.Prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

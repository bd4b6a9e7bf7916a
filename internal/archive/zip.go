// Package archive assembles fetched assets into a single zip file.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/fetch"
)

// Artifact describes a finished archive on local disk. It is consumed exactly
// once by the upload client and then reclaimed by the run's janitor.
type Artifact struct {
	Path       string
	Size       int64
	EntryCount int
}

// BuildError indicates a fetched asset could not be read back while writing
// the archive. This is fatal to the run: the run still owns the file, so a
// read failure means something outside the run removed it.
type BuildError struct {
	Entry string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("archive entry %q: %v", e.Entry, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Build writes one archive at path holding one entry per successful fetch
// result, in input order, named by the sanitized filename. Entries are written
// uncompressed: the sources are already compressed video, so archiving trades
// size for wall-clock speed. Content bytes are streamed from disk into the
// archive, never fully materialized in memory.
func Build(path string, results []fetch.Result) (Artifact, error) {
	f, err := os.Create(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	count := 0
	for _, r := range results {
		if !r.OK() {
			continue
		}
		name := asset.SafeFilename(r.Asset.Filename)
		if err := addEntry(zw, name, r.LocalPath); err != nil {
			return Artifact{}, err
		}
		count++
	}

	if err := zw.Close(); err != nil {
		return Artifact{}, fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return Artifact{}, fmt.Errorf("flush archive: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat archive: %w", err)
	}

	log.Debug().Str("path", path).Int("entries", count).Int64("size", info.Size()).Msg("Archive assembled")
	return Artifact{Path: path, Size: info.Size(), EntryCount: count}, nil
}

func addEntry(zw *zip.Writer, name, src string) error {
	log.Debug().Str("name", name).Msg("Adding to archive")

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: time.Now(),
	})
	if err != nil {
		return &BuildError{Entry: name, Err: err}
	}

	in, err := os.Open(src)
	if err != nil {
		return &BuildError{Entry: name, Err: err}
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return &BuildError{Entry: name, Err: err}
	}
	return nil
}

package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
	"github.com/mukapc-sys/ffmpeg-normalizer/internal/fetch"
)

func writeTempAsset(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	results := []fetch.Result{
		{
			Asset:     asset.Descriptor{Filename: "a b.mp4"},
			Index:     0,
			LocalPath: writeTempAsset(t, dir, "media_run_000", "first clip"),
		},
		{
			Asset: asset.Descriptor{Filename: "broken.mp4"},
			Index: 1,
			Err:   fetch.ErrTimeout,
		},
		{
			Asset:     asset.Descriptor{Filename: "c.mp4"},
			Index:     2,
			LocalPath: writeTempAsset(t, dir, "media_run_002", "second clip"),
		},
	}

	target := filepath.Join(dir, "zip_run.zip")
	art, err := Build(target, results)
	require.NoError(t, err)

	assert.Equal(t, target, art.Path)
	assert.Equal(t, 2, art.EntryCount)
	assert.Greater(t, art.Size, int64(0))

	r, err := zip.OpenReader(target)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 2)
	assert.Equal(t, "a_b.mp4", r.File[0].Name)
	assert.Equal(t, "c.mp4", r.File[1].Name)

	for i, want := range []string{"first clip", "second clip"} {
		assert.Equal(t, zip.Store, r.File[i].Method, "entries must be stored uncompressed")

		rc, err := r.File[i].Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, want, string(data), "entry bytes must match the source")
	}
}

func TestBuild_MissingSourceIsFatal(t *testing.T) {
	dir := t.TempDir()
	results := []fetch.Result{
		{
			Asset:     asset.Descriptor{Filename: "gone.mp4"},
			LocalPath: filepath.Join(dir, "does-not-exist"),
		},
	}

	_, err := Build(filepath.Join(dir, "zip_run.zip"), results)
	require.Error(t, err)

	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "gone.mp4", berr.Entry)
}

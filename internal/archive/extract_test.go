package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	writeZip(t, zipPath, map[string]string{
		"1.pdf": "pdf bytes",
		"2.png": "png bytes",
	})

	target := filepath.Join(dir, "work")
	files, err := Extract(zipPath, target)
	require.NoError(t, err)
	require.Len(t, files, 2)

	for _, f := range files {
		assert.Equal(t, target, filepath.Dir(f))
		_, err := os.Stat(f)
		assert.NoError(t, err)
	}
}

func TestExtractCreatesTargetDir(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	writeZip(t, zipPath, map[string]string{"doc.pdf": "x"})

	target := filepath.Join(dir, "a", "b", "c")
	_, err := Extract(zipPath, target)
	require.NoError(t, err)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExtractMissingZip(t *testing.T) {
	dir := t.TempDir()
	_, err := Extract(filepath.Join(dir, "nope.zip"), filepath.Join(dir, "work"))
	require.Error(t, err)
	assert.Equal(t, fault.ZipNotFound, fault.KindOf(err))
}

func TestExtractCorruptZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip at all"), 0o644))

	_, err := Extract(zipPath, filepath.Join(dir, "work"))
	require.Error(t, err)
	assert.Equal(t, fault.ZipCorrupt, fault.KindOf(err))
}

func TestIsEncrypted(t *testing.T) {
	h := &zip.FileHeader{Name: "secret.pdf"}
	assert.False(t, IsEncrypted(h))

	h.Flags |= 0x1
	assert.True(t, IsEncrypted(h))
}

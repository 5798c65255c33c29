package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "archive.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()

	writer := zip.NewWriter(out)
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return path
}

func TestExtract(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"algobattle.toml":       "[match]",
		"generator/Dockerfile":  "FROM scratch",
		"generator/src/main.py": "print()",
	})

	outDir := t.TempDir()
	require.NoError(t, NewZipExtractor().Extract(context.Background(), archive, outDir))

	config, err := os.ReadFile(filepath.Join(outDir, "algobattle.toml"))
	require.NoError(t, err)
	assert.Equal(t, "[match]", string(config))

	nested, err := os.ReadFile(filepath.Join(outDir, "generator", "src", "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print()", string(nested))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"../escape.txt": "outside",
	})

	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.Mkdir(outDir, 0o755))

	err := NewZipExtractor().Extract(context.Background(), archive, outDir)
	assert.Error(t, err, "entries outside the output directory must be rejected")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(outDir), "escape.txt"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestExtractMissingArchive(t *testing.T) {
	err := NewZipExtractor().Extract(context.Background(), "/does/not/exist.zip", t.TempDir())
	assert.Error(t, err)
}

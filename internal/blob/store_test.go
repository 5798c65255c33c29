package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaType(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"description.md", "text/markdown"},
		{"algobattle.toml", "application/toml"},
		{"pairsum.prob", "application/octet-stream"},
		{"result.json", "application/json"},
		{"program.zip", "application/zip"},
		{"mystery", "application/octet-stream"},
	}

	for _, test := range tests {
		t.Run(test.filename, func(t *testing.T) {
			mediaType := MediaType(test.filename)
			// the platform mime table may append a charset
			assert.Equal(t, test.expected, strings.Split(mediaType, ";")[0])
		})
	}
}

func TestNewFile(t *testing.T) {
	file := NewFile("/tmp/uploads/program.zip")

	assert.Equal(t, "program.zip", file.Filename, "stored name must not leak client paths")
	assert.NotZero(t, file.ID, "id is assigned before the row is inserted")
	assert.Equal(t, file.ID.String()+".zip", file.BlobName())
}

func TestStageApply(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	file := NewFile("logs.json")
	stage := store.NewStage()
	require.NoError(t, stage.Create(&file, strings.NewReader(`{"scores": {}}`)))

	_, err = os.Stat(store.Path(&file))
	assert.ErrorIs(t, err, os.ErrNotExist, "blob must not be visible before apply")

	require.NoError(t, stage.apply())

	content, err := store.Open(context.Background(), &file)
	require.NoError(t, err)
	defer content.Close()
	data, err := io.ReadAll(content)
	require.NoError(t, err)
	assert.Equal(t, `{"scores": {}}`, string(data))
}

func TestStageDiscard(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	file := NewFile("logs.json")
	stage := store.NewStage()
	require.NoError(t, stage.Create(&file, strings.NewReader("staged")))

	stage.discard()

	_, err = os.Stat(store.Path(&file))
	assert.ErrorIs(t, err, os.ErrNotExist)

	staged, err := os.ReadDir(filepath.Join(store.root, stagingDir))
	require.NoError(t, err)
	assert.Empty(t, staged, "discard must clean up the staging area")
}

func TestStageDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	file := NewFile("old.md")
	stage := store.NewStage()
	require.NoError(t, stage.Create(&file, strings.NewReader("v1")))
	require.NoError(t, stage.apply())

	replacement := store.NewStage()
	replacement.Delete(&file)

	_, err = os.Stat(store.Path(&file))
	assert.NoError(t, err, "blob stays readable until the stage is applied")

	require.NoError(t, replacement.apply())

	_, err = os.Stat(store.Path(&file))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// deleting an already absent blob is not an error
	again := store.NewStage()
	again.Delete(&file)
	assert.NoError(t, again.apply())
}

func TestCopyTo(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	file := NewFile("algobattle.toml")
	stage := store.NewStage()
	require.NoError(t, stage.Create(&file, strings.NewReader("[match]")))
	require.NoError(t, stage.apply())

	dst := filepath.Join(t.TempDir(), "algobattle.toml")
	require.NoError(t, store.CopyTo(context.Background(), &file, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "[match]", string(data))
}

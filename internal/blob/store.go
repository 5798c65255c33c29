// Package blob stores file contents on the local filesystem, named after
// the owning database row. Mutations go through a Stage so that blobs only
// appear or disappear once the matching database transaction commits.
package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/algobattle/algobattle-server/internal/models"
)

var tracer = otel.Tracer("github.com/algobattle/algobattle-server/internal/blob")

// mediaTypeOverrides wins over the platform mime table for extensions we
// care about serving consistently.
var mediaTypeOverrides = map[string]string{
	".md":   "text/markdown",
	".toml": "application/toml",
	".prob": "application/octet-stream",
}

// MediaType guesses the media type of a file from its extension.
func MediaType(filename string) string {
	ext := filepath.Ext(filename)
	if mediaType, ok := mediaTypeOverrides[ext]; ok {
		return mediaType
	}
	if mediaType := mime.TypeByExtension(ext); mediaType != "" {
		return mediaType
	}

	return "application/octet-stream"
}

// NewFile builds the metadata row for a fresh upload. The id is assigned
// here rather than by the database so the staged blob can be named before
// the row is inserted. The content itself is written through a Stage.
func NewFile(filename string) models.File {
	return models.File{
		Filename:  filepath.Base(filename),
		MediaType: MediaType(filename),
		Timestamp: time.Now(),
		Model:     models.Model{ID: uuid.New()},
	}
}

// Store is a directory of blobs keyed by models.File.BlobName.
type Store struct {
	root string
}

// NewStore opens the store rooted at root, creating it and its staging
// area if needed.
func NewStore(root string) (*Store, error) {
	err := os.MkdirAll(filepath.Join(root, stagingDir), 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store at %s: %w", root, err)
	}

	return &Store{root: root}, nil
}

// Path returns the on-disk location of a file's content.
func (s *Store) Path(file *models.File) string {
	return filepath.Join(s.root, file.BlobName())
}

// Open opens a file's content for reading.
func (s *Store) Open(ctx context.Context, file *models.File) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "Open")
	defer span.End()

	handle, err := os.Open(s.Path(file))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open blob")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "opened blob")
	return handle, nil
}

// CopyTo writes a file's content to dst, creating it with the file's
// original name when dst is a directory path ending in a separator.
func (s *Store) CopyTo(ctx context.Context, file *models.File, dst string) error {
	ctx, span := tracer.Start(ctx, "CopyTo")
	defer span.End()

	src, err := s.Open(ctx, file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to copy blob")
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to copy blob")
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to copy blob")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "copied blob")
	return nil
}

// FormFile drains a multipart upload into the stage and returns the
// metadata row to persist alongside it.
func FormFile(stage *Stage, header *multipart.FileHeader) (models.File, error) {
	file := NewFile(header.Filename)

	content, err := header.Open()
	if err != nil {
		return models.File{}, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}
	defer content.Close()

	err = stage.Create(&file, content)
	if err != nil {
		return models.File{}, err
	}

	return file, nil
}

// Package upload archives match artifacts to remote object storage. The
// local blob store stays the source of truth; archives exist so match logs
// survive the server's disk.
package upload

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/algobattle/algobattle-server/internal/hash"
)

var tracer = otel.Tracer(
	"github.com/algobattle/algobattle-server/internal/upload",
)

// Generic remote file persistence interface
type Uploader interface {
	// Create / Overwrite file contents by `key`
	Upload(ctx context.Context, reader io.ReadSeeker, length int64, key string) error
	// Check if a file exists (an optimization to skip re-uploading, not
	// authoritative existence)
	//
	// May always return false
	Exists(ctx context.Context, key string) (bool, error)
	// Identifier for where files are being uploaded to, for logging
	StoreIdentifier(ctx context.Context) (string, error)
}

// Hashed uploads a buffer where the `key` will be the hash of the contents
// of `reader` (CAS)
//
// Will:
// 1. seek to 0 so only pass in a buffer you want completely uploaded
// 2. not upload if a file with the same hash already exists
func Hashed(
	ctx context.Context,
	u Uploader,
	reader io.ReadSeeker,
	length int64,
) (string, error) {
	ctx, span := tracer.Start(ctx, "Hashed")
	defer span.End()

	_, err := reader.Seek(0, io.SeekStart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seek to start")
		return "", err
	}

	sum, err := hash.Reader(ctx, reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash reader")
		return "", err
	}

	exists, err := u.Exists(ctx, sum)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check if file exists")
		return "", err
	}

	if exists {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "found existing file")
		return sum, nil
	}

	_, err = reader.Seek(0, io.SeekStart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seek to start")
		return "", err
	}

	err = u.Upload(ctx, reader, length, sum)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload file")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded file by hash")
	return sum, nil
}

// HashedFile uploads a file by path where the `key` will be the hash of
// its contents (CAS)
func HashedFile(ctx context.Context, u Uploader, filePath string) (string, error) {
	ctx, span := tracer.Start(ctx, "HashedFile", trace.WithAttributes(
		attribute.String("filePath", filePath),
	))
	defer span.End()

	f, err := os.Open(filePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open file")
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat file")
		return "", err
	}

	sum, err := Hashed(ctx, u, f, stat.Size())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded file")
	return sum, nil
}

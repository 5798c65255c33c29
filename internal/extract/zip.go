// Package extract unpacks uploaded archives into match workspaces.
package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer(
	"github.com/algobattle/algobattle-server/internal/extract",
)

// Extract archive to a directory
type Extractor interface {
	Extract(ctx context.Context, archivePath string, outDir string) error
}

var _ Extractor = (*ZipExtractor)(nil)

// .zip extractor
type ZipExtractor struct{}

func NewZipExtractor() *ZipExtractor {
	return &ZipExtractor{}
}

func (*ZipExtractor) Extract(ctx context.Context, archivePath string, outDir string) error {
	_, span := tracer.Start(ctx, "ZipExtractor.Extract", trace.WithAttributes(
		attribute.String("archivePath", archivePath),
		attribute.String("outDir", outDir),
	))
	defer span.End()

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open archive")
		return err
	}
	defer reader.Close()

	for _, entry := range reader.File {
		err := extractEntry(entry, outDir)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to extract entry")
			return err
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "extracted zip")
	return nil
}

func extractEntry(entry *zip.File, outDir string) error {
	// reject entries that would land outside outDir
	dst := filepath.Join(outDir, filepath.FromSlash(entry.Name))
	if !strings.HasPrefix(dst, filepath.Clean(outDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry escapes output directory: %s", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(dst, 0o755)
	}

	err := os.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

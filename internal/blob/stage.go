package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/models"
)

const stagingDir = ".staging"

type opKind int

const (
	opCreate opKind = iota
	opDelete
)

type stagedOp struct {
	kind opKind
	// blob name under the store root
	name string
	// temp file holding the content of a create
	staged string
}

// Stage buffers blob mutations for one database transaction. Creates are
// written ahead into the staging area and only moved into place after the
// transaction commits; on rollback they are discarded and the store is
// untouched.
type Stage struct {
	store *Store
	ops   []stagedOp
}

// NewStage starts an empty stage. Most callers want Store.Transaction
// instead, which ties the stage's lifecycle to a gorm transaction.
func (s *Store) NewStage() *Stage {
	return &Stage{store: s}
}

// Create stages content for the given file row.
func (st *Stage) Create(file *models.File, content io.Reader) error {
	staged, err := os.CreateTemp(filepath.Join(st.store.root, stagingDir), "create-*")
	if err != nil {
		return fmt.Errorf("failed to stage blob %s: %w", file.BlobName(), err)
	}

	_, err = io.Copy(staged, content)
	closeErr := staged.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(staged.Name())
		return fmt.Errorf("failed to stage blob %s: %w", file.BlobName(), err)
	}

	st.ops = append(st.ops, stagedOp{kind: opCreate, name: file.BlobName(), staged: staged.Name()})
	return nil
}

// CreateFromPath stages the content of an existing file on disk.
func (st *Stage) CreateFromPath(file *models.File, path string) error {
	content, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to stage blob %s: %w", file.BlobName(), err)
	}
	defer content.Close()

	return st.Create(file, content)
}

// Delete stages removal of a file's content. The blob stays readable
// until the transaction commits.
func (st *Stage) Delete(file *models.File) {
	st.ops = append(st.ops, stagedOp{kind: opDelete, name: file.BlobName()})
}

func (st *Stage) apply() error {
	var errs []error
	for _, op := range st.ops {
		switch op.kind {
		case opCreate:
			err := os.Rename(op.staged, filepath.Join(st.store.root, op.name))
			if err != nil {
				errs = append(errs, err)
			}
		case opDelete:
			err := os.Remove(filepath.Join(st.store.root, op.name))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (st *Stage) discard() {
	for _, op := range st.ops {
		if op.kind == opCreate {
			_ = os.Remove(op.staged)
		}
	}
}

// Transaction runs fn inside a gorm transaction with a stage attached.
// Staged blob writes are applied only after the commit succeeds, so a
// rollback never leaves orphaned or missing blobs. A blob failure after
// commit cannot roll the database back anymore; it is logged and returned
// for the operator to reconcile.
func (s *Store) Transaction(
	ctx context.Context,
	db *gorm.DB,
	fn func(tx *gorm.DB, stage *Stage) error,
) error {
	ctx, span := tracer.Start(ctx, "Transaction")
	defer span.End()

	stage := s.NewStage()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, stage)
	})
	if err != nil {
		stage.discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction rolled back")
		return err
	}

	err = stage.apply()
	if err != nil {
		slog.ErrorContext(ctx, "blob stage failed after commit, store out of sync", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to apply blob stage")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "transaction committed")
	return nil
}

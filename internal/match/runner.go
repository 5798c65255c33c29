// Package match executes scheduled matches: it packages a workspace from
// the database and blob store, hands it to the battle engine and persists
// the outcome. A process-wide semaphore keeps executions strictly serial
// since the engine monopolizes docker while it runs.
package match

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/battle"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/extract"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/upload"
)

var tracer = otel.Tracer("github.com/algobattle/algobattle-server/internal/match")

const missingProgramMessage = "missing program"

type Runner struct {
	db        *gorm.DB
	store     *blob.Store
	engine    battle.Engine
	extractor extract.Extractor
	// optional off-host archive for match logs
	archiver upload.Uploader
	sem      *semaphore.Weighted
}

func NewRunner(
	db *gorm.DB,
	store *blob.Store,
	engine battle.Engine,
	extractor extract.Extractor,
	archiver upload.Uploader,
) *Runner {
	return &Runner{
		db:        db,
		store:     store,
		engine:    engine,
		extractor: extractor,
		archiver:  archiver,
		sem:       semaphore.NewWeighted(1),
	}
}

// RunScheduled executes one scheduled match end to end. The result row is
// committed in `running` before the engine starts, so observers can see
// the match is in flight; it is finalized to `complete` or `failed`
// exactly once and the schedule row is deleted either way.
func (r *Runner) RunScheduled(ctx context.Context, scheduled *models.ScheduledMatch) error {
	ctx, span := tracer.Start(ctx, "Runner.RunScheduled", trace.WithAttributes(
		attribute.String("scheduledMatchID", scheduled.ID.String()),
	))
	defer span.End()

	err := r.sem.Acquire(ctx, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire match slot")
		return err
	}
	defer r.sem.Release(1)

	ws, err := r.packageMatch(ctx, scheduled)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to package match")
		return fmt.Errorf("failed to package match %s: %w", scheduled.ID, err)
	}
	defer ws.Close()

	result, err := r.openResult(ctx, scheduled, ws.participants)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open match result")
		return fmt.Errorf("failed to open result for match %s: %w", scheduled.ID, err)
	}

	report, err := r.execute(ctx, ws)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine failed")
		if failErr := r.failResult(ctx, result, scheduled); failErr != nil {
			return fmt.Errorf("failed to record engine failure: %w", failErr)
		}
		return fmt.Errorf("engine failed for match %s: %w", scheduled.ID, err)
	}

	for _, name := range ws.excluded {
		report.ExcludeTeam(name, missingProgramMessage)
	}

	err = r.finalize(ctx, result, scheduled, ws, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to finalize match")
		return fmt.Errorf("failed to finalize match %s: %w", scheduled.ID, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ran scheduled match")
	return nil
}

func (r *Runner) execute(ctx context.Context, ws *workspace) (*battle.Report, error) {
	ctx, span := tracer.Start(ctx, "Runner.execute")
	defer span.End()

	err := r.engine.InstallDependencies(ctx, ws.dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to install problem dependencies")
		return nil, err
	}

	report, err := r.engine.Run(ctx, ws.dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine run failed")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "executed match")
	return report, nil
}

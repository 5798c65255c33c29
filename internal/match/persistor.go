package match

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/battle"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/types"
	"github.com/algobattle/algobattle-server/internal/upload"
)

const logsFilename = "result.json"

// openResult commits the result row in `running` before the engine
// starts so the match is observable while it is in flight.
func (r *Runner) openResult(
	ctx context.Context,
	scheduled *models.ScheduledMatch,
	participants []models.ResultParticipant,
) (*models.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "Runner.openResult")
	defer span.End()

	result := models.MatchResult{
		Status:       types.MatchStatusRunning,
		Time:         time.Now(),
		ProblemID:    scheduled.ProblemID,
		Participants: participants,
	}

	err := r.db.WithContext(ctx).Create(&result).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create match result")
		return nil, err
	}

	span.AddEvent("opened", trace.WithAttributes(
		attribute.String("matchResultID", result.ID.String()),
	))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "opened match result")
	return &result, nil
}

// finalize completes the result in one transaction: per-team points, the
// logs blob and the removal of the schedule row. The logs blob only lands
// on disk once the commit succeeds.
func (r *Runner) finalize(
	ctx context.Context,
	result *models.MatchResult,
	scheduled *models.ScheduledMatch,
	ws *workspace,
	report *battle.Report,
) error {
	ctx, span := tracer.Start(ctx, "Runner.finalize", trace.WithAttributes(
		attribute.String("matchResultID", result.ID.String()),
	))
	defer span.End()

	points := report.CalculatePoints(scheduled.Points)

	logsData, err := report.MarshalLogs()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize match log")
		return err
	}

	logs := blob.NewFile(logsFilename)
	err = r.store.Transaction(ctx, r.db, func(tx *gorm.DB, stage *blob.Stage) error {
		err := stage.Create(&logs, bytes.NewReader(logsData))
		if err != nil {
			return err
		}
		err = tx.Create(&logs).Error
		if err != nil {
			return err
		}

		for _, participant := range result.Participants {
			err = tx.Model(&models.ResultParticipant{}).
				Where("match_id = ? AND team_id = ?", result.ID, participant.TeamID).
				Update("points", points[ws.teamNames[participant.TeamID]]).Error
			if err != nil {
				return err
			}
		}

		err = tx.Model(result).
			Updates(map[string]any{
				"status":  types.MatchStatusComplete,
				"logs_id": logs.ID,
			}).Error
		if err != nil {
			return err
		}

		return tx.Delete(scheduled).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to finalize match result")
		return err
	}

	r.archiveLogs(ctx, &logs)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "finalized match result")
	return nil
}

// failResult marks the result failed and consumes the schedule row so a
// crashing engine cannot wedge the sweep.
func (r *Runner) failResult(
	ctx context.Context,
	result *models.MatchResult,
	scheduled *models.ScheduledMatch,
) error {
	ctx, span := tracer.Start(ctx, "Runner.failResult", trace.WithAttributes(
		attribute.String("matchResultID", result.ID.String()),
	))
	defer span.End()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(result).Update("status", types.MatchStatusFailed).Error
		if err != nil {
			return err
		}

		return tx.Delete(scheduled).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record match failure")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "recorded match failure")
	return nil
}

// archiveLogs copies the logs blob to remote storage when an archiver is
// configured. Best effort; the local blob is authoritative.
func (r *Runner) archiveLogs(ctx context.Context, logs *models.File) {
	if r.archiver == nil {
		return
	}

	key, err := upload.HashedFile(ctx, r.archiver, r.store.Path(logs))
	if err != nil {
		slog.WarnContext(ctx, "failed to archive match logs", "error", err, "fileID", logs.ID)
		return
	}

	slog.InfoContext(ctx, "archived match logs", "key", key, "fileID", logs.ID)
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/logger"
	"github.com/algobattle/algobattle-server/internal/models"
)

type scheduleMatchArgs struct {
	Name      string    `form:"name"`
	ProblemID uuid.UUID `form:"problem_id" validate:"required"`
	Time      time.Time `form:"time"       validate:"required"`
	Points    *float64  `form:"points"`
}

func (h *Handler) ScheduleMatch(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ScheduleMatch")
	defer span.End()

	var args scheduleMatchArgs
	if err := c.Bind(&args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bind args")
		return validationFailed(c, err)
	}
	if err := c.Validate(&args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to validate args")
		return validationFailed(c, err)
	}

	scheduled := models.ScheduledMatch{
		Name:      args.Name,
		ProblemID: args.ProblemID,
		Time:      args.Time,
	}
	if args.Points != nil {
		scheduled.Points = *args.Points
	}

	err := h.DB.WithContext(ctx).Create(&scheduled).Error
	if err != nil {
		span.SetStatus(codes.Error, "failed to schedule match")
		return dbError(span, err, "", "")
	}

	span.SetAttributes(attribute.String("scheduledMatch.id", scheduled.ID.String()))

	// a match scheduled in the past runs right away instead of waiting for
	// the next sweep
	if !scheduled.Time.After(time.Now()) {
		h.taskRunner.Run(ctx, func(taskCtx context.Context) {
			err := h.runner.RunScheduled(taskCtx, &scheduled)
			if err != nil {
				logger.Logger.ErrorContext(taskCtx, "immediate match run failed", "error", err)
			}
		})
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "scheduled match")
	return c.JSON(http.StatusCreated, scheduled)
}

type editScheduledMatchArgs struct {
	Name   *string    `form:"name"`
	Time   *time.Time `form:"time"`
	Points *float64   `form:"points"`
}

func (h *Handler) EditScheduledMatch(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "EditScheduledMatch")
	defer span.End()

	scheduled, ok := c.Get("scheduledMatch").(*models.ScheduledMatch)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "no scheduled match on context")
		return response.InternalServerError
	}

	var args editScheduledMatchArgs
	if err := c.Bind(&args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bind args")
		return validationFailed(c, err)
	}

	updates := map[string]any{}
	if args.Name != nil {
		updates["name"] = *args.Name
	}
	if args.Time != nil {
		updates["time"] = *args.Time
	}
	if args.Points != nil {
		updates["points"] = *args.Points
	}

	if len(updates) > 0 {
		err := h.DB.WithContext(ctx).Model(scheduled).Updates(updates).Error
		if err != nil {
			span.SetStatus(codes.Error, "failed to edit scheduled match")
			return dbError(span, err, "", "")
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "edited scheduled match")
	return c.JSON(http.StatusOK, scheduled)
}

func (h *Handler) ListScheduledMatches(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ListScheduledMatches")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	query := h.DB.WithContext(ctx).Preload("Problem").Order("time")
	if !user.IsAdmin {
		query = query.Where(
			"problem_id IN (SELECT id FROM problems WHERE start IS NULL OR start <= ?)",
			time.Now(),
		)
	}

	var scheduled []models.ScheduledMatch
	err = query.Find(&scheduled).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list scheduled matches")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "listed scheduled matches")
	return c.JSON(http.StatusOK, scheduled)
}

func (h *Handler) DeleteScheduledMatch(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "DeleteScheduledMatch")
	defer span.End()

	scheduled, ok := c.Get("scheduledMatch").(*models.ScheduledMatch)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "no scheduled match on context")
		return response.InternalServerError
	}

	err := h.DB.WithContext(ctx).Delete(scheduled).Error
	if err != nil {
		span.SetStatus(codes.Error, "failed to delete scheduled match")
		return dbError(span, err, "", "")
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "deleted scheduled match")
	return c.NoContent(http.StatusOK)
}

// RunScheduledMatch kicks off a match immediately instead of waiting for
// the sweeper. Execution happens in the background; the runner's semaphore
// still guarantees only one match runs at a time.
func (h *Handler) RunScheduledMatch(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RunScheduledMatch")
	defer span.End()

	scheduled, ok := c.Get("scheduledMatch").(*models.ScheduledMatch)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "no scheduled match on context")
		return response.InternalServerError
	}

	span.SetAttributes(attribute.String("scheduledMatch.id", scheduled.ID.String()))

	h.taskRunner.Run(ctx, func(taskCtx context.Context) {
		err := h.runner.RunScheduled(taskCtx, scheduled)
		if err != nil {
			logger.Logger.ErrorContext(taskCtx, "immediate match run failed", "error", err)
		}
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "dispatched match")
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) ListMatchResults(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ListMatchResults")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	var results []models.MatchResult
	err = h.DB.WithContext(ctx).
		Preload("Participants").
		Preload("Logs").
		Scopes(models.MatchResultVisibleScope(user)).
		Order("time DESC").
		Find(&results).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list match results")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "listed match results")
	return c.JSON(http.StatusOK, results)
}

// DeleteMatchResult removes a result together with its participants and
// the logs blob. The blob only disappears once the delete commits.
func (h *Handler) DeleteMatchResult(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "DeleteMatchResult")
	defer span.End()

	result, ok := c.Get("matchResult").(*models.MatchResult)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "no match result on context")
		return response.InternalServerError
	}

	err := h.store.Transaction(ctx, h.DB, func(tx *gorm.DB, stage *blob.Stage) error {
		err := tx.Where("match_id = ?", result.ID).Delete(&models.ResultParticipant{}).Error
		if err != nil {
			return err
		}

		err = tx.Delete(result).Error
		if err != nil {
			return err
		}

		if result.LogsID == nil {
			return nil
		}

		logs, err := models.ByID[models.File](ctx, tx, *result.LogsID)
		if err != nil {
			return err
		}
		stage.Delete(logs)

		return tx.Delete(logs).Error
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to delete match result")
		return dbError(span, err, "", "")
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "deleted match result")
	return c.NoContent(http.StatusOK)
}

package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/models"
)

// GetDocumentation returns the selected team's write-up for a problem.
func (h *Handler) GetDocumentation(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetDocumentation")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}
	problem, ok := c.Get("problem").(*models.Problem)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "no problem on context")
		return response.InternalServerError
	}
	if user.SelectedTeamID == nil {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "user has no selected team")
		return response.ForbiddenError
	}

	var documentation models.Documentation
	err = h.DB.WithContext(ctx).
		Preload("File").
		Scopes(models.DocumentationVisibleScope(user)).
		Where("team_id = ? AND problem_id = ?", *user.SelectedTeamID, problem.ID).
		First(&documentation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "no documentation")
			return response.EntityNotFoundError
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load documentation")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "returned documentation")
	return c.JSON(http.StatusOK, documentation)
}

// PutDocumentation uploads or replaces the selected team's write-up.
// Replacing deletes the previous file's blob in the same transaction.
func (h *Handler) PutDocumentation(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "PutDocumentation")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}
	problem, ok := c.Get("problem").(*models.Problem)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "no problem on context")
		return response.InternalServerError
	}
	if user.SelectedTeamID == nil {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "user has no selected team")
		return response.ForbiddenError
	}
	teamID := *user.SelectedTeamID
	if !user.IsAdmin && !user.MemberOf(teamID) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "user is not a member of the team")
		return response.ForbiddenError
	}

	now := servermiddleware.RequestTime(c, "time")
	if !user.IsAdmin && problem.End.Valid && problem.End.V.Before(now) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "problem has ended")
		return response.ForbiddenError
	}

	upload, err := c.FormFile("file")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing documentation file")
		return validationFailed(c, err)
	}

	span.SetAttributes(
		attribute.String("team.id", teamID.String()),
		attribute.String("problem.id", problem.ID.String()),
	)

	var documentation models.Documentation
	err = h.store.Transaction(ctx, h.DB, func(tx *gorm.DB, stage *blob.Stage) error {
		file, err := blob.FormFile(stage, upload)
		if err != nil {
			return err
		}
		if err := tx.Create(&file).Error; err != nil {
			return err
		}

		var existing models.Documentation
		err = tx.Preload("File").
			Where("team_id = ? AND problem_id = ?", teamID, problem.ID).
			First(&existing).Error
		switch {
		case err == nil:
			stage.Delete(&existing.File)
			oldFileID := existing.FileID
			existing.FileID = file.ID
			existing.File = file
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.File{}, oldFileID).Error; err != nil {
				return err
			}
			documentation = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			documentation = models.Documentation{
				TeamID:    teamID,
				ProblemID: problem.ID,
				FileID:    file.ID,
				File:      file,
			}
			return tx.Create(&documentation).Error
		default:
			return err
		}
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to store documentation")
		return dbError(span, err, "", "")
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "stored documentation")
	return c.JSON(http.StatusOK, documentation)
}

package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/types"
)

type uploadProgramArgs struct {
	Name      string            `form:"name"`
	ProblemID uuid.UUID         `form:"problem_id" validate:"required"`
	Role      types.ProgramRole `form:"role"       validate:"required"`
}

// UploadProgram stores a new generator or solver for the user's selected
// team. Uploads are only accepted while the problem is open; the match
// packager will pick the latest upload per team and role.
func (h *Handler) UploadProgram(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UploadProgram")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	var args uploadProgramArgs
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
	if !args.Role.Valid() {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "invalid role")
		return c.JSON(http.StatusUnprocessableEntity, types.StringError("invalid role"))
	}

	if user.SelectedTeamID == nil {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "user has no selected team")
		return response.ForbiddenError
	}
	teamID := *user.SelectedTeamID

	span.SetAttributes(
		attribute.String("team.id", teamID.String()),
		attribute.String("problem.id", args.ProblemID.String()),
		attribute.String("role", string(args.Role)),
	)

	problem, err := models.ByID[models.Problem](ctx, h.DB, args.ProblemID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "problem not found")
			return response.EntityNotFoundError
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load problem")
		return response.InternalServerError
	}
	if !problem.Visible(user) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "problem not visible to user")
		return response.EntityNotFoundError
	}

	now := servermiddleware.RequestTime(c, "time")
	if !problem.Open(now) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "problem is closed for uploads")
		return response.ForbiddenError
	}

	archive, err := c.FormFile("file")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing program archive")
		return validationFailed(c, err)
	}

	program := models.Program{
		Name:         args.Name,
		TeamID:       teamID,
		Role:         args.Role,
		ProblemID:    problem.ID,
		CreationTime: now,
		UserEditable: true,
	}
	err = h.store.Transaction(ctx, h.DB, func(tx *gorm.DB, stage *blob.Stage) error {
		program.File, err = blob.FormFile(stage, archive)
		if err != nil {
			return err
		}
		program.FileID = program.File.ID

		return tx.Create(&program).Error
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to store program")
		return dbError(span, err, "", "")
	}

	span.SetAttributes(attribute.String("program.id", program.ID.String()))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded program")
	return c.JSON(http.StatusCreated, program)
}

func (h *Handler) ListPrograms(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ListPrograms")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	var programs []models.Program
	err = h.DB.WithContext(ctx).
		Preload("File").
		Scopes(models.ProgramVisibleScope(user)).
		Order("creation_time DESC, id DESC").
		Find(&programs).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list programs")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "listed programs")
	return c.JSON(http.StatusOK, programs)
}

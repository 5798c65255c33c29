package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/types"
)

type createProblemArgs struct {
	Name             string     `form:"name"              validate:"required"`
	TournamentID     uuid.UUID  `form:"tournament_id"     validate:"required"`
	Start            *time.Time `form:"start"`
	End              *time.Time `form:"end"`
	ShortDescription string     `form:"short_description"`
	ProblemSchema    string     `form:"problem_schema"`
	SolutionSchema   string     `form:"solution_schema"`
	Colour           string     `form:"colour"`
}

// compileSchema rejects schema uploads that are not valid JSON schemas.
// An empty string means the problem declares no schema.
func compileSchema(schemaName, schema string) error {
	if schema == "" {
		return nil
	}

	_, err := jsonschema.CompileString(schemaName, schema)
	return err
}

// CreateProblem creates a problem from a multipart upload: the zipped
// problem archive, its match config and optional description and image
// files. Blobs and the database row commit or roll back together.
func (h *Handler) CreateProblem(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CreateProblem")
	defer span.End()

	var args createProblemArgs
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

	if err := compileSchema("problem_schema.json", args.ProblemSchema); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid problem schema")
		return c.JSON(http.StatusUnprocessableEntity, types.StringError("invalid problem schema"))
	}
	if err := compileSchema("solution_schema.json", args.SolutionSchema); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid solution schema")
		return c.JSON(http.StatusUnprocessableEntity, types.StringError("invalid solution schema"))
	}

	archive, err := c.FormFile("file")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing problem archive")
		return validationFailed(c, err)
	}
	configUpload, err := c.FormFile("config")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing match config")
		return validationFailed(c, err)
	}

	problem := models.Problem{
		Name:             args.Name,
		TournamentID:     args.TournamentID,
		Start:            models.NewNull(args.Start),
		End:              models.NewNull(args.End),
		ShortDescription: args.ShortDescription,
		ProblemSchema:    args.ProblemSchema,
		SolutionSchema:   args.SolutionSchema,
	}
	if args.Colour != "" {
		problem.Colour = args.Colour
	}

	err = h.store.Transaction(ctx, h.DB, func(tx *gorm.DB, stage *blob.Stage) error {
		problem.File, err = blob.FormFile(stage, archive)
		if err != nil {
			return err
		}
		problem.FileID = problem.File.ID

		problem.Config, err = blob.FormFile(stage, configUpload)
		if err != nil {
			return err
		}
		problem.ConfigID = problem.Config.ID

		if description, err := c.FormFile("description"); err == nil {
			file, err := blob.FormFile(stage, description)
			if err != nil {
				return err
			}
			problem.Description = &file
			problem.DescriptionID = &file.ID
		}
		if image, err := c.FormFile("image"); err == nil {
			file, err := blob.FormFile(stage, image)
			if err != nil {
				return err
			}
			problem.Image = &file
			problem.ImageID = &file.ID
		}

		return tx.Create(&problem).Error
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to create problem")
		return dbError(span, err, "name", args.Name)
	}

	span.SetAttributes(attribute.String("problem.id", problem.ID.String()))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created problem")
	return c.JSON(http.StatusCreated, problem)
}

func (h *Handler) ListProblems(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ListProblems")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	var problems []models.Problem
	err = h.DB.WithContext(ctx).
		Scopes(models.ProblemVisibleScope(user)).
		Order("name").
		Find(&problems).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list problems")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "listed problems")
	return c.JSON(http.StatusOK, problems)
}

func (h *Handler) GetProblem(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "GetProblem")
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

	// hidden problems look nonexistent
	if !problem.Visible(user) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "problem not visible to user")
		return response.EntityNotFoundError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "returned problem")
	return c.JSON(http.StatusOK, problem)
}

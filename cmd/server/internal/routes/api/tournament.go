package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/codes"

	"github.com/algobattle/algobattle-server/internal/models"
)

type createTournamentArgs struct {
	Name string `form:"name" validate:"required"`
}

func (h *Handler) CreateTournament(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CreateTournament")
	defer span.End()

	var args createTournamentArgs
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

	tournament := models.Tournament{Name: args.Name}
	err := h.DB.WithContext(ctx).Create(&tournament).Error
	if err != nil {
		span.SetStatus(codes.Error, "failed to create tournament")
		return dbError(span, err, "name", args.Name)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created tournament")
	return c.JSON(http.StatusCreated, tournament)
}

type createTeamArgs struct {
	Name         string      `form:"name"          validate:"required"`
	TournamentID uuid.UUID   `form:"tournament_id" validate:"required"`
	MemberIDs    []uuid.UUID `form:"member_ids"`
}

func (h *Handler) CreateTeam(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CreateTeam")
	defer span.End()

	var args createTeamArgs
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

	var members []models.User
	if len(args.MemberIDs) > 0 {
		err := h.DB.WithContext(ctx).Find(&members, args.MemberIDs).Error
		if err != nil {
			span.SetStatus(codes.Error, "failed to load members")
			return dbError(span, err, "", "")
		}
	}

	team := models.Team{
		Name:         args.Name,
		TournamentID: args.TournamentID,
		Members:      members,
	}
	err := h.DB.WithContext(ctx).Create(&team).Error
	if err != nil {
		span.SetStatus(codes.Error, "failed to create team")
		return dbError(span, err, "name", args.Name)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created team")
	return c.JSON(http.StatusCreated, team)
}

package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/codes"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
)

func (h *Handler) SelfUser(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "SelfUser")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "returned user")
	return c.JSON(http.StatusOK, user)
}

// Logout rotates the user's token id which invalidates every session
// token they hold, not just the one used for this request.
func (h *Handler) Logout(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Logout")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	err = user.RotateToken(ctx, h.DB)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to rotate token id")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "logged user out")
	return c.NoContent(http.StatusOK)
}

type updateSettingsArgs struct {
	SelectedTeamID       *uuid.UUID `form:"selected_team_id"`
	SelectedTournamentID *uuid.UUID `form:"selected_tournament_id"`
}

// UpdateSettings changes which team and tournament the user acts as.
// Users may only select teams they are a member of.
func (h *Handler) UpdateSettings(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UpdateSettings")
	defer span.End()

	user, err := servermiddleware.RequestUser(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no user on context")
		return err
	}

	var args updateSettingsArgs
	if err := c.Bind(&args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bind args")
		return validationFailed(c, err)
	}

	if args.SelectedTeamID != nil && !user.MemberOf(*args.SelectedTeamID) {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "user is not a member of the team")
		return response.ForbiddenError
	}

	updates := map[string]any{}
	if args.SelectedTeamID != nil {
		updates["selected_team_id"] = *args.SelectedTeamID
	}
	if args.SelectedTournamentID != nil {
		updates["selected_tournament_id"] = *args.SelectedTournamentID
	}
	if len(updates) > 0 {
		err = h.DB.WithContext(ctx).Model(user).Updates(updates).Error
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to update settings")
			return dbError(span, err, "", "")
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated settings")
	return c.JSON(http.StatusOK, user)
}

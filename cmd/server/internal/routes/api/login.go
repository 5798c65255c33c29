package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/token"
)

type requestLoginArgs struct {
	Email string `form:"email" validate:"required,email"`
}

// RequestLogin mails a login link to the address if a user with it exists.
// The response is 200 either way so the endpoint cannot be used to probe
// which emails are registered.
func (h *Handler) RequestLogin(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RequestLogin")
	defer span.End()

	var args requestLoginArgs
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

	user, err := models.UserByEmail(ctx, h.DB, args.Email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to look up user")
		return response.InternalServerError
	}

	if user != nil {
		now := servermiddleware.RequestTime(c, "time")
		loginToken, err := token.NewLoginToken(h.tokenKey, user.Email, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to create login token")
			return response.InternalServerError
		}

		err = h.mailer.SendLoginLink(ctx, user.Email, loginToken)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to send login link")
			return response.InternalServerError
		}

		span.AddEvent("sent_login_link")
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "handled login request")
	return c.NoContent(http.StatusOK)
}

type completeLoginArgs struct {
	Token string `form:"token" validate:"required"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// CompleteLogin exchanges an emailed login token for a session token.
func (h *Handler) CompleteLogin(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CompleteLogin")
	defer span.End()

	var args completeLoginArgs
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

	email, err := token.ParseLoginToken(h.tokenKey, args.Token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "invalid login token")
		return response.UnauthorizedError
	}

	user, err := models.UserByEmail(ctx, h.DB, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to look up user")
		return response.InternalServerError
	}
	if user == nil {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "login token for unknown user")
		return response.UnauthorizedError
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	now := servermiddleware.RequestTime(c, "time")
	sessionToken, err := token.NewUserToken(h.tokenKey, user, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create session token")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "logged user in")
	return c.JSON(http.StatusOK, sessionResponse{Token: sessionToken, User: *user})
}

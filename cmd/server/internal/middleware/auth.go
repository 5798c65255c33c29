package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/token"
)

// Header carrying the session token. The frontend stores the token itself
// and sends it on every request; there are no cookies.
const TokenHeader = "X-User-Token"

// Context key the authenticated user is stored under.
const UserContextKey = "user"

// UserToken authenticates the request from the session token header and
// stores the loaded user in the request context. Requests without a valid
// token are rejected with 401.
func (h *Handler) UserToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "UserToken")
			defer span.End()

			tokenString := c.Request().Header.Get(TokenHeader)
			if tokenString == "" {
				span.RecordError(nil)
				span.SetStatus(codes.Ok, "missing session token")
				return response.UnauthorizedError
			}

			user, err := token.ParseUserToken(ctx, h.DB, h.TokenKey, tokenString)
			if err != nil {
				span.RecordError(err)
				if errors.Is(err, token.ErrInvalidToken) {
					span.SetStatus(codes.Ok, "invalid session token")
					return response.UnauthorizedError
				}
				span.SetStatus(codes.Error, "failed to parse session token")
				return response.InternalServerError
			}

			span.SetAttributes(attribute.String("user.id", user.ID.String()))
			c.Set(UserContextKey, user)

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "authenticated user")
			return next(c)
		}
	}
}

// RequireAdmin rejects requests whose authenticated user is not an admin.
// Must run after UserToken.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, span := tracer.Start(c.Request().Context(), "RequireAdmin")
			defer span.End()

			user, ok := c.Get(UserContextKey).(*models.User)
			if !ok {
				span.RecordError(nil)
				span.SetStatus(codes.Error, "no user on context")
				return response.UnauthorizedError
			}
			if !user.IsAdmin {
				span.RecordError(nil)
				span.SetStatus(codes.Ok, "user is not an admin")
				return response.ForbiddenError
			}

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "user is an admin")
			return next(c)
		}
	}
}

// RequestUser pulls the authenticated user back out of the context.
func RequestUser(c echo.Context) (*models.User, error) {
	user, ok := c.Get(UserContextKey).(*models.User)
	if !ok {
		return nil, response.UnauthorizedError
	}

	return user, nil
}

package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/algobattle/algobattle-server/internal/types"
)

var (
	InternalServerError = echo.NewHTTPError(
		http.StatusInternalServerError,
		types.StringError("something went wrong"),
	)
	// Lookups of nonexistent entities are client errors, the id came from
	// the client in the first place.
	EntityNotFoundError = echo.NewHTTPError(
		http.StatusBadRequest,
		types.StringError("entity not found"),
	)
	UnauthorizedError = echo.NewHTTPError(
		http.StatusUnauthorized,
		types.StringError("unauthorized"),
	)
	ForbiddenError = echo.NewHTTPError(
		http.StatusForbidden,
		types.StringError("forbidden"),
	)
)

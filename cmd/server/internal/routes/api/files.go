package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/internal/models"
)

// GetFile streams a stored file's content with its original name and
// media type.
func (h *Handler) GetFile(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetFile")
	defer span.End()

	file, ok := c.Get("file").(*models.File)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Error, "no file on context")
		return response.InternalServerError
	}

	span.SetAttributes(
		attribute.String("file.id", file.ID.String()),
		attribute.String("file.mediaType", file.MediaType),
	)

	content, err := h.store.Open(ctx, file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open blob")
		return response.InternalServerError
	}
	defer content.Close()

	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf("inline; filename=%q", file.Filename),
	)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "served file")
	return c.Stream(http.StatusOK, file.MediaType, content)
}

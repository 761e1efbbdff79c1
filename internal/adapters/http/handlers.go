package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tripboard/core/internal/adapters/github"
	"github.com/tripboard/core/internal/domain/entities"
)

// SubjectContextKey holds the authenticated token subject
const SubjectContextKey = "subject"

// storeError maps store failures onto HTTP errors
func storeError(err error) *echo.HTTPError {
	var remoteErr *github.RemoteError

	switch {
	case errors.Is(err, entities.ErrInvalidBackupName):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid backup filename")
	case errors.Is(err, entities.ErrBackupNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Backup not found")
	case errors.Is(err, entities.ErrDocumentCorrupted):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Stored content is not a valid document")
	case errors.Is(err, entities.ErrRevisionConflict):
		return echo.NewHTTPError(http.StatusConflict, "Document was changed remotely, reload and try again")
	case errors.As(err, &remoteErr):
		return echo.NewHTTPError(http.StatusBadGateway, map[string]interface{}{
			"message":       "Remote store rejected the request",
			"remote_status": remoteErr.StatusCode,
			"remote_error":  remoteErr.Message,
		}).SetInternal(err)
	}

	return echo.NewHTTPError(http.StatusInternalServerError, "Document store error").SetInternal(err)
}

func getSubjectFromContext(c echo.Context) string {
	subject, ok := c.Get(SubjectContextKey).(string)
	if !ok {
		return ""
	}
	return subject
}

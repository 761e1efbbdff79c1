package http

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/ports"
)

// BackupHandler handles backup requests
type BackupHandler struct {
	documentService ports.DocumentService
	logger          *logger.Logger
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(documentService ports.DocumentService, logger *logger.Logger) *BackupHandler {
	return &BackupHandler{
		documentService: documentService,
		logger:          logger,
	}
}

// ListBackups godoc
// @Summary List backups
// @Description List local document backups, newest first
// @Tags backups
// @Produce json
// @Success 200 {object} ports.BackupListResponse
// @Failure 500 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /backups [get]
func (h *BackupHandler) ListBackups(c echo.Context) error {
	backups, err := h.documentService.ListBackups(c.Request().Context())
	if err != nil {
		h.logger.Errorw("List backups failed", "error", err)
		return storeError(err)
	}

	return c.JSON(http.StatusOK, ports.BackupListResponse{
		Data:  backups,
		Total: len(backups),
	})
}

// RestoreBackup godoc
// @Summary Restore a backup
// @Description Replace the document with a backup. The current document is backed up first.
// @Tags backups
// @Produce json
// @Param filename path string true "Backup filename"
// @Success 200 {object} ports.RestoreBackupResponse
// @Failure 400 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Failure 502 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /backups/{filename}/restore [post]
func (h *BackupHandler) RestoreBackup(c echo.Context) error {
	filename := c.Param("filename")
	if filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Backup filename is required")
	}

	doc, err := h.documentService.RestoreBackup(c.Request().Context(), filename)
	if err != nil {
		h.logger.Errorw("Restore backup failed", "error", err, "backup", filename, "subject", getSubjectFromContext(c))
		return storeError(err)
	}

	return c.JSON(http.StatusOK, ports.RestoreBackupResponse{
		Message:  fmt.Sprintf("Restored %s", filename),
		Filename: filename,
		Document: doc,
	})
}

package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/ports"
)

// DocumentHandler handles trip document requests
type DocumentHandler struct {
	documentService ports.DocumentService
	logger          *logger.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService ports.DocumentService, logger *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger,
	}
}

// GetDocument godoc
// @Summary Get the trip document
// @Description Load the current trip document. Falls back to the local file, then the latest backup, then an empty document.
// @Tags document
// @Produce json
// @Success 200 {object} entities.Document
// @Security BearerAuth
// @Router /document [get]
func (h *DocumentHandler) GetDocument(c echo.Context) error {
	doc := h.documentService.LoadDocument(c.Request().Context())
	return c.JSON(http.StatusOK, doc)
}

// SaveDocument godoc
// @Summary Save the trip document
// @Description Replace the whole trip document. last_updated is set by the server.
// @Tags document
// @Accept json
// @Produce json
// @Param request body ports.SaveDocumentRequest true "Document and change reason"
// @Success 200 {object} ports.SaveDocumentResponse
// @Failure 400 {object} ports.ErrorResponse
// @Failure 409 {object} ports.ErrorResponse
// @Failure 502 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /document [put]
func (h *DocumentHandler) SaveDocument(c echo.Context) error {
	var req ports.SaveDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.documentService.SaveDocument(c.Request().Context(), req.Document, req.ChangeReason)
	if err != nil {
		h.logger.Errorw("Save document failed", "error", err, "subject", getSubjectFromContext(c))
		return storeError(err)
	}

	return c.JSON(http.StatusOK, ports.SaveDocumentResponse{
		Message: "Document saved successfully",
		Result:  result,
	})
}

// GetStatus godoc
// @Summary Store status
// @Description Backend in use, file locations and backup state
// @Tags document
// @Produce json
// @Success 200 {object} entities.StoreStatus
// @Security BearerAuth
// @Router /status [get]
func (h *DocumentHandler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.documentService.Status(c.Request().Context()))
}

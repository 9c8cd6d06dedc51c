package handler

import (
	"fmt"
	"net/http"

	"asset-pipeline/internal/auth"

	"github.com/labstack/echo/v4"
)

type DownloadHandler struct {
	gate DownloadGate
}

func NewDownloadHandler(gate DownloadGate) *DownloadHandler {
	return &DownloadHandler{gate: gate}
}

// Download streams the caller's watermarked copy and records the download
// after the response is written.
func (h *DownloadHandler) Download(c echo.Context) error {
	assetID, err := parseIDParam(c, msgInvalidAssetID)
	if err != nil {
		return handleHTTPError(c, err)
	}

	userID, err := auth.GetUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, msgUserNotAuthenticated)
	}

	delivery, err := h.gate.Prepare(c.Request().Context(), userID, assetID)
	if err != nil {
		return respondServiceError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", delivery.Filename))
	c.Response().Header().Set("Cache-Control", "private, no-store")
	if err := c.Blob(http.StatusOK, delivery.ContentType, delivery.Body); err != nil {
		return err
	}

	h.gate.Record(userID, assetID)
	return nil
}

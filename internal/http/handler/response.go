package handler

import (
	"net/http"
	"time"

	"asset-pipeline/internal/domain/asset"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{jsonKeyError: message})
}

func respondMessage(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{jsonKeyMessage: message})
}

func handleHTTPError(c echo.Context, err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		return respondError(c, he.Code, msg)
	}

	return respondError(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

type AssetResponse struct {
	ID            uuid.UUID    `json:"id"`
	AssetCode     string       `json:"assetId"`
	Slug          string       `json:"slug"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Category      string       `json:"category"`
	Skill         string       `json:"skill"`
	Tags          []string     `json:"tags"`
	Status        asset.Status `json:"status"`
	ThumbnailKey  *string      `json:"thumbnail_key"`
	DocumentKey   *string      `json:"document_key"`
	PreviewKey    *string      `json:"preview_key"`
	SourceKey     *string      `json:"source_key"`
	DownloadCount int64        `json:"download_count"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func toAssetResponse(a *asset.Asset) AssetResponse {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return AssetResponse{
		ID:            a.ID,
		AssetCode:     a.Code,
		Slug:          a.Slug,
		Title:         a.Title,
		Description:   a.Description,
		Category:      a.Category,
		Skill:         a.Skill,
		Tags:          tags,
		Status:        a.Status,
		ThumbnailKey:  a.ThumbnailKey,
		DocumentKey:   a.DocumentKey,
		PreviewKey:    a.PreviewKey,
		SourceKey:     a.SourceKey,
		DownloadCount: a.DownloadCount,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	contentTypeJSON          = "application/json"
	maxStrictBodyBytes int64 = 1 << 20 // Keep parser bound aligned with global body limit.
)

func bindStrictJSON(c echo.Context, dst interface{}) error {
	if !strings.HasPrefix(strings.ToLower(c.Request().Header.Get(echo.HeaderContentType)), contentTypeJSON) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, msgContentTypeJSONRequired)
	}

	body := io.LimitReader(c.Request().Body, maxStrictBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}

	return nil
}

func parseIDParam(c echo.Context, msg string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(paramID))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, msg)
	}
	return id, nil
}

// parseIDList parses a bulk id list. Duplicates are dropped, order kept.
func parseIDList(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, msgIDsRequired)
	}
	if len(raw) > maxBulkIDs {
		return nil, echo.NewHTTPError(http.StatusBadRequest, msgTooManyIDs)
	}

	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, msgInvalidAssetID)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func parsePaginationParams(c echo.Context) (limit, offset int, err error) {
	if raw := c.QueryParam(queryLimit); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, msgInvalidLimit)
		}
	}
	if raw := c.QueryParam(queryOffset); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, msgInvalidOffset)
		}
	}
	return limit, offset, nil
}

// splitTags accepts a comma separated list and drops blanks.
func splitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

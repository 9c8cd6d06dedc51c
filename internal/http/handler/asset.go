package handler

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"asset-pipeline/internal/assets"
	"asset-pipeline/internal/audit"
	"asset-pipeline/internal/domain/asset"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var uploadSlots = []asset.UploadSlot{asset.SlotThumbnail, asset.SlotDocument, asset.SlotSource}

type AssetHandler struct {
	service       AssetService
	auditLogger   AuditLogger
	maxUploadSize int64
}

func NewAssetHandler(service AssetService, auditLogger AuditLogger, maxUploadSize int64) *AssetHandler {
	return &AssetHandler{
		service:       service,
		auditLogger:   auditLogger,
		maxUploadSize: maxUploadSize,
	}
}

type MetadataRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Skill       string   `json:"skill"`
	Tags        []string `json:"tags"`
}

func (r MetadataRequest) toMetadata() assets.Metadata {
	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return assets.Metadata{
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Category:    strings.TrimSpace(r.Category),
		Skill:       strings.TrimSpace(r.Skill),
		Tags:        tags,
	}
}

type DraftResponse struct {
	ID        uuid.UUID `json:"id"`
	AssetCode string    `json:"assetId"`
	Slug      string    `json:"slug"`
}

type UpsertResponse struct {
	ID        uuid.UUID  `json:"id"`
	AssetCode string     `json:"assetId"`
	Slug      string     `json:"slug"`
	Created   bool       `json:"created"`
	JobID     *uuid.UUID `json:"jobId,omitempty"`

	// Set when the upload was saved but processing was not queued.
	ProcessingError string `json:"processingError,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type BulkRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status,omitempty"`
}

func (h *AssetHandler) CreateDraft(c echo.Context) error {
	meta, err := readMetadata(c)
	if err != nil {
		return handleHTTPError(c, err)
	}

	a, err := h.service.CreateDraft(c.Request().Context(), meta.toMetadata())
	if err != nil {
		h.audit(c, nil, audit.ActionCreate, err, nil)
		return respondServiceError(c, err)
	}

	h.audit(c, &a.ID, audit.ActionCreate, nil, map[string]any{"asset_code": a.Code, "status": a.Status})

	return c.JSON(http.StatusCreated, DraftResponse{ID: a.ID, AssetCode: a.Code, Slug: a.Slug})
}

// Upsert accepts the multipart admin form. With a resolvable asset_id the
// asset is updated in place, otherwise a new one is created.
func (h *AssetHandler) Upsert(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, http.StatusBadRequest, msgInvalidMultipart)
	}

	meta, err := metadataFromForm(form)
	if err != nil {
		return handleHTTPError(c, err)
	}

	skip := false
	if raw := formValue(form, formSkipProcessing); raw != "" {
		skip, err = strconv.ParseBool(raw)
		if err != nil {
			return respondError(c, http.StatusBadRequest, msgInvalidSkipProcessing)
		}
	}

	files, closeAll, err := h.openUploads(form)
	defer closeAll()
	if err != nil {
		return handleHTTPError(c, err)
	}

	result, err := h.service.CreateOrUpdate(c.Request().Context(), assets.UpsertInput{
		AssetRef:       formValue(form, formAssetID),
		Metadata:       meta.toMetadata(),
		Files:          files,
		SkipProcessing: skip,
	})
	if err != nil {
		h.audit(c, nil, audit.ActionUpdate, err, map[string]any{"asset_ref": formValue(form, formAssetID)})
		return respondServiceError(c, err)
	}

	action := audit.ActionUpdate
	status := http.StatusOK
	if result.Created {
		action = audit.ActionCreate
		status = http.StatusCreated
	}

	slots := make([]string, 0, len(files))
	for _, f := range files {
		slots = append(slots, string(f.Slot))
	}
	h.audit(c, &result.Asset.ID, action, nil, map[string]any{
		"asset_code": result.Asset.Code,
		"slots":      slots,
		"job_id":     result.JobID,
	})

	return c.JSON(status, UpsertResponse{
		ID:        result.Asset.ID,
		AssetCode: result.Asset.Code,
		Slug:      result.Asset.Slug,
		Created:   result.Created,
		JobID:     result.JobID,

		ProcessingError: result.ProcessingError,
	})
}

func (h *AssetHandler) openUploads(form *multipart.Form) ([]assets.Upload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	var uploads []assets.Upload
	for _, slot := range uploadSlots {
		headers := form.File[string(slot)]
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		if h.maxUploadSize > 0 && fh.Size > h.maxUploadSize {
			return nil, closeAll, echo.NewHTTPError(http.StatusRequestEntityTooLarge, msgFileTooLarge)
		}

		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, echo.NewHTTPError(http.StatusBadRequest, msgOpenFileFail)
		}
		opened = append(opened, f)

		uploads = append(uploads, assets.Upload{
			Slot:        slot,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		})
	}

	return uploads, closeAll, nil
}

func (h *AssetHandler) List(c echo.Context) error {
	limit, offset, err := parsePaginationParams(c)
	if err != nil {
		return handleHTTPError(c, err)
	}

	filter := asset.ListAssetsFilter{Limit: limit, Offset: offset}
	if raw := c.QueryParam(queryStatus); raw != "" {
		status := asset.Status(raw)
		switch status {
		case asset.StatusPendingUpload, asset.StatusDraft, asset.StatusPublished:
		default:
			return respondError(c, http.StatusBadRequest, msgInvalidStatus)
		}
		filter.Status = &status
	}

	list, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		return respondServiceError(c, err)
	}

	out := make([]AssetResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAssetResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AssetHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, msgInvalidAssetID)
	if err != nil {
		return handleHTTPError(c, err)
	}

	a, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toAssetResponse(a))
}

func (h *AssetHandler) SetStatus(c echo.Context) error {
	id, err := parseIDParam(c, msgInvalidAssetID)
	if err != nil {
		return handleHTTPError(c, err)
	}

	var req StatusRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return handleHTTPError(c, err)
	}

	a, err := h.service.SetStatus(c.Request().Context(), id, asset.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		h.audit(c, &id, audit.ActionPublish, err, map[string]any{"status": req.Status})
		return respondServiceError(c, err)
	}

	h.audit(c, &id, audit.ActionPublish, nil, map[string]any{"status": a.Status})
	return c.JSON(http.StatusOK, toAssetResponse(a))
}

func (h *AssetHandler) Delete(c echo.Context) error {
	id, err := parseIDParam(c, msgInvalidAssetID)
	if err != nil {
		return handleHTTPError(c, err)
	}

	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		h.audit(c, &id, audit.ActionDelete, err, nil)
		return respondServiceError(c, err)
	}

	h.audit(c, &id, audit.ActionDelete, nil, nil)
	return respondMessage(c, http.StatusOK, msgAssetDeleted)
}

func (h *AssetHandler) BulkDelete(c echo.Context) error {
	ids, _, err := h.bindBulk(c)
	if err != nil {
		return handleHTTPError(c, err)
	}

	result, err := h.service.BulkDelete(c.Request().Context(), ids)
	if err != nil {
		return respondServiceError(c, err)
	}

	h.auditBulk(c, audit.ActionDelete, result)
	return c.JSON(http.StatusOK, result)
}

func (h *AssetHandler) BulkSetStatus(c echo.Context) error {
	ids, status, err := h.bindBulk(c)
	if err != nil {
		return handleHTTPError(c, err)
	}

	result, err := h.service.BulkSetStatus(c.Request().Context(), ids, asset.Status(status))
	if err != nil {
		return respondServiceError(c, err)
	}

	h.auditBulk(c, audit.ActionPublish, result)
	return c.JSON(http.StatusOK, result)
}

func (h *AssetHandler) BulkRegenerate(c echo.Context) error {
	ids, _, err := h.bindBulk(c)
	if err != nil {
		return handleHTTPError(c, err)
	}

	result, err := h.service.BulkRegenerate(c.Request().Context(), ids)
	if err != nil {
		return respondServiceError(c, err)
	}

	h.auditBulk(c, audit.ActionRegenerate, result)
	return c.JSON(http.StatusOK, result)
}

func (h *AssetHandler) bindBulk(c echo.Context) ([]uuid.UUID, string, error) {
	var req BulkRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return nil, "", err
	}
	ids, err := parseIDList(req.IDs)
	if err != nil {
		return nil, "", err
	}
	return ids, strings.TrimSpace(req.Status), nil
}

func (h *AssetHandler) audit(c echo.Context, id *uuid.UUID, action audit.Action, err error, metadata map[string]any) {
	if h.auditLogger == nil {
		return
	}
	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailure
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["error"] = err.Error()
	}
	h.auditLogger.LogFromContext(c, audit.ResourceTypeAsset, id, action, status, metadata)
}

func (h *AssetHandler) auditBulk(c echo.Context, action audit.Action, result *assets.BulkResult) {
	h.audit(c, nil, action, nil, map[string]any{
		"bulk":      true,
		"succeeded": len(result.Succeeded),
		"skipped":   len(result.Skipped),
		"failed":    len(result.Failed),
	})
}

// readMetadata reads draft metadata from a JSON body or a form.
func readMetadata(c echo.Context) (MetadataRequest, error) {
	var req MetadataRequest
	if strings.HasPrefix(strings.ToLower(c.Request().Header.Get(echo.HeaderContentType)), contentTypeJSON) {
		err := bindStrictJSON(c, &req)
		return req, err
	}

	req.Title = c.FormValue(formTitle)
	req.Description = c.FormValue(formDescription)
	req.Category = c.FormValue(formCategory)
	req.Skill = c.FormValue(formSkill)
	req.Tags = splitTags(c.FormValue(formTags))
	return req, nil
}

// metadataFromForm prefers a JSON "metadata" field and falls back to the
// individual form fields.
func metadataFromForm(form *multipart.Form) (MetadataRequest, error) {
	var req MetadataRequest
	if raw := formValue(form, formMetadata); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, msgInvalidMetadata)
		}
		return req, nil
	}

	req.Title = formValue(form, formTitle)
	req.Description = formValue(form, formDescription)
	req.Category = formValue(form, formCategory)
	req.Skill = formValue(form, formSkill)
	req.Tags = splitTags(formValue(form, formTags))
	return req, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

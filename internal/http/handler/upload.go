package handler

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"asset-pipeline/internal/audit"
	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/metrics"
	"asset-pipeline/internal/signer"

	"github.com/labstack/echo/v4"
)

const defaultObjectContentType = "application/octet-stream"

type UploadHandler struct {
	signer        URLSigner
	objects       ObjectWriter
	auditLogger   AuditLogger
	metrics       *metrics.Metrics
	maxUploadSize int64
	adminTTL      time.Duration
}

func NewUploadHandler(urlSigner URLSigner, objects ObjectWriter, auditLogger AuditLogger, m *metrics.Metrics, maxUploadSize int64, adminTTL time.Duration) *UploadHandler {
	if adminTTL <= 0 {
		adminTTL = defaultAdminSignTTL
	}
	return &UploadHandler{
		signer:        urlSigner,
		objects:       objects,
		auditLogger:   auditLogger,
		metrics:       m,
		maxUploadSize: maxUploadSize,
		adminTTL:      adminTTL,
	}
}

type SignRequest struct {
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type SignedPutResponse struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
}

// PutSigned stores the request body at the key a capability URL grants.
// The signature is the only credential.
func (h *UploadHandler) PutSigned(c echo.Context) error {
	bucket := asset.Bucket(c.Param(paramBucket))
	if !bucket.Valid() {
		return respondError(c, http.StatusNotFound, msgUnknownBucket)
	}

	key := c.QueryParam(signer.QueryKey)
	if !h.signer.Verify(bucket, key, c.QueryParam(signer.QueryExpires), c.QueryParam(signer.QuerySig)) {
		return respondError(c, http.StatusForbidden, msgInvalidSignature)
	}

	body, err := readLimited(c.Request().Body, h.maxUploadSize)
	if err != nil {
		return handleHTTPError(c, err)
	}
	if len(body) == 0 {
		return respondError(c, http.StatusBadRequest, msgEmptyBody)
	}

	contentType := strings.TrimSpace(c.Request().Header.Get(echo.HeaderContentType))
	if contentType == "" {
		contentType = defaultObjectContentType
	}

	err = h.objects.Put(c.Request().Context(), bucket, key, bytes.NewReader(body), contentType)
	h.metrics.Upload("signed_"+string(bucket), int64(len(body)), err)
	if err != nil {
		c.Logger().Errorf("signed put %s/%s failed: %v", bucket, key, err)
		return respondError(c, http.StatusInternalServerError, msgUploadFail)
	}

	if name := c.Request().Header.Get(headerFileName); name != "" {
		c.Logger().Debugf("signed put %s/%s stored as %q", bucket, key, name)
	}

	return c.JSON(http.StatusOK, SignedPutResponse{Bucket: string(bucket), Key: key, Size: int64(len(body))})
}

// Sign issues an admin write capability. The TTL is capped at the admin
// maximum.
func (h *UploadHandler) Sign(c echo.Context) error {
	var req SignRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return handleHTTPError(c, err)
	}

	bucket := asset.Bucket(strings.TrimSpace(req.Bucket))
	if !bucket.Valid() {
		return respondError(c, http.StatusBadRequest, msgUnknownBucket)
	}
	key := strings.TrimSpace(req.Key)
	if !signer.ValidKey(key) {
		return respondError(c, http.StatusBadRequest, msgInvalidKey)
	}
	if req.TTLSeconds < 0 {
		return respondError(c, http.StatusBadRequest, msgInvalidTTL)
	}

	ttl := h.adminTTL
	if req.TTLSeconds > 0 {
		if requested := time.Duration(req.TTLSeconds) * time.Second; requested < ttl {
			ttl = requested
		}
	}

	capability, err := h.signer.Issue(bucket, key, ttl)
	if err != nil {
		return respondError(c, http.StatusInternalServerError, msgSignFail)
	}

	if h.auditLogger != nil {
		h.auditLogger.LogFromContext(c, audit.ResourceTypeUpload, nil, audit.ActionSign, audit.StatusSuccess, map[string]any{
			"bucket":      string(bucket),
			"key":         key,
			"ttl_seconds": int64(ttl / time.Second),
		})
	}

	return c.JSON(http.StatusOK, capability)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, msgInvalidRequestBody)
	}
	if int64(len(data)) > limit {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, msgFileTooLarge)
	}
	return data, nil
}

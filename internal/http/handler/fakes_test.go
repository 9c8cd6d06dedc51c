package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"asset-pipeline/internal/assets"
	"asset-pipeline/internal/audit"
	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/download"
	"asset-pipeline/internal/queue"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type fakeAssetService struct {
	draft     *asset.Asset
	upsert    *assets.UpsertResult
	got       *asset.Asset
	list      []*asset.Asset
	bulk      *assets.BulkResult
	err       error
	lastInput assets.UpsertInput
	lastMeta  assets.Metadata
	lastIDs   []uuid.UUID
	lastState asset.Status
	filter    asset.ListAssetsFilter
	// uploaded holds the bytes of each slot, read during CreateOrUpdate.
	uploaded map[asset.UploadSlot]string
}

func (f *fakeAssetService) CreateDraft(_ context.Context, meta assets.Metadata) (*asset.Asset, error) {
	f.lastMeta = meta
	return f.draft, f.err
}

func (f *fakeAssetService) CreateOrUpdate(_ context.Context, in assets.UpsertInput) (*assets.UpsertResult, error) {
	f.lastInput = in
	f.uploaded = map[asset.UploadSlot]string{}
	for _, u := range in.Files {
		data, _ := io.ReadAll(u.Body)
		f.uploaded[u.Slot] = string(data)
	}
	return f.upsert, f.err
}

func (f *fakeAssetService) Get(context.Context, uuid.UUID) (*asset.Asset, error) {
	return f.got, f.err
}

func (f *fakeAssetService) List(_ context.Context, filter asset.ListAssetsFilter) ([]*asset.Asset, error) {
	f.filter = filter
	return f.list, f.err
}

func (f *fakeAssetService) SetStatus(_ context.Context, _ uuid.UUID, status asset.Status) (*asset.Asset, error) {
	f.lastState = status
	return f.got, f.err
}

func (f *fakeAssetService) Delete(context.Context, uuid.UUID) error {
	return f.err
}

func (f *fakeAssetService) BulkDelete(_ context.Context, ids []uuid.UUID) (*assets.BulkResult, error) {
	f.lastIDs = ids
	return f.bulk, f.err
}

func (f *fakeAssetService) BulkSetStatus(_ context.Context, ids []uuid.UUID, status asset.Status) (*assets.BulkResult, error) {
	f.lastIDs = ids
	f.lastState = status
	return f.bulk, f.err
}

func (f *fakeAssetService) BulkRegenerate(_ context.Context, ids []uuid.UUID) (*assets.BulkResult, error) {
	f.lastIDs = ids
	return f.bulk, f.err
}

type fakeQueue struct {
	pending   []queue.PendingJob
	patched   *job.Job
	asset     *queue.WorkerAsset
	err       error
	lastLimit int
	lastPatch queue.PatchInput
}

func (f *fakeQueue) ListPending(_ context.Context, limit int) ([]queue.PendingJob, error) {
	f.lastLimit = limit
	return f.pending, f.err
}

func (f *fakeQueue) Patch(_ context.Context, _ uuid.UUID, in queue.PatchInput) (*job.Job, error) {
	f.lastPatch = in
	return f.patched, f.err
}

func (f *fakeQueue) AssetForWorker(context.Context, uuid.UUID) (*queue.WorkerAsset, error) {
	return f.asset, f.err
}

type fakeGate struct {
	delivery *download.Delivery
	err      error
	recorded chan uuid.UUID
}

func (f *fakeGate) Prepare(context.Context, uuid.UUID, uuid.UUID) (*download.Delivery, error) {
	return f.delivery, f.err
}

func (f *fakeGate) Record(_, assetID uuid.UUID) {
	if f.recorded != nil {
		f.recorded <- assetID
	}
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakeObjects) Put(_ context.Context, bucket asset.Bucket, key string, body io.ReadSeeker, contentType string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[string(bucket)+"/"+key] = string(data)
	f.types[string(bucket)+"/"+key] = contentType
	return nil
}

type auditCall struct {
	resource audit.ResourceType
	action   audit.Action
	status   audit.Status
	metadata map[string]any
}

type fakeAudit struct {
	calls []auditCall
}

func (f *fakeAudit) LogFromContext(_ echo.Context, resourceType audit.ResourceType, _ *uuid.UUID, action audit.Action, status audit.Status, metadata map[string]any) {
	f.calls = append(f.calls, auditCall{resourceType, action, status, metadata})
}

func newJSONContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func newRequestContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

type formFile struct {
	field, name, content string
}

func multipartRequest(target string, fields map[string]string, files ...formFile) *http.Request {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	for _, f := range files {
		part, _ := w.CreateFormFile(f.field, f.name)
		_, _ = part.Write([]byte(f.content))
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

// Package assets owns the asset record lifecycle: allocation, uploads with
// compensation, publishing and deletion.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/metrics"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type AssetStore interface {
	Create(ctx context.Context, input asset.CreateAssetInput) (*asset.Asset, error)
	GetByID(ctx context.Context, id uuid.UUID) (*asset.Asset, error)
	GetByCode(ctx context.Context, code string) (*asset.Asset, error)
	List(ctx context.Context, filter asset.ListAssetsFilter) ([]*asset.Asset, error)
	Update(ctx context.Context, id uuid.UUID, input asset.UpdateAssetInput) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type CodeAllocator interface {
	NextForPrefix(ctx context.Context, prefix string) (int64, error)
}

type ObjectStore interface {
	Put(ctx context.Context, bucket asset.Bucket, key string, body io.ReadSeeker, contentType string) error
	Delete(ctx context.Context, bucket asset.Bucket, key string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, assetID uuid.UUID, jobType job.Type) (*job.Job, bool, error)
}

type Waker interface {
	WakeAsync(reason, token string)
}

type TokenIssuer interface {
	Issue(scope string) (string, error)
}

type Deps struct {
	Store             AssetStore
	Codes             CodeAllocator
	Objects           ObjectStore
	Jobs              JobQueue
	Waker             Waker
	Tokens            TokenIssuer
	Metrics           *metrics.Metrics
	Log               *logger.Logger
	UploadConcurrency int
}

type Service struct {
	store             AssetStore
	codes             CodeAllocator
	objects           ObjectStore
	jobs              JobQueue
	waker             Waker
	tokens            TokenIssuer
	metrics           *metrics.Metrics
	log               *logger.Logger
	uploadConcurrency int
}

func NewService(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	concurrency := deps.UploadConcurrency
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}

	return &Service{
		store:             deps.Store,
		codes:             deps.Codes,
		objects:           deps.Objects,
		jobs:              deps.Jobs,
		waker:             deps.Waker,
		tokens:            deps.Tokens,
		metrics:           deps.Metrics,
		log:               log.With("service", "assets"),
		uploadConcurrency: concurrency,
	}
}

// Metadata is the admin-editable part of an asset.
type Metadata struct {
	Title       string
	Description string
	Category    string
	Skill       string
	Tags        []string
}

func (m Metadata) validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return apperrors.Validation(msgTitleRequired)
	}
	if strings.TrimSpace(m.Category) == "" {
		return apperrors.Validation(msgCategoryRequired)
	}
	return nil
}

// Upload is one file from the admin form.
type Upload struct {
	Slot        asset.UploadSlot
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

type UpsertInput struct {
	// AssetRef is an asset id or code. When it resolves, the asset is
	// updated in place; otherwise a new asset is created.
	AssetRef       string
	Metadata       Metadata
	Files          []Upload
	SkipProcessing bool
}

type UpsertResult struct {
	Asset   *asset.Asset
	Created bool
	JobID   *uuid.UUID

	// ProcessingError is set when the upload was saved but its processing
	// job could not be queued.
	ProcessingError string
}

// BulkResult reports per-id outcomes. Keys of Skipped and Failed are ids.
type BulkResult struct {
	Succeeded []uuid.UUID       `json:"succeeded"`
	Skipped   map[string]string `json:"skipped,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func newBulkResult() *BulkResult {
	return &BulkResult{
		Succeeded: []uuid.UUID{},
		Skipped:   map[string]string{},
		Failed:    map[string]string{},
	}
}

// CreateDraft allocates a code and inserts a draft whose thumbnail and
// document pointers are reserved but unwritten.
func (s *Service) CreateDraft(ctx context.Context, meta Metadata) (*asset.Asset, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}

	draft := asset.SentinelDraft
	return s.allocateAndCreate(ctx, meta, asset.StatusDraft, &draft, &draft)
}

func (s *Service) allocateAndCreate(ctx context.Context, meta Metadata, status asset.Status, thumbnail, document *string) (*asset.Asset, error) {
	prefix := asset.CodePrefix(meta.Category)

	var lastErr error
	for attempt := 0; attempt < codeAllocationAttempts; attempt++ {
		n, err := s.codes.NextForPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}

		a, err := s.store.Create(ctx, asset.CreateAssetInput{
			Code:         asset.FormatCode(prefix, n),
			Slug:         asset.Slugify(meta.Title),
			Title:        strings.TrimSpace(meta.Title),
			Description:  meta.Description,
			Category:     strings.TrimSpace(meta.Category),
			Skill:        meta.Skill,
			Tags:         meta.Tags,
			ThumbnailKey: thumbnail,
			DocumentKey:  document,
			Status:       status,
		})
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}

		lastErr = err
		s.log.Warn("asset code collision, reallocating", "prefix", prefix, "attempt", attempt+1)
	}

	return nil, lastErr
}

// resolve finds the asset an upsert targets. An unknown ref is not an error;
// the caller creates a new asset instead.
func (s *Service) resolve(ctx context.Context, ref string) (*asset.Asset, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	var (
		a   *asset.Asset
		err error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		a, err = s.store.GetByID(ctx, id)
	} else {
		a, err = s.store.GetByCode(ctx, ref)
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// CreateOrUpdate registers the row before any byte is uploaded, uploads
// concurrently, and either finalizes the row in one update or undoes every
// write made by this call.
func (s *Service) CreateOrUpdate(ctx context.Context, in UpsertInput) (*UpsertResult, error) {
	if err := in.Metadata.validate(); err != nil {
		return nil, err
	}
	for _, f := range in.Files {
		if f.Slot != asset.SlotThumbnail && f.Slot != asset.SlotDocument && f.Slot != asset.SlotSource {
			return nil, apperrors.Validation(fmt.Sprintf(msgUnknownSlotFmt, f.Slot))
		}
	}

	existing, err := s.resolve(ctx, in.AssetRef)
	if err != nil {
		return nil, err
	}

	created := existing == nil
	target := existing
	if created {
		target, err = s.allocateAndCreate(ctx, in.Metadata, asset.StatusPendingUpload, nil, nil)
		if err != nil {
			return nil, err
		}
	}

	written, err := s.uploadAll(ctx, target.Code, in.Files)
	if err != nil {
		s.rollback(ctx, target, existing, created, written)
		return nil, apperrors.InternalServer(msgUploadFailed, err)
	}

	update := buildFinalizeUpdate(in.Metadata, existing, written, created)

	processing := !in.SkipProcessing && hasSlot(written, asset.SlotSource)
	if processing {
		reserveDerivatives(&update, target)
	}

	if err := s.store.Update(ctx, target.ID, update); err != nil {
		s.rollback(ctx, target, existing, created, written)
		return nil, err
	}

	s.releaseSuperseded(ctx, target.ID, superseded(existing, written))

	result := &UpsertResult{Created: created}

	// The row is final at this point; a queue failure is reported, not
	// turned into an error, so the admin can regenerate.
	if processing {
		j, _, err := s.jobs.Enqueue(ctx, target.ID, job.TypeGenerateAll)
		if err != nil {
			s.log.Error("failed to enqueue processing job", "asset_id", target.ID, "error", err)
			result.ProcessingError = msgEnqueueFailed
		} else {
			result.JobID = &j.ID
			s.wake(wakeReasonUpload, target.ID.String())
		}
	}

	result.Asset, err = s.store.GetByID(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	return result, nil
}

type writtenObject struct {
	slot asset.UploadSlot
	obj  asset.StoredObject
}

func (s *Service) uploadAll(ctx context.Context, code string, files []Upload) ([]writtenObject, error) {
	var (
		mu      sync.Mutex
		written []writtenObject
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadConcurrency)

	for _, f := range files {
		g.Go(func() error {
			obj := asset.StoredObject{
				Bucket: f.Slot.Bucket(),
				Key:    asset.UploadKey(code, f.Slot, f.Filename),
			}

			err := s.objects.Put(gctx, obj.Bucket, obj.Key, f.Body, f.ContentType)
			s.metrics.Upload(string(f.Slot), f.Size, err)
			if err != nil {
				return fmt.Errorf(errUploadSlotFmt, f.Slot, err)
			}

			mu.Lock()
			written = append(written, writtenObject{slot: f.Slot, obj: obj})
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return written, err
}

// rollback deletes every object this call wrote, except keys the asset
// already pointed at before the call (those were overwritten in place), and
// removes a row this call created. It runs detached from the request context
// so a cancelled request still cleans up.
func (s *Service) rollback(ctx context.Context, target, existing *asset.Asset, created bool, written []writtenObject) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	preexisting := map[asset.StoredObject]bool{}
	if existing != nil {
		for _, obj := range existing.WrittenObjects() {
			preexisting[obj] = true
		}
	}

	for _, w := range written {
		if preexisting[w.obj] {
			continue
		}
		if err := s.objects.Delete(cleanupCtx, w.obj.Bucket, w.obj.Key); err != nil {
			s.log.Error("compensating delete failed", "asset_id", target.ID, "bucket", w.obj.Bucket, "key", w.obj.Key, "error", err)
		}
	}

	if created {
		if err := s.store.Delete(cleanupCtx, target.ID); err != nil {
			s.log.Error("failed to remove pending asset row", "asset_id", target.ID, "error", err)
		}
	}
}

// superseded lists objects the asset pointed at before this call that the
// finalize update replaced with a different key, e.g. a thumbnail re-uploaded
// as .jpg over a .png.
func superseded(existing *asset.Asset, written []writtenObject) []asset.StoredObject {
	if existing == nil {
		return nil
	}

	var out []asset.StoredObject
	for _, w := range written {
		var prev *string
		switch w.slot {
		case asset.SlotThumbnail:
			prev = existing.ThumbnailKey
		case asset.SlotDocument:
			prev = existing.DocumentKey
		case asset.SlotSource:
			prev = existing.SourceKey
		}
		if asset.IsWritten(prev) && *prev != w.obj.Key {
			out = append(out, asset.StoredObject{Bucket: w.obj.Bucket, Key: *prev})
		}
	}
	return out
}

// releaseSuperseded deletes replaced objects after the row stopped pointing
// at them. Failures leave an orphan object and are only logged.
func (s *Service) releaseSuperseded(ctx context.Context, id uuid.UUID, objects []asset.StoredObject) {
	if len(objects) == 0 {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	for _, obj := range objects {
		if err := s.objects.Delete(cleanupCtx, obj.Bucket, obj.Key); err != nil {
			s.log.Warn("failed to delete superseded object", "asset_id", id, "bucket", obj.Bucket, "key", obj.Key, "error", err)
		}
	}
}

func buildFinalizeUpdate(meta Metadata, existing *asset.Asset, written []writtenObject, created bool) asset.UpdateAssetInput {
	var update asset.UpdateAssetInput

	if existing != nil {
		title := strings.TrimSpace(meta.Title)
		category := strings.TrimSpace(meta.Category)
		slug := asset.Slugify(title)
		update.Title = &title
		update.Slug = &slug
		update.Description = &meta.Description
		update.Category = &category
		update.Skill = &meta.Skill
		update.Tags = meta.Tags
		if update.Tags == nil {
			update.Tags = []string{}
		}
	}

	for _, w := range written {
		key := w.obj.Key
		switch w.slot {
		case asset.SlotThumbnail:
			update.ThumbnailKey = &key
		case asset.SlotDocument:
			update.DocumentKey = &key
		case asset.SlotSource:
			update.SourceKey = &key
		}
	}

	if created {
		status := asset.StatusDraft
		update.Status = &status
	}

	return update
}

// reserveDerivatives marks every derivative the worker must still produce
// as pending. Pointers already written, or written by this call, are kept.
func reserveDerivatives(update *asset.UpdateAssetInput, a *asset.Asset) {
	pending := asset.SentinelPending

	if !asset.IsWritten(a.ThumbnailKey) && update.ThumbnailKey == nil {
		update.ThumbnailKey = &pending
	}
	if !asset.IsWritten(a.PreviewKey) && update.PreviewKey == nil {
		update.PreviewKey = &pending
	}
	if !asset.IsWritten(a.DocumentKey) && update.DocumentKey == nil {
		update.DocumentKey = &pending
	}
}

func hasSlot(written []writtenObject, slot asset.UploadSlot) bool {
	for _, w := range written {
		if w.slot == slot {
			return true
		}
	}
	return false
}

// wake mints a fresh capability token and signals the worker in the
// background. A failure here leaves the job pending for the next wake.
func (s *Service) wake(reason, scope string) {
	if s.waker == nil || s.tokens == nil {
		return
	}

	token, err := s.tokens.Issue(scope)
	if err != nil {
		s.log.Error("failed to mint worker token", "reason", reason, "error", err)
		return
	}

	s.waker.WakeAsync(reason, token)
}

// SetStatus moves an asset between draft and published. Setting the
// current status again is a no-op.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status asset.Status) (*asset.Asset, error) {
	if status != asset.StatusDraft && status != asset.StatusPublished {
		return nil, apperrors.Validation(msgInvalidStatus)
	}

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.Status == status {
		return a, nil
	}

	if status == asset.StatusPublished && !a.PublishReady() {
		return nil, apperrors.Conflict(msgNotPublishable)
	}

	if err := s.store.Update(ctx, id, asset.UpdateAssetInput{Status: &status}); err != nil {
		return nil, err
	}

	a.Status = status
	a.UpdatedAt = time.Now()
	return a, nil
}

// Delete releases every written object, then removes the row and its
// engagement records. Reserved pointers are skipped.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, obj := range a.WrittenObjects() {
		if err := s.objects.Delete(ctx, obj.Bucket, obj.Key); err != nil {
			return apperrors.InternalServer(msgStorageDeleteFailed, err)
		}
	}

	return s.store.Delete(ctx, id)
}

func (s *Service) BulkDelete(ctx context.Context, ids []uuid.UUID) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, apperrors.Validation(msgIDsRequired)
	}

	result := newBulkResult()
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			result.Failed[id.String()] = publicReason(err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	return result, nil
}

func (s *Service) BulkSetStatus(ctx context.Context, ids []uuid.UUID, status asset.Status) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, apperrors.Validation(msgIDsRequired)
	}
	if status != asset.StatusDraft && status != asset.StatusPublished {
		return nil, apperrors.Validation(msgInvalidStatus)
	}

	result := newBulkResult()
	for _, id := range ids {
		if _, err := s.SetStatus(ctx, id, status); err != nil {
			result.Failed[id.String()] = publicReason(err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	return result, nil
}

// BulkRegenerate enqueues a generate_all job for each asset with a written
// source. Assets that already have a pending job are skipped. One wake
// covers the whole batch.
func (s *Service) BulkRegenerate(ctx context.Context, ids []uuid.UUID) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, apperrors.Validation(msgIDsRequired)
	}

	result := newBulkResult()
	for _, id := range ids {
		a, err := s.store.GetByID(ctx, id)
		if err != nil {
			result.Failed[id.String()] = publicReason(err)
			continue
		}

		if !asset.IsWritten(a.SourceKey) {
			result.Skipped[id.String()] = msgNoSource
			continue
		}

		var update asset.UpdateAssetInput
		reserveDerivatives(&update, a)
		if !update.IsEmpty() {
			if err := s.store.Update(ctx, id, update); err != nil {
				result.Failed[id.String()] = publicReason(err)
				continue
			}
		}

		_, created, err := s.jobs.Enqueue(ctx, id, job.TypeGenerateAll)
		if err != nil {
			result.Failed[id.String()] = publicReason(err)
			continue
		}
		if !created {
			result.Skipped[id.String()] = msgAlreadyPending
			continue
		}

		result.Succeeded = append(result.Succeeded, id)
	}

	if len(result.Succeeded) > 0 {
		s.wake(wakeReasonRegenerate, wakeScopeBatch)
	}

	return result, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*asset.Asset, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter asset.ListAssetsFilter) ([]*asset.Asset, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	assets, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if assets == nil {
		assets = []*asset.Asset{}
	}

	return assets, nil
}

// publicReason keeps bulk responses free of internal error detail.
func publicReason(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != codeInternalServerError {
		return appErr.Message
	}
	return msgInternalFailure
}

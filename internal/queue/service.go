// Package queue exposes the processing queue to workers and keeps leases
// from stranding jobs.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/metrics"
	"asset-pipeline/internal/signer"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
)

type JobStore interface {
	Enqueue(ctx context.Context, assetID uuid.UUID, jobType job.Type, maxAttempts int) (*job.Job, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error)
	ListPending(ctx context.Context, limit int) ([]*job.Job, error)
	Transition(ctx context.Context, id uuid.UUID, in job.TransitionInput) (*job.Job, error)
}

type AssetStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*asset.Asset, error)
	Update(ctx context.Context, id uuid.UUID, input asset.UpdateAssetInput) error
}

type URLSigner interface {
	Issue(bucket asset.Bucket, key string, ttl time.Duration) (*signer.Capability, error)
}

type ObjectReader interface {
	Get(ctx context.Context, bucket asset.Bucket, key string) ([]byte, error)
}

type Options struct {
	MaxAttempts int
	Lease       time.Duration
	URLTTL      time.Duration
}

type Service struct {
	jobs    JobStore
	assets  AssetStore
	signer  URLSigner
	objects ObjectReader
	opts    Options
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewService(jobs JobStore, assets AssetStore, urlSigner URLSigner, objects ObjectReader, opts Options, m *metrics.Metrics, log *logger.Logger) *Service {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = defaultURLTTL
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Service{
		jobs:    jobs,
		assets:  assets,
		signer:  urlSigner,
		objects: objects,
		opts:    opts,
		metrics: m,
		log:     log.With("service", "queue"),
	}
}

// Enqueue creates a pending job or returns the one already pending for the
// same asset and type, reporting which happened.
func (s *Service) Enqueue(ctx context.Context, assetID uuid.UUID, jobType job.Type) (*job.Job, bool, error) {
	if !jobType.Valid() {
		return nil, false, apperrors.Validation(fmt.Sprintf(msgUnknownJobTypeFmt, jobType))
	}
	return s.jobs.Enqueue(ctx, assetID, jobType, s.opts.MaxAttempts)
}

// PendingJob is a queued job plus everything a worker needs to run it.
type PendingJob struct {
	ID        uuid.UUID                   `json:"id"`
	AssetID   uuid.UUID                   `json:"asset_id"`
	AssetCode string                      `json:"asset_code"`
	JobType   job.Type                    `json:"job_type"`
	Attempts  int                         `json:"attempts"`
	CreatedAt time.Time                   `json:"created_at"`
	URLs      map[asset.Derivative]string `json:"urls"`
	Keys      map[asset.Derivative]string `json:"keys"`
}

// ListPending returns the oldest pending jobs, each with a write capability
// for every derivative still marked pending on the asset. Derivatives that
// are already written or absent get none. Jobs whose asset was deleted are
// failed and left out.
func (s *Service) ListPending(ctx context.Context, limit int) ([]PendingJob, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}

	jobs, err := s.jobs.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]PendingJob, 0, len(jobs))
	for _, j := range jobs {
		a, err := s.assets.GetByID(ctx, j.AssetID)
		if errors.Is(err, apperrors.ErrNotFound) {
			s.failOrphan(ctx, j)
			continue
		}
		if err != nil {
			return nil, err
		}

		pending := PendingJob{
			ID:        j.ID,
			AssetID:   j.AssetID,
			AssetCode: a.Code,
			JobType:   j.Type,
			Attempts:  j.Attempts,
			CreatedAt: j.CreatedAt,
			URLs:      map[asset.Derivative]string{},
			Keys:      map[asset.Derivative]string{},
		}

		for _, d := range asset.Derivatives {
			if ptr := a.Pointer(d); ptr == nil || *ptr != asset.SentinelPending {
				continue
			}
			key := asset.CanonicalKey(a.Code, d)
			capability, err := s.signer.Issue(d.Bucket(), key, s.opts.URLTTL)
			if err != nil {
				return nil, err
			}
			pending.URLs[d] = capability.URL
			pending.Keys[d] = key
		}

		out = append(out, pending)
	}

	return out, nil
}

func (s *Service) failOrphan(ctx context.Context, j *job.Job) {
	msg := msgAssetDeleted
	_, err := s.jobs.Transition(ctx, j.ID, job.TransitionInput{
		From:         job.StatusPending,
		To:           job.StatusFailed,
		ErrorMessage: &msg,
	})
	if err != nil {
		s.log.Warn("failed to close orphaned job", "job_id", j.ID, "error", err)
		return
	}
	s.metrics.JobTransition(string(job.StatusPending), string(job.StatusFailed))
}

type PatchInput struct {
	Status       job.Status
	ErrorMessage *string
	// Outputs maps each derivative the worker wrote to its object key.
	Outputs map[asset.Derivative]string
}

// Patch applies a worker status report. A completed report finalizes the
// asset pointers for every declared output before the job closes, so a
// closed job never points at a reserved slot it filled.
func (s *Service) Patch(ctx context.Context, id uuid.UUID, in PatchInput) (*job.Job, error) {
	if !in.Status.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf(msgInvalidStatusFmt, in.Status))
	}
	if len(in.Outputs) > 0 && in.Status != job.StatusCompleted {
		return nil, apperrors.Validation(msgOutputsOnlyOnComplete)
	}

	current, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !job.CanTransition(current.Status, in.Status) {
		return nil, apperrors.Conflict(fmt.Sprintf(msgIllegalTransitionFmt, current.Status, in.Status))
	}

	if in.Status == job.StatusCompleted && len(in.Outputs) > 0 {
		if err := s.finalizeOutputs(ctx, current.AssetID, in.Outputs); err != nil {
			return nil, err
		}
	}

	errMsg := in.ErrorMessage
	if errMsg != nil {
		trimmed := truncate(strings.TrimSpace(*errMsg), maxErrorMessageLen)
		errMsg = &trimmed
	}

	updated, err := s.jobs.Transition(ctx, id, job.TransitionInput{
		From:         current.Status,
		To:           in.Status,
		ErrorMessage: errMsg,
		Lease:        s.opts.Lease,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.JobTransition(string(current.Status), string(in.Status))
	s.log.Info("job transitioned", "job_id", id, "from", current.Status, "to", in.Status, "attempts", updated.Attempts)

	return updated, nil
}

func (s *Service) finalizeOutputs(ctx context.Context, assetID uuid.UUID, outputs map[asset.Derivative]string) error {
	a, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return err
	}

	var update asset.UpdateAssetInput
	for d, key := range outputs {
		canonical := asset.CanonicalKey(a.Code, d)
		if canonical == "" {
			return apperrors.Validation(fmt.Sprintf(msgUnknownDerivativeFmt, d))
		}
		if key != canonical {
			return apperrors.Validation(fmt.Sprintf(msgNonCanonicalKeyFmt, d, canonical))
		}

		// Only reserved derivatives are the worker's to fill; written
		// pointers, including admin uploads, are left alone.
		if ptr := a.Pointer(d); ptr == nil || *ptr != asset.SentinelPending {
			continue
		}

		k := key
		switch d {
		case asset.DerivativeThumbnail:
			update.ThumbnailKey = &k
		case asset.DerivativePreview:
			update.PreviewKey = &k
		case asset.DerivativeDocument:
			update.DocumentKey = &k
		}
	}

	if update.IsEmpty() {
		return nil
	}
	return s.assets.Update(ctx, assetID, update)
}

// WorkerAsset is the worker's view of an asset, with the raw source inlined.
type WorkerAsset struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"asset_code"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Skill       string    `json:"skill"`
	Tags        []string  `json:"tags"`
	SourceKey   *string   `json:"source_key"`
	Source      *string   `json:"source,omitempty"`
}

func (s *Service) AssetForWorker(ctx context.Context, id uuid.UUID) (*WorkerAsset, error) {
	a, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &WorkerAsset{
		ID:          a.ID,
		Code:        a.Code,
		Slug:        a.Slug,
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
		Skill:       a.Skill,
		Tags:        a.Tags,
		SourceKey:   a.SourceKey,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}

	if asset.IsWritten(a.SourceKey) {
		data, err := s.objects.Get(ctx, asset.SlotSource.Bucket(), *a.SourceKey)
		if err != nil {
			return nil, err
		}
		text := string(data)
		out.Source = &text
	}

	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

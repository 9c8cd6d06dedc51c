package handler

import (
	"context"
	"io"
	"time"

	"asset-pipeline/internal/assets"
	"asset-pipeline/internal/audit"
	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/download"
	"asset-pipeline/internal/queue"
	"asset-pipeline/internal/signer"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Consumer-side interfaces defined by handlers.

// AssetHandler
type AssetService interface {
	CreateDraft(ctx context.Context, meta assets.Metadata) (*asset.Asset, error)
	CreateOrUpdate(ctx context.Context, in assets.UpsertInput) (*assets.UpsertResult, error)
	Get(ctx context.Context, id uuid.UUID) (*asset.Asset, error)
	List(ctx context.Context, filter asset.ListAssetsFilter) ([]*asset.Asset, error)
	SetStatus(ctx context.Context, id uuid.UUID, status asset.Status) (*asset.Asset, error)
	Delete(ctx context.Context, id uuid.UUID) error
	BulkDelete(ctx context.Context, ids []uuid.UUID) (*assets.BulkResult, error)
	BulkSetStatus(ctx context.Context, ids []uuid.UUID, status asset.Status) (*assets.BulkResult, error)
	BulkRegenerate(ctx context.Context, ids []uuid.UUID) (*assets.BulkResult, error)
}

// WorkerHandler
type QueueService interface {
	ListPending(ctx context.Context, limit int) ([]queue.PendingJob, error)
	Patch(ctx context.Context, id uuid.UUID, in queue.PatchInput) (*job.Job, error)
	AssetForWorker(ctx context.Context, id uuid.UUID) (*queue.WorkerAsset, error)
}

// UploadHandler
type URLSigner interface {
	Issue(bucket asset.Bucket, key string, ttl time.Duration) (*signer.Capability, error)
	Verify(bucket asset.Bucket, key, expires, sig string) bool
}

type ObjectWriter interface {
	Put(ctx context.Context, bucket asset.Bucket, key string, body io.ReadSeeker, contentType string) error
}

// DownloadHandler
type DownloadGate interface {
	Prepare(ctx context.Context, userID, assetID uuid.UUID) (*download.Delivery, error)
	Record(userID, assetID uuid.UUID)
}

// Shared by admin handlers.
type AuditLogger interface {
	LogFromContext(c echo.Context, resourceType audit.ResourceType, resourceID *uuid.UUID, action audit.Action, status audit.Status, metadata map[string]any)
}

// Package download serves watermarked documents to entitled users.
package download

import (
	"context"
	"errors"
	"time"

	"asset-pipeline/internal/domain/asset"
	dl "asset-pipeline/internal/domain/download"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/metrics"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
)

const (
	contentTypePDF   = "application/pdf"
	recordTimeout    = 10 * time.Second
	msgAssetNotFound = "asset not found"
	msgNotEntitled   = "an active subscription is required to download"
	msgDocMissing    = "document not found"
	msgDeliveryFail  = "failed to prepare document"

	outcomeNotFound  = "not_found"
	outcomeForbidden = "forbidden"
)

type AssetReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*asset.Asset, error)
}

type Subscribers interface {
	GetSubscriber(ctx context.Context, userID uuid.UUID) (*dl.Subscriber, error)
}

type ObjectReader interface {
	Get(ctx context.Context, bucket asset.Bucket, key string) ([]byte, error)
}

type Watermarker interface {
	Apply(doc []byte, identity string) ([]byte, error)
}

type Recorder interface {
	RecordDownload(ctx context.Context, assetID, userID uuid.UUID) error
}

type Delivery struct {
	Filename    string
	ContentType string
	Body        []byte
}

type Gate struct {
	assets      AssetReader
	subscribers Subscribers
	objects     ObjectReader
	marker      Watermarker
	recorder    Recorder
	now         func() time.Time
	metrics     *metrics.Metrics
	log         *logger.Logger

	// recorded receives once per finished Record when set.
	recorded chan struct{}
}

func NewGate(assets AssetReader, subscribers Subscribers, objects ObjectReader, marker Watermarker, recorder Recorder, m *metrics.Metrics, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{
		assets:      assets,
		subscribers: subscribers,
		objects:     objects,
		marker:      marker,
		recorder:    recorder,
		now:         time.Now,
		metrics:     m,
		log:         log.With("service", "download"),
	}
}

// Prepare resolves entitlement and returns the watermarked document. It
// never returns partial bytes: any failure after the fetch is an error.
func (g *Gate) Prepare(ctx context.Context, userID, assetID uuid.UUID) (*Delivery, error) {
	a, err := g.assets.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			g.metrics.Download(outcomeNotFound)
		}
		return nil, err
	}
	if a.Status != asset.StatusPublished || !asset.IsWritten(a.DocumentKey) {
		g.metrics.Download(outcomeNotFound)
		return nil, apperrors.NotFound(msgAssetNotFound)
	}

	sub, err := g.subscribers.GetSubscriber(ctx, userID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if !sub.Entitled(g.now()) {
		g.metrics.Download(outcomeForbidden)
		return nil, apperrors.Forbidden(msgNotEntitled)
	}

	doc, err := g.objects.Get(ctx, asset.BucketPrivate, *a.DocumentKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			g.metrics.Download(outcomeNotFound)
			return nil, apperrors.NotFound(msgDocMissing)
		}
		g.metrics.Download(metrics.OutcomeFailure)
		return nil, apperrors.InternalServer(msgDeliveryFail, err)
	}

	marked, err := g.marker.Apply(doc, userID.String())
	if err != nil {
		g.metrics.Download(metrics.OutcomeFailure)
		g.log.Error("watermark failed", "asset_id", assetID, "error", err)
		return nil, apperrors.InternalServer(msgDeliveryFail, err)
	}

	g.metrics.Download(metrics.OutcomeSuccess)
	return &Delivery{
		Filename:    Filename(a),
		ContentType: contentTypePDF,
		Body:        marked,
	}, nil
}

// Record runs download bookkeeping in the background on its own deadline.
// Failures are logged and counted, never returned.
func (g *Gate) Record(userID, assetID uuid.UUID) {
	go func() {
		if g.recorded != nil {
			defer func() { g.recorded <- struct{}{} }()
		}

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		err := g.recorder.RecordDownload(ctx, assetID, userID)
		g.metrics.Bookkeeping(err)
		if err != nil {
			g.log.Error("download bookkeeping failed", "asset_id", assetID, "user_id", userID, "error", err)
		}
	}()
}

// Filename is the attachment name for an asset's document.
func Filename(a *asset.Asset) string {
	if a.Slug != "" {
		return a.Code + "-" + a.Slug + ".pdf"
	}
	return a.Code + ".pdf"
}

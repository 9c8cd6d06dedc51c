package postgres

import (
	"context"
	"errors"

	"asset-pipeline/internal/domain/download"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type EngagementRepository struct {
	db *DB
}

func NewEngagementRepository(db *DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// RecordDownload bumps the asset's download counter and appends a history
// row. Both writes commit together.
func (r *EngagementRepository) RecordDownload(ctx context.Context, assetID, userID uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			"UPDATE assets SET download_count = download_count + 1 WHERE id = $1", assetID)
		if err != nil {
			return errFailedRecordDownload(err)
		}
		if result.RowsAffected() == 0 {
			return apperrors.NotFound(errAssetNotFound)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO download_history (asset_id, user_id) VALUES ($1, $2)", assetID, userID); err != nil {
			return errFailedRecordDownload(err)
		}

		return nil
	})
}

type SubscriberRepository struct {
	db *DB
}

func NewSubscriberRepository(db *DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) GetSubscriber(ctx context.Context, userID uuid.UUID) (*download.Subscriber, error) {
	query := `SELECT id, subscription_status, subscription_expires_at FROM users WHERE id = $1`

	s := &download.Subscriber{}
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&s.UserID, &s.SubscriptionStatus, &s.SubscriptionExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errUserNotFound)
		}
		return nil, errFailedGetSubscriber(err)
	}

	return s, nil
}

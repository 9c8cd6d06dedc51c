package postgres

import (
	"context"
	"errors"
	"fmt"

	"asset-pipeline/internal/domain/asset"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const assetColumns = `id, asset_code, slug, title, description, category, skill, tags,
	thumbnail_key, document_key, preview_key, source_key, status, download_count, created_at, updated_at`

// dependentTables are removed by hand before an asset row; the schema does
// not cascade.
var dependentTables = []string{"likes", "reviews", "download_history"}

type AssetRepository struct {
	db *DB
}

func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func scanAsset(row pgx.Row) (*asset.Asset, error) {
	a := &asset.Asset{}
	var status string
	err := row.Scan(
		&a.ID, &a.Code, &a.Slug, &a.Title, &a.Description, &a.Category, &a.Skill, &a.Tags,
		&a.ThumbnailKey, &a.DocumentKey, &a.PreviewKey, &a.SourceKey, &status, &a.DownloadCount,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = asset.Status(status)
	return a, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func (r *AssetRepository) Create(ctx context.Context, input asset.CreateAssetInput) (*asset.Asset, error) {
	query := `
		INSERT INTO assets (asset_code, slug, title, description, category, skill, tags, thumbnail_key, document_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + assetColumns

	a, err := scanAsset(r.db.Pool.QueryRow(ctx, query,
		input.Code, input.Slug, input.Title, input.Description, input.Category, input.Skill,
		nonNilTags(input.Tags), input.ThumbnailKey, input.DocumentKey, string(input.Status),
	))
	if err != nil {
		if isConstraintViolation(err, constraintAssetCode) {
			return nil, apperrors.Conflict(errAssetCodeTaken)
		}
		return nil, errFailedCreateAsset(err)
	}

	return a, nil
}

func (r *AssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*asset.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	a, err := scanAsset(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errAssetNotFound)
		}
		return nil, errFailedGetAsset(err)
	}

	return a, nil
}

func (r *AssetRepository) GetByCode(ctx context.Context, code string) (*asset.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE asset_code = $1`

	a, err := scanAsset(r.db.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errAssetNotFound)
		}
		return nil, errFailedGetAsset(err)
	}

	return a, nil
}

func (r *AssetRepository) List(ctx context.Context, filter asset.ListAssetsFilter) ([]*asset.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	args := []interface{}{}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errFailedListAssets(err)
	}
	defer rows.Close()

	var assets []*asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, errFailedScanAsset(err)
		}
		assets = append(assets, a)
	}

	return assets, rows.Err()
}

// Update writes only the non-nil fields of input in a single statement.
func (r *AssetRepository) Update(ctx context.Context, id uuid.UUID, input asset.UpdateAssetInput) error {
	query := "UPDATE assets SET updated_at = NOW()"
	args := []interface{}{id}
	argCount := 1

	set := func(column string, value interface{}) {
		argCount++
		query += fmt.Sprintf(", %s = $%d", column, argCount)
		args = append(args, value)
	}

	if input.Title != nil {
		set("title", *input.Title)
	}
	if input.Description != nil {
		set("description", *input.Description)
	}
	if input.Category != nil {
		set("category", *input.Category)
	}
	if input.Skill != nil {
		set("skill", *input.Skill)
	}
	if input.Tags != nil {
		set("tags", input.Tags)
	}
	if input.Slug != nil {
		set("slug", *input.Slug)
	}
	if input.ThumbnailKey != nil {
		set("thumbnail_key", *input.ThumbnailKey)
	}
	if input.DocumentKey != nil {
		set("document_key", *input.DocumentKey)
	}
	if input.PreviewKey != nil {
		set("preview_key", *input.PreviewKey)
	}
	if input.SourceKey != nil {
		set("source_key", *input.SourceKey)
	}
	if input.Status != nil {
		set("status", string(*input.Status))
	}

	query += " WHERE id = $1"

	result, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return errFailedUpdateAsset(err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.NotFound(errAssetNotFound)
	}

	return nil
}

// Delete removes engagement rows and then the asset row in one transaction.
// Storage objects are the caller's responsibility.
func (r *AssetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, table := range dependentTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE asset_id = $1", id); err != nil {
				return errFailedDeleteDependent(table, err)
			}
		}

		result, err := tx.Exec(ctx, "DELETE FROM assets WHERE id = $1", id)
		if err != nil {
			return errFailedDeleteAsset(err)
		}

		if result.RowsAffected() == 0 {
			return apperrors.NotFound(errAssetNotFound)
		}

		return nil
	})
}

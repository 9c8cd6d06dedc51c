package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

type SequenceRepository struct {
	db *DB
}

func NewSequenceRepository(db *DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next atomically initializes the named counter at 1 or increments it, and
// returns the new value. Concurrent callers never observe the same value.
func (r *SequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf(errCounterNameEmpty)
	}

	query := `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`

	var value int64
	if err := r.db.Pool.QueryRow(ctx, query, name).Scan(&value); err != nil {
		return 0, errFailedNextSequence(err)
	}

	return value, nil
}

// NextForPrefix allocates the next numeric suffix for an asset code prefix.
// The per-prefix counter is seeded from the highest existing code on first
// use and incremented atomically afterwards, so concurrent callers with the
// same prefix receive distinct values.
func (r *SequenceRepository) NextForPrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, fmt.Errorf(errPrefixEmpty)
	}

	query := `
		INSERT INTO counters (name, value)
		VALUES ($1, COALESCE((
			SELECT MAX(CAST(SUBSTRING(asset_code FROM $3) AS BIGINT))
			FROM assets
			WHERE asset_code LIKE $2
		), 0) + 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`

	likePattern := escapeLikePattern(prefix) + "%"
	suffixPattern := "^" + regexp.QuoteMeta(prefix) + "([0-9]+)$"

	var value int64
	if err := r.db.Pool.QueryRow(ctx, query, counterPrefixNamespace+prefix, likePattern, suffixPattern).Scan(&value); err != nil {
		return 0, errFailedNextSequence(err)
	}

	return value, nil
}

package postgres

import (
	"context"
	"errors"

	"asset-pipeline/internal/domain/job"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, asset_id, job_type, status, attempts, max_attempts, error_message,
	created_at, started_at, completed_at, lease_expires_at`

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func scanJob(row pgx.Row) (*job.Job, error) {
	j := &job.Job{}
	var jobType, status string
	err := row.Scan(
		&j.ID, &j.AssetID, &jobType, &status, &j.Attempts, &j.MaxAttempts, &j.ErrorMessage,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.LeaseExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	j.Type = job.Type(jobType)
	j.Status = job.Status(status)
	return j, nil
}

// Enqueue inserts a pending job unless one already exists for the asset and
// type, in which case the existing job is returned with created=false. The
// partial unique index makes the check and insert a single atomic step.
func (r *JobRepository) Enqueue(ctx context.Context, assetID uuid.UUID, jobType job.Type, maxAttempts int) (*job.Job, bool, error) {
	insert := `
		INSERT INTO processing_jobs (asset_id, job_type, status, max_attempts)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (asset_id, job_type) WHERE status = 'pending' DO NOTHING
		RETURNING ` + jobColumns
	existing := `SELECT ` + jobColumns + ` FROM processing_jobs
		WHERE asset_id = $1 AND job_type = $2 AND status = 'pending'`

	// The existing pending job can be claimed between the two statements;
	// another round then inserts a fresh one.
	for round := 0; round < enqueueMaxRounds; round++ {
		j, err := scanJob(r.db.Pool.QueryRow(ctx, insert, assetID, string(jobType), maxAttempts))
		if err == nil {
			return j, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
			return nil, false, errFailedEnqueueJob(err)
		}

		j, err = scanJob(r.db.Pool.QueryRow(ctx, existing, assetID, string(jobType)))
		if err == nil {
			return j, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, errFailedEnqueueJob(err)
		}
	}

	return nil, false, apperrors.Conflict(errJobTransitionStale)
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = $1`

	j, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(errJobNotFound)
		}
		return nil, errFailedGetJob(err)
	}

	return j, nil
}

func (r *JobRepository) ListPending(ctx context.Context, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, errFailedListJobs(err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errFailedScanJob(err)
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

// Transition applies a status change guarded on the current status, so two
// workers racing to claim the same job cannot both succeed.
func (r *JobRepository) Transition(ctx context.Context, id uuid.UUID, in job.TransitionInput) (*job.Job, error) {
	var query string
	args := []interface{}{id, string(in.From)}

	switch {
	case in.From == job.StatusPending && in.To == job.StatusProcessing:
		query = `UPDATE processing_jobs
			SET status = 'processing', attempts = attempts + 1, started_at = NOW(),
			    lease_expires_at = NOW() + make_interval(secs => $3)
			WHERE id = $1 AND status = $2`
		args = append(args, in.Lease.Seconds())
	case in.From == job.StatusProcessing && in.To == job.StatusProcessing:
		query = `UPDATE processing_jobs
			SET lease_expires_at = NOW() + make_interval(secs => $3)
			WHERE id = $1 AND status = $2`
		args = append(args, in.Lease.Seconds())
	case in.To.Terminal():
		query = `UPDATE processing_jobs
			SET status = $3, completed_at = NOW(), error_message = $4, lease_expires_at = NULL
			WHERE id = $1 AND status = $2`
		args = append(args, string(in.To), in.ErrorMessage)
	default:
		return nil, apperrors.Conflict(errJobTransitionStale)
	}

	j, err := scanJob(r.db.Pool.QueryRow(ctx, query+" RETURNING "+jobColumns, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, apperrors.Conflict(errJobTransitionStale)
		}
		return nil, errFailedTransitionJob(err)
	}

	return j, nil
}

// SweepExpiredLeases requeues processing jobs whose lease ran out while
// attempts remain, and fails the rest. At most one job per asset and type is
// requeued so the one-pending index holds.
func (r *JobRepository) SweepExpiredLeases(ctx context.Context) (job.SweepResult, error) {
	var result job.SweepResult

	requeue := `
		UPDATE processing_jobs j
		SET status = 'pending', lease_expires_at = NULL
		WHERE j.status = 'processing'
		  AND j.lease_expires_at < NOW()
		  AND j.attempts < j.max_attempts
		  AND NOT EXISTS (
			SELECT 1 FROM processing_jobs p
			WHERE p.asset_id = j.asset_id AND p.job_type = j.job_type AND p.status = 'pending'
		  )
		  AND j.id = (
			SELECT q.id FROM processing_jobs q
			WHERE q.asset_id = j.asset_id AND q.job_type = j.job_type
			  AND q.status = 'processing' AND q.lease_expires_at < NOW()
			ORDER BY q.created_at DESC
			LIMIT 1
		  )`

	fail := `
		UPDATE processing_jobs
		SET status = 'failed', completed_at = NOW(), error_message = $1, lease_expires_at = NULL
		WHERE status = 'processing' AND lease_expires_at < NOW()`

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		requeued, err := tx.Exec(ctx, requeue)
		if err != nil {
			return errFailedRequeueJobs(err)
		}
		result.Requeued = requeued.RowsAffected()

		failed, err := tx.Exec(ctx, fail, job.LeaseExpiredMessage)
		if err != nil {
			return errFailedFailJobs(err)
		}
		result.Failed = failed.RowsAffected()

		return nil
	})

	return result, err
}

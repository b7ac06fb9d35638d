package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
)

type ProgressJobRepository interface {
	CreateJob(ctx context.Context, tx *sql.Tx, job *model.ProgressJob) error
	GetJobByID(ctx context.Context, id string) (*model.ProgressJob, error)
	UpdateJobStatus(ctx context.Context, tx *sql.Tx, jobID string, status string, lastError *string) error
	IncrementJobAttempts(ctx context.Context, tx *sql.Tx, jobID string) error
	// RequeueJob moves a job from status from back to Queued and touches
	// updated_at. It reports false when the job was no longer in from.
	RequeueJob(ctx context.Context, tx *sql.Tx, jobID string, from string) (bool, error)
	// ListJobsByStatus returns jobs in status whose last update is older than olderThan.
	ListJobsByStatus(ctx context.Context, status string, olderThan time.Time, limit int) ([]model.ProgressJob, error)
}

type pgProgressJobRepository struct {
	db *sql.DB
}

func NewPgProgressJobRepository(db *sql.DB) ProgressJobRepository {
	return &pgProgressJobRepository{db: db}
}

func (r *pgProgressJobRepository) CreateJob(ctx context.Context, tx *sql.Tx, job *model.ProgressJob) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
        INSERT INTO progress_jobs (id, submission_id, user_id, status, attempts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, 0, $5, $5)`,
		job.ID, job.SubmissionID, job.UserID, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgProgressJobRepository.CreateJob: %w", err)
	}
	return nil
}

const progressJobColumns = `id, submission_id, user_id, status, attempts, last_error, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*model.ProgressJob, error) {
	job := &model.ProgressJob{}
	var lastErr sql.NullString
	if err := row.Scan(&job.ID, &job.SubmissionID, &job.UserID, &job.Status, &job.Attempts, &lastErr, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if lastErr.Valid {
		job.LastError = &lastErr.String
	}
	return job, nil
}

func (r *pgProgressJobRepository) GetJobByID(ctx context.Context, id string) (*model.ProgressJob, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+progressJobColumns+` FROM progress_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProgressJobRepository.GetJobByID: %w", err)
	}
	return job, nil
}

func (r *pgProgressJobRepository) UpdateJobStatus(ctx context.Context, tx *sql.Tx, jobID string, status string, lastError *string) error {
	res, err := conn(r.db, tx).ExecContext(ctx,
		`UPDATE progress_jobs SET status = $1, last_error = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		status, lastError, jobID)
	if err != nil {
		return fmt.Errorf("pgProgressJobRepository.UpdateJobStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgProgressJobRepository) IncrementJobAttempts(ctx context.Context, tx *sql.Tx, jobID string) error {
	_, err := conn(r.db, tx).ExecContext(ctx,
		`UPDATE progress_jobs SET attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("pgProgressJobRepository.IncrementJobAttempts: %w", err)
	}
	return nil
}

func (r *pgProgressJobRepository) RequeueJob(ctx context.Context, tx *sql.Tx, jobID string, from string) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx,
		`UPDATE progress_jobs SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3`,
		model.JobStatusQueued, jobID, from)
	if err != nil {
		return false, fmt.Errorf("pgProgressJobRepository.RequeueJob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgProgressJobRepository.RequeueJob rows: %w", err)
	}
	return n > 0, nil
}

func (r *pgProgressJobRepository) ListJobsByStatus(ctx context.Context, status string, olderThan time.Time, limit int) ([]model.ProgressJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+progressJobColumns+` FROM progress_jobs
        WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("pgProgressJobRepository.ListJobsByStatus: %w", err)
	}
	defer rows.Close()

	var jobs []model.ProgressJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("pgProgressJobRepository.ListJobsByStatus scan: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

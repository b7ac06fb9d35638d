package service

import (
	"context"
	"database/sql"
	"time"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/domain/repository"
	"tle_zone_grader/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProgressJobService owns the progress outbox: rows written next to accepted
// submissions, and their ids on the Redis queue the worker drains.
type ProgressJobService struct {
	jobRepo   repository.ProgressJobRepository
	rdb       *redis.Client
	queueName string
	// processingLease is how long a job may stay Processing before it is
	// presumed abandoned by a crashed worker.
	processingLease time.Duration
}

func NewProgressJobService(jobRepo repository.ProgressJobRepository, rdb *redis.Client, queueName string, processingLease time.Duration) *ProgressJobService {
	return &ProgressJobService{jobRepo: jobRepo, rdb: rdb, queueName: queueName, processingLease: processingLease}
}

// CreateJob writes the outbox row inside the caller's transaction. Nothing is
// pushed to Redis until Dispatch is called after commit.
func (s *ProgressJobService) CreateJob(ctx context.Context, tx *sql.Tx, sub *model.Submission) (*model.ProgressJob, error) {
	job := &model.ProgressJob{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Status:       model.JobStatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.jobRepo.CreateJob(ctx, tx, job); err != nil {
		return nil, common.Errorf("failed to create progress job: %w", err)
	}
	return job, nil
}

func (s *ProgressJobService) Dispatch(ctx context.Context, jobID string) error {
	if err := s.rdb.LPush(ctx, s.queueName, jobID).Err(); err != nil {
		return common.Errorf("failed to push progress job %s: %w", jobID, err)
	}
	return nil
}

// RequeueStale pushes jobs that have sat in Queued for longer than age, and
// jobs stuck in Processing past the lease. A job whose push was lost, or whose
// worker died mid-update, is picked up here. RecordAccepted is idempotent, so
// a second delivery is harmless.
func (s *ProgressJobService) RequeueStale(ctx context.Context, age time.Duration, limit int) (int, error) {
	now := time.Now()
	queued, err := s.jobRepo.ListJobsByStatus(ctx, model.JobStatusQueued, now.Add(-age), limit)
	if err != nil {
		return 0, common.Errorf("failed to list stale progress jobs: %w", err)
	}
	var abandoned []model.ProgressJob
	if s.processingLease > 0 && len(queued) < limit {
		abandoned, err = s.jobRepo.ListJobsByStatus(ctx, model.JobStatusProcessing, now.Add(-s.processingLease), limit-len(queued))
		if err != nil {
			return 0, common.Errorf("failed to list abandoned progress jobs: %w", err)
		}
	}
	n, err := s.requeue(ctx, append(queued, abandoned...))
	if n > 0 {
		logger.Info(ctx, "requeued stale progress jobs", zap.Int("count", n), zap.Int("abandoned", len(abandoned)))
	}
	return n, err
}

// RequeueFailed moves dead-lettered jobs back to Queued and pushes them again.
func (s *ProgressJobService) RequeueFailed(ctx context.Context, limit int) (int, error) {
	jobs, err := s.jobRepo.ListJobsByStatus(ctx, model.JobStatusFailed, time.Now(), limit)
	if err != nil {
		return 0, common.Errorf("failed to list failed progress jobs: %w", err)
	}
	n, err := s.requeue(ctx, jobs)
	logger.Info(ctx, "requeued failed progress jobs", zap.Int("count", n))
	return n, err
}

// requeue resets each job to Queued, which also restarts its staleness clock,
// and pushes it. Jobs that changed status in the meantime are skipped.
func (s *ProgressJobService) requeue(ctx context.Context, jobs []model.ProgressJob) (int, error) {
	n := 0
	for _, job := range jobs {
		moved, err := s.jobRepo.RequeueJob(ctx, nil, job.ID, job.Status)
		if err != nil {
			return n, common.Errorf("failed to reset progress job %s: %w", job.ID, err)
		}
		if !moved {
			continue
		}
		if err := s.Dispatch(ctx, job.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

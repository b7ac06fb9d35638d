package worker

import (
	"context"
	"errors"
	"sync"
	"time"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/domain/repository"
	"tle_zone_grader/internal/platform/events"
	"tle_zone_grader/internal/platform/logger"
	"tle_zone_grader/internal/platform/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ProgressRecorder interface {
	RecordAccepted(ctx context.Context, submissionID string) error
}

type StaleRequeuer interface {
	RequeueStale(ctx context.Context, age time.Duration, limit int) (int, error)
}

type Options struct {
	QueueName       string
	DeadLetterQueue string
	Concurrency     int
	MaxAttempts     int
	RetryBase       time.Duration
	PollTimeout     time.Duration
	SweepInterval   time.Duration // zero disables the sweeper
}

// ProgressWorker drains progress job ids from Redis into the progress tracker.
type ProgressWorker struct {
	rdb       *redis.Client
	jobRepo   repository.ProgressJobRepository
	recorder  ProgressRecorder
	requeuer  StaleRequeuer
	publisher events.Publisher
	opts      Options
}

func NewProgressWorker(
	rdb *redis.Client,
	jobRepo repository.ProgressJobRepository,
	recorder ProgressRecorder,
	requeuer StaleRequeuer,
	publisher events.Publisher,
	opts Options,
) *ProgressWorker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	return &ProgressWorker{
		rdb:       rdb,
		jobRepo:   jobRepo,
		recorder:  recorder,
		requeuer:  requeuer,
		publisher: publisher,
		opts:      opts,
	}
}

// Start blocks until ctx is cancelled and every loop has returned.
func (w *ProgressWorker) Start(ctx context.Context) {
	logger.Info(ctx, "progress worker started",
		zap.String("queue", w.opts.QueueName), zap.Int("concurrency", w.opts.Concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(logger.With(ctx, zap.Int("worker", i)))
		}()
	}
	if w.opts.SweepInterval > 0 && w.requeuer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sweep(ctx)
		}()
	}
	wg.Wait()
	logger.Info(ctx, "progress worker stopped")
}

func (w *ProgressWorker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		// a finite timeout lets the loop notice cancellation
		res, err := w.rdb.BRPop(ctx, w.opts.PollTimeout, w.opts.QueueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error(ctx, "failed to pop progress queue", zap.String("queue", w.opts.QueueName), zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		// res is [queue, value]
		if len(res) < 2 || res[1] == "" {
			logger.Warn(ctx, "empty progress job id popped")
			continue
		}
		w.handleJob(ctx, res[1])
	}
}

func (w *ProgressWorker) sweep(ctx context.Context) {
	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.requeuer.RequeueStale(ctx, w.opts.SweepInterval, 500); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "progress sweep failed", zap.Error(err))
			}
		}
	}
}

func (w *ProgressWorker) handleJob(ctx context.Context, jobID string) {
	ctx = logger.With(ctx, zap.String("job_id", jobID))
	job, err := w.jobRepo.GetJobByID(ctx, jobID)
	if err != nil {
		logger.Error(ctx, "failed to load progress job", zap.Error(err))
		return
	}
	if job.Status == model.JobStatusCompleted {
		logger.Debug(ctx, "progress job already completed")
		return
	}
	if err := w.jobRepo.UpdateJobStatus(ctx, nil, job.ID, model.JobStatusProcessing, nil); err != nil {
		logger.Warn(ctx, "failed to mark progress job processing", zap.Error(err))
	}

	attempts := 0
	op := func() error {
		attempts++
		if err := w.jobRepo.IncrementJobAttempts(ctx, nil, job.ID); err != nil {
			logger.Warn(ctx, "failed to count progress job attempt", zap.Error(err))
		}
		err := w.recorder.RecordAccepted(ctx, job.SubmissionID)
		if errors.Is(err, common.ErrNotAccepted) || errors.Is(err, common.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.RetryBase
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.opts.MaxAttempts-1)), ctx)
	notify := func(err error, next time.Duration) {
		logger.Warn(ctx, "progress update failed, retrying",
			zap.Int("attempt", attempts), zap.Duration("backoff", next), zap.Error(err))
	}

	err = backoff.RetryNotify(op, policy, notify)
	if err == nil {
		if err := w.jobRepo.UpdateJobStatus(ctx, nil, job.ID, model.JobStatusCompleted, nil); err != nil {
			logger.Error(ctx, "failed to mark progress job completed", zap.Error(err))
		}
		metrics.ProgressJobsTotal.WithLabelValues("completed").Inc()
		return
	}

	if ctx.Err() != nil {
		// shutting down; the sweeper will push it again
		if err := w.jobRepo.UpdateJobStatus(context.WithoutCancel(ctx), nil, job.ID, model.JobStatusQueued, nil); err != nil {
			logger.Warn(ctx, "failed to return progress job to queue", zap.Error(err))
		}
		return
	}
	w.deadLetter(ctx, job, attempts, err)
}

func (w *ProgressWorker) deadLetter(ctx context.Context, job *model.ProgressJob, attempts int, cause error) {
	msg := cause.Error()
	if err := w.jobRepo.UpdateJobStatus(ctx, nil, job.ID, model.JobStatusFailed, &msg); err != nil {
		logger.Error(ctx, "failed to mark progress job failed", zap.Error(err))
	}
	if err := w.rdb.LPush(ctx, w.opts.DeadLetterQueue, job.ID).Err(); err != nil {
		logger.Error(ctx, "failed to dead-letter progress job", zap.Error(err))
	}
	if err := w.publisher.PublishAlert(ctx, events.Alert{
		JobID:        job.ID,
		SubmissionID: job.SubmissionID,
		UserID:       job.UserID,
		Attempts:     attempts,
		Error:        msg,
		At:           time.Now().UTC(),
	}); err != nil {
		logger.Warn(ctx, "failed to publish progress alert", zap.Error(err))
	}
	metrics.ProgressJobsTotal.WithLabelValues("failed").Inc()
	logger.Error(ctx, "progress update permanently failed",
		zap.String("submission_id", job.SubmissionID),
		zap.String("user_id", job.UserID),
		zap.Int("attempts", attempts),
		zap.Error(cause))
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

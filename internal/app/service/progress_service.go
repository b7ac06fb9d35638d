package service

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/domain/repository"
	"tle_zone_grader/internal/platform/database"
	"tle_zone_grader/internal/platform/events"
	"tle_zone_grader/internal/platform/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// Locker serializes work per key across every tracker instance.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ProgressService is the only writer of user progress.
type ProgressService struct {
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	progressRepo   repository.ProgressRepository
	locker         Locker
	txRunner       database.TxRunner
	publisher      events.Publisher
	now            func() time.Time
}

func NewProgressService(
	subRepo repository.SubmissionRepository,
	probRepo repository.ProblemRepository,
	progressRepo repository.ProgressRepository,
	locker Locker,
	txRunner database.TxRunner,
	publisher events.Publisher,
) *ProgressService {
	return &ProgressService{
		submissionRepo: subRepo,
		problemRepo:    probRepo,
		progressRepo:   progressRepo,
		locker:         locker,
		txRunner:       txRunner,
		publisher:      publisher,
		now:            time.Now,
	}
}

// ProgressChange describes what one accepted submission did to an aggregate.
type ProgressChange struct {
	NewlySolved bool
	NewBadges   []model.BadgeID
}

// ApplyAccepted folds an accepted submission into p. The solved set and the
// badge set only grow; the submission's day is counted once per call.
func ApplyAccepted(p *model.UserProgress, sub *model.Submission, difficulty model.ProblemDifficulty, now time.Time) ProgressChange {
	var change ProgressChange
	timeMs, memKb := sub.MaxTimeMs(), sub.PeakMemoryKb()

	solved, ok := p.Solved[sub.ProblemID]
	if !ok {
		change.NewlySolved = true
		p.Solved[sub.ProblemID] = model.SolvedProblem{
			ProblemID:         sub.ProblemID,
			Difficulty:        difficulty,
			FirstSubmissionID: sub.ID,
			BestTimeMs:        timeMs,
			BestMemoryKb:      memKb,
			SolvedAt:          sub.CreatedAt,
		}
	} else {
		solved.BestTimeMs = lowerOf(solved.BestTimeMs, timeMs)
		solved.BestMemoryKb = lowerOf(solved.BestMemoryKb, memKb)
		p.Solved[sub.ProblemID] = solved
	}

	p.SubmissionDays[model.DayKey(sub.CreatedAt)]++

	held := mapset.NewThreadUnsafeSet[model.BadgeID]()
	for id := range p.Badges {
		held.Add(id)
	}
	earned := mapset.NewThreadUnsafeSet(model.SatisfiedBadges(p.BadgeStats(now))...).Difference(held)
	for _, rule := range model.BadgeCatalog {
		if earned.Contains(rule.ID) {
			p.Badges[rule.ID] = now
			change.NewBadges = append(change.NewBadges, rule.ID)
		}
	}
	p.UpdatedAt = now
	return change
}

func lowerOf(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil || *a <= *b {
		return a
	}
	return b
}

// RecordAccepted applies an accepted submission to its author's progress.
// Replaying the same submission is a no-op.
func (s *ProgressService) RecordAccepted(ctx context.Context, submissionID string) error {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return common.Errorf("%w: load submission %s: %v", common.ErrTracker, submissionID, err)
	}
	if sub.Verdict != model.VerdictAccepted {
		return common.Errorf("submission %s has verdict %s: %w", sub.ID, sub.Verdict, common.ErrNotAccepted)
	}
	problem, err := s.problemRepo.FindProblemByID(ctx, sub.ProblemID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return common.Errorf("%w: load problem %s: %v", common.ErrTracker, sub.ProblemID, err)
	}

	ctx = logger.With(ctx, zap.String("user_id", sub.UserID), zap.String("submission_id", sub.ID))
	unlock, err := s.locker.Lock(ctx, sub.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	var ev *events.ProgressUpdated
	err = s.txRunner.RunInTx(ctx, func(tx *sql.Tx) error {
		done, err := s.progressRepo.IsSubmissionProcessed(ctx, tx, sub.ID)
		if err != nil || done {
			return err
		}
		p, err := s.progressRepo.LoadProgressForUpdate(ctx, tx, sub.UserID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		change := ApplyAccepted(p, sub, problem.Difficulty, now)
		if err := s.progressRepo.SaveProgress(ctx, tx, p); err != nil {
			return err
		}
		if err := s.progressRepo.MarkSubmissionProcessed(ctx, tx, sub.ID, sub.UserID, now); err != nil {
			return err
		}
		ev = &events.ProgressUpdated{
			UserID:       sub.UserID,
			SubmissionID: sub.ID,
			ProblemID:    sub.ProblemID,
			NewlySolved:  change.NewlySolved,
			SolvedCount:  len(p.Solved),
			NewBadges:    change.NewBadges,
			At:           now,
		}
		return nil
	})
	if err != nil {
		return common.Errorf("%w: %v", common.ErrTracker, err)
	}
	if ev == nil {
		logger.Debug(ctx, "submission already applied to progress")
		return nil
	}

	if err := s.publisher.PublishProgressUpdated(ctx, *ev); err != nil {
		logger.Warn(ctx, "failed to publish progress update", zap.Error(err))
	}
	logger.Info(ctx, "progress updated",
		zap.Bool("newly_solved", ev.NewlySolved),
		zap.Int("solved_count", ev.SolvedCount),
		zap.Int("new_badges", len(ev.NewBadges)))
	return nil
}

func (s *ProgressService) GetSummary(ctx context.Context, userID string) (*model.ProgressSummary, error) {
	p, err := s.progressRepo.GetProgress(ctx, userID)
	if err != nil {
		return nil, common.Errorf("failed to load progress: %w", err)
	}
	summary := p.Summary(s.now())
	return &summary, nil
}

func (s *ProgressService) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	entries, err := s.progressRepo.GetLeaderboard(ctx, limit)
	if err != nil {
		return nil, common.Errorf("failed to load leaderboard: %w", err)
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	return entries, nil
}
